// Package sim provides an in-memory hardware back-end for tests, the
// scenario harness and the CLI. It records every command it receives,
// enforces an optional hardware slot capacity on uploads, and can be
// programmed to reject specific uploads or (for protocol-violation
// tests) to fail infallible commands.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/ffmix/internal/device"
)

// ErrNoFreeSlot is returned for an upload when all hardware slots are
// occupied.
var ErrNoFreeSlot = errors.New("no free hardware slot")

// Backend simulates a hardware-specific driver. Safe for concurrent
// inspection while the device loop drives Control.
type Backend struct {
	mu        sync.Mutex
	slots     int // 0 = unlimited
	resident  map[int]bool
	rejectIDs map[int]error
	failKinds map[device.CommandKind]error
	calls     []*device.Command
}

// New creates a backend with the given slot capacity; zero means
// unlimited slots.
func New(slots int) *Backend {
	return &Backend{
		slots:     slots,
		resident:  make(map[int]bool),
		rejectIDs: make(map[int]error),
		failKinds: make(map[device.CommandKind]error),
	}
}

// Control is the device.ControlFunc. Commands are deep-copied before
// recording, honoring the contract that payloads are only valid during
// the callback.
func (b *Backend) Control(_ any, cmd *device.Command) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, cmd.Clone())

	if err, ok := b.failKinds[cmd.Kind]; ok {
		return err
	}

	switch cmd.Kind {
	case device.UploadUncombinable:
		id := cmd.Uncomb.ID
		if err, ok := b.rejectIDs[id]; ok {
			return err
		}
		if b.slots > 0 && !b.resident[id] && len(b.resident) >= b.slots {
			return fmt.Errorf("upload effect %d: %w", id, ErrNoFreeSlot)
		}
		b.resident[id] = true

	case device.EraseUncombinable:
		delete(b.resident, cmd.Uncomb.ID)
	}

	return nil
}

// RejectUpload programs the backend to reject uploads of one effect id.
func (b *Backend) RejectUpload(id int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		err = ErrNoFreeSlot
	}
	b.rejectIDs[id] = err
}

// AcceptUpload removes a programmed rejection.
func (b *Backend) AcceptUpload(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.rejectIDs, id)
}

// FailKind programs the backend to fail every command of the given kind.
// Failing an infallible kind simulates a protocol violation.
func (b *Backend) FailKind(kind device.CommandKind, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failKinds[kind] = err
}

// Calls returns a copy of every command received so far, in dispatch
// order.
func (b *Backend) Calls() []*device.Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*device.Command, len(b.calls))
	copy(out, b.calls)
	return out
}

// Kinds returns the command kinds received so far, in dispatch order.
func (b *Backend) Kinds() []device.CommandKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]device.CommandKind, len(b.calls))
	for i, c := range b.calls {
		out[i] = c.Kind
	}
	return out
}

// OfKind returns the received commands of one kind, in dispatch order.
func (b *Backend) OfKind(kind device.CommandKind) []*device.Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*device.Command
	for _, c := range b.calls {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// LastOfKind returns the most recent command of one kind, or nil.
func (b *Backend) LastOfKind(kind device.CommandKind) *device.Command {
	cmds := b.OfKind(kind)
	if len(cmds) == 0 {
		return nil
	}
	return cmds[len(cmds)-1]
}

// Resident returns the number of effects currently occupying slots.
func (b *Backend) Resident() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.resident)
}

// Reset clears recorded calls and residency but keeps programmed
// failures.
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
	b.resident = make(map[int]bool)
}
