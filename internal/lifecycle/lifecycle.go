// Package lifecycle tracks hardware residency of uncombinable effects.
//
// Each conditional (spring/damper/friction/inertia) effect occupies at
// most one hardware slot at a time and moves through an explicit state
// machine:
//
//	Idle → Uploading → Resident-Stopped ⇄ Resident-Playing
//	                        │
//	                        └──(erased)──→ Idle
//
// The manager only validates transitions and remembers states; issuing
// the corresponding commands (and reporting their outcomes back) is the
// dispatcher's job. Keeping the legality check in one place is what lets
// the core promise the back-end its ordering guarantees: upload always
// precedes start, start/stop only for uploaded effects, erase only for a
// non-playing resident effect and only once.
//
// Slot capacity is not enforced here: the back-end's accept/reject answer
// to an upload is the capacity check.
package lifecycle

import "fmt"

// State is the hardware-residency state of one uncombinable effect.
type State uint8

const (
	// StateIdle means no hardware residency; the initial and final state.
	StateIdle State = iota
	// StateUploading means an upload command has been issued and its
	// result is pending. No other transition may begin here; in
	// particular, erase must wait for the upload result.
	StateUploading
	// StateResidentStopped means the upload succeeded and the effect
	// occupies a slot but is not playing.
	StateResidentStopped
	// StateResidentPlaying means the effect occupies a slot and plays.
	StateResidentPlaying
)

// String returns the state name used in logs and errors.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUploading:
		return "uploading"
	case StateResidentStopped:
		return "resident_stopped"
	case StateResidentPlaying:
		return "resident_playing"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// TransitionError reports an attempted transition that the protocol
// forbids from the effect's current state.
type TransitionError struct {
	ID   int
	From State
	Op   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("effect %d: cannot %s from %s", e.ID, e.Op, e.From)
}

// Manager tracks the residency state of every uncombinable effect.
// Not safe for concurrent use; owned by the device's decision goroutine.
type Manager struct {
	states map[int]State
}

// NewManager creates an empty manager. Unknown effects are Idle.
func NewManager() *Manager {
	return &Manager{states: make(map[int]State)}
}

// State returns the current state of an effect.
func (m *Manager) State(id int) State {
	return m.states[id]
}

// Resident reports whether the effect currently occupies a hardware slot.
func (m *Manager) Resident(id int) bool {
	s := m.states[id]
	return s == StateResidentStopped || s == StateResidentPlaying
}

// BeginUpload moves Idle → Uploading. The caller must follow up with
// UploadResult once the back-end has answered; the effect is unreachable
// by every other transition until then.
func (m *Manager) BeginUpload(id int) error {
	if s := m.states[id]; s != StateIdle {
		return &TransitionError{ID: id, From: s, Op: "upload"}
	}
	m.states[id] = StateUploading
	return nil
}

// UploadResult resolves a pending upload: success moves Uploading →
// Resident-Stopped, rejection returns the effect to Idle (the effect
// never reaches a Resident state on failure).
func (m *Manager) UploadResult(id int, ok bool) error {
	if s := m.states[id]; s != StateUploading {
		return &TransitionError{ID: id, From: s, Op: "resolve upload"}
	}
	if ok {
		m.states[id] = StateResidentStopped
	} else {
		delete(m.states, id)
	}
	return nil
}

// Started moves Resident-Stopped → Resident-Playing. Starting is only
// legal after a successful upload.
func (m *Manager) Started(id int) error {
	if s := m.states[id]; s != StateResidentStopped {
		return &TransitionError{ID: id, From: s, Op: "start"}
	}
	m.states[id] = StateResidentPlaying
	return nil
}

// Stopped moves Resident-Playing → Resident-Stopped. The device stays
// ready to resume playback immediately.
func (m *Manager) Stopped(id int) error {
	if s := m.states[id]; s != StateResidentPlaying {
		return &TransitionError{ID: id, From: s, Op: "stop"}
	}
	m.states[id] = StateResidentStopped
	return nil
}

// Erased moves Resident-Stopped → Idle, releasing the slot. Erasing a
// playing effect is forbidden; the caller must stop it first.
func (m *Manager) Erased(id int) error {
	if s := m.states[id]; s != StateResidentStopped {
		return &TransitionError{ID: id, From: s, Op: "erase"}
	}
	delete(m.states, id)
	return nil
}

// Tracked returns the number of effects in a non-Idle state.
func (m *Manager) Tracked() int {
	return len(m.states)
}
