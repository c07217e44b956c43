package core

import (
	"log/slog"
	"time"

	"github.com/roach88/ffmix/internal/device"
	"github.com/roach88/ffmix/internal/effect"
	"github.com/roach88/ffmix/internal/lifecycle"
	"github.com/roach88/ffmix/internal/registry"
)

// Timing constants. The scheduler interval can never go below the host
// timing granularity plus one unit; requests for a smaller interval are
// silently clamped, not rejected.
const (
	// TickGranularity is the host timing granularity assumed by the
	// scheduler floor.
	TickGranularity = time.Millisecond
	// MinUpdateRate is the enforced floor for the recomputation
	// interval.
	MinUpdateRate = TickGranularity + time.Millisecond
	// DefaultUpdateRate is used when registration passes a zero
	// interval.
	DefaultUpdateRate = 10 * time.Millisecond
)

// Device is one registered force-feedback device: the registry, the
// lifecycle manager, the scheduler and the dispatcher behind a
// submission API. All methods are safe for concurrent use; they enqueue
// requests for the single decision goroutine running Run.
type Device struct {
	handle any
	rate   time.Duration

	manual       bool
	reuploadOnUp bool
	now          func() time.Time
	release      func(any)

	queue *requestQueue
	reg   *registry.Registry
	lcm   *lifecycle.Manager
	disp  *dispatcher

	// Loop-local state, touched only by the Run goroutine.
	tick           int64
	combinedActive bool
	rumbleActive   bool
}

// Option configures a Device at registration.
type Option func(*Device)

// WithManualTicks disables the free-running scheduler pump. Ticks then
// only happen through explicit Step calls; used by the deterministic
// harness and the live monitor.
func WithManualTicks() Option {
	return func(d *Device) { d.manual = true }
}

// WithObserver registers a command observer, notified synchronously
// after every dispatched command. Trace recorders hook in here.
func WithObserver(obs CommandObserver) Option {
	return func(d *Device) { d.disp.observers = append(d.disp.observers, obs) }
}

// WithReuploadOnUpdate sets the re-provisioning policy for parameter
// updates of hardware-resident uncombinable effects. When enabled (the
// default) every update forces a fresh upload handshake; when disabled
// the core only re-issues a start command and relies on the back-end's
// own idempotence.
func WithReuploadOnUpdate(v bool) Option {
	return func(d *Device) { d.reuploadOnUp = v }
}

// WithNowFunc overrides the time source used to stamp playback windows.
// Pair with WithManualTicks for fully synthetic time in tests.
func WithNowFunc(now func() time.Time) Option {
	return func(d *Device) { d.now = now }
}

// WithDataRelease registers a finalizer for the opaque back-end context,
// invoked once when the device loop exits.
func WithDataRelease(release func(any)) Option {
	return func(d *Device) { d.release = release }
}

// Register creates a Device bound to a back-end callback.
//
// handle is an opaque device identity passed through to observers and
// logs; data is the back-end's private context, handed verbatim to every
// callback invocation. updateRate is the recomputation interval, clamped
// to MinUpdateRate (zero selects DefaultUpdateRate).
//
// The device is inert until Run is started; submission calls block until
// the decision loop picks them up.
func Register(handle any, data any, control device.ControlFunc, updateRate time.Duration, opts ...Option) (*Device, error) {
	if control == nil {
		return nil, ErrNilControl
	}

	rate := updateRate
	if rate == 0 {
		rate = DefaultUpdateRate
	}
	if rate < MinUpdateRate {
		slog.Debug("update rate clamped to scheduler floor",
			"requested", rate,
			"floor", MinUpdateRate,
		)
		rate = MinUpdateRate
	}

	d := &Device{
		handle:       handle,
		rate:         rate,
		reuploadOnUp: true,
		now:          time.Now,
		queue:        newRequestQueue(),
		reg:          registry.New(),
		lcm:          lifecycle.NewManager(),
		disp: &dispatcher{
			handle:  handle,
			data:    data,
			control: control,
			clock:   NewClock(),
		},
	}

	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Handle returns the opaque device identity supplied at registration.
func (d *Device) Handle() any {
	return d.handle
}

// UpdateRate returns the effective (clamped) recomputation interval.
func (d *Device) UpdateRate() time.Duration {
	return d.rate
}

// Seq returns the sequence number of the most recently dispatched
// command.
func (d *Device) Seq() int64 {
	return d.disp.clock.Current()
}

// Submit validates and registers a new effect, returning its fresh
// identifier. The effect does not play until Start is called.
func (d *Device) Submit(e effect.Effect) (int, error) {
	resp := d.send(request{op: opSubmit, effect: e})
	return resp.id, resp.err
}

// Update replaces an effect's parameters. For a playing combinable
// effect the new parameters take hold at the next tick. For a resident
// uncombinable effect the re-provisioning policy applies; with re-upload
// enabled, a back-end rejection is returned here and the effect stops.
func (d *Device) Update(id int, e effect.Effect) error {
	return d.send(request{op: opUpdate, id: id, effect: e}).err
}

// Start begins playback of a submitted effect, repeating the playback
// window repeat times (minimum 1). For an uncombinable effect this
// triggers the upload handshake; a back-end rejection is returned as an
// UploadRejectedError and the effect remains off the hardware until a
// fresh Start.
func (d *Device) Start(id int, repeat int) error {
	return d.send(request{op: opStart, id: id, repeat: repeat}).err
}

// Stop halts playback. The effect record is retained and can be
// restarted or erased.
func (d *Device) Stop(id int) error {
	return d.send(request{op: opStop, id: id}).err
}

// Erase removes an effect entirely, first settling any hardware
// residency (stop before erase, never erase a playing slot).
func (d *Device) Erase(id int) error {
	return d.send(request{op: opErase, id: id}).err
}

// Active returns a snapshot of the currently playing effects in
// submission order.
func (d *Device) Active() ([]effect.Effect, error) {
	resp := d.send(request{op: opActive})
	return resp.active, resp.err
}

// Step executes one tick synchronously at the given time: expiry
// evaluation, lifecycle transitions, force recomputation and dispatch.
// The request serializes with the API calls through the decision loop,
// so Run must be active. Primarily for manual-tick mode.
func (d *Device) Step(now time.Time) error {
	return d.send(request{op: opTick, now: now}).err
}

// Close shuts the request queue; Run drains what is pending and
// returns. Subsequent API calls fail with ErrClosed.
func (d *Device) Close() {
	d.queue.Close()
}

// send enqueues a request and blocks for the loop's reply.
func (d *Device) send(r request) response {
	r.reply = make(chan response, 1)
	if !d.queue.Enqueue(r) {
		return response{err: ErrClosed}
	}
	return <-r.reply
}
