package harness

import "fmt"

// TraceEvent is one dispatched command as seen by the harness observer.
// JSON tags define the golden snapshot format; payload fields are
// pointers so absent ones are omitted while legitimate zeros survive.
type TraceEvent struct {
	Tick    int64  `json:"tick"`
	Seq     int64  `json:"seq"`
	Command string `json:"command"`

	EffectID int `json:"effect_id,omitempty"`

	X *int32 `json:"x,omitempty"`
	Y *int32 `json:"y,omitempty"`

	Strong *uint32 `json:"strong,omitempty"`
	Weak   *uint32 `json:"weak,omitempty"`

	Error string `json:"error,omitempty"`
}

func (e TraceEvent) payloadSummary() string {
	switch {
	case e.X != nil || e.Y != nil:
		var x, y int32
		if e.X != nil {
			x = *e.X
		}
		if e.Y != nil {
			y = *e.Y
		}
		return fmt.Sprintf(" x=%d y=%d", x, y)
	case e.Strong != nil || e.Weak != nil:
		var s, w uint32
		if e.Strong != nil {
			s = *e.Strong
		}
		if e.Weak != nil {
			w = *e.Weak
		}
		return fmt.Sprintf(" strong=%d weak=%d", s, w)
	case e.EffectID != 0:
		if e.Error != "" {
			return fmt.Sprintf(" effect=%d error=%q", e.EffectID, e.Error)
		}
		return fmt.Sprintf(" effect=%d", e.EffectID)
	default:
		return ""
	}
}

// Result is the outcome of one scenario run.
type Result struct {
	// Passed is true when every step behaved as declared and every
	// assertion held.
	Passed bool

	// Trace is the full command trace in dispatch order.
	Trace []TraceEvent

	// Refs maps scenario ref names to the effect ids the run assigned.
	Refs map[string]int

	// Errors collects step and assertion failures.
	Errors []string
}

// NewResult creates an empty passing result.
func NewResult() *Result {
	return &Result{Passed: true, Refs: make(map[string]int)}
}

// AddError records a failure and marks the result failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Passed = false
}
