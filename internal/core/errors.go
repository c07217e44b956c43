package core

import (
	"errors"
	"fmt"

	"github.com/roach88/ffmix/internal/device"
)

// ErrClosed reports an operation against a device whose loop has
// stopped or whose queue is closed.
var ErrClosed = errors.New("device closed")

// ErrNilControl reports a registration without a back-end callback.
var ErrNilControl = errors.New("control callback must not be nil")

// UploadRejectedError reports that the back-end refused to make an
// uncombinable effect hardware-resident (for example, no free slot).
// The effect remains off the hardware; a fresh start request is required
// to retry. This is the only failure the protocol permits the back-end.
type UploadRejectedError struct {
	ID  int
	Err error
}

func (e *UploadRejectedError) Error() string {
	return fmt.Sprintf("upload of effect %d rejected by back-end: %v", e.ID, e.Err)
}

func (e *UploadRejectedError) Unwrap() error {
	return e.Err
}

// IsUploadRejected reports whether err is (or wraps) an upload
// rejection.
func IsUploadRejected(err error) bool {
	var ur *UploadRejectedError
	return errors.As(err, &ur)
}

// ProtocolError reports a back-end returning failure for a command kind
// that is infallible by contract. This is a fatal misbehavior of the
// back-end, not a runtime condition the core recovers from: the device
// loop stops when it occurs.
type ProtocolError struct {
	Kind     device.CommandKind
	EffectID int
	Err      error
}

func (e *ProtocolError) Error() string {
	if e.EffectID != 0 {
		return fmt.Sprintf("protocol violation: back-end failed infallible command %s for effect %d: %v",
			e.Kind, e.EffectID, e.Err)
	}
	return fmt.Sprintf("protocol violation: back-end failed infallible command %s: %v", e.Kind, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsProtocolError reports whether err is (or wraps) a protocol
// violation.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
