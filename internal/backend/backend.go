// Package backend hosts ControlFunc wiring helpers shared by the real
// and simulated device back-ends.
package backend

import "github.com/roach88/ffmix/internal/device"

// Tee fans each command out to several back-ends in order and returns
// the first error. Command payloads stay valid only for the callback,
// so every sink must copy what it retains.
func Tee(sinks ...device.ControlFunc) device.ControlFunc {
	return func(data any, cmd *device.Command) error {
		var first error
		for _, sink := range sinks {
			if err := sink(data, cmd); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
}

// Discard accepts every command and does nothing. A stand-in where a
// session needs a back-end but no output.
func Discard(any, *device.Command) error { return nil }
