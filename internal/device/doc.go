// Package device defines the outbound command protocol between the
// coordination core and a hardware-specific back-end.
//
// A Command is a tagged union carrying exactly the payload relevant to
// its kind: a simple force vector, a rumble force, or a reference to an
// uncombinable effect. Commands are transient; they are issued to the
// back-end synchronously, consumed during the callback invocation, and
// never persisted by the core. A back-end that needs command data after
// the callback returns must copy it.
//
// The back-end itself is a capability injected at registration time (a
// ControlFunc), not a compile-time dependency, keeping the core free of
// hardware-specific assumptions.
//
// # Protocol ordering guarantees
//
// The core guarantees, and back-ends may rely on absolutely:
//
//   - UploadUncombinable always precedes StartUncombinable for an effect.
//   - StartUncombinable and StopUncombinable are only sent for an effect
//     whose upload succeeded.
//   - EraseUncombinable is only sent for a non-playing resident effect,
//     and only once per residency.
//   - Only UploadUncombinable may fail. A non-nil error from any other
//     command kind is a protocol violation by the back-end.
package device
