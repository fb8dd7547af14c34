// Package vtterm implements the kernel-specific virtual-terminal ioctls
// that spec.md §1 names but specifies only by effect: terminal_open,
// switch_vt, ack_acquire, ack_release, set_graphics, set_keyboard and
// set_process_switching. The seat state machine in package seat depends
// only on the seat.Terminal interface; this package supplies the one
// concrete Linux implementation.
package vtterm

// Terminal is the VT control surface a seat uses. Implementations open a
// tty device node for a given VT number and drive its mode via ioctls;
// the seat state machine treats this purely as an effectful black box,
// per spec.md. seat.Terminal declares the identical method set so the
// concrete Linux implementation below satisfies it without either
// package importing the other.
type Terminal interface {
	// CurrentVT reports the kernel's notion of the active VT number.
	CurrentVT() (int, error)

	// Open opens the tty for vt, enables process-controlled VT
	// switching, disables keyboard input, and puts it in graphics
	// mode (spec.md §4.4.2 step 1).
	Open(vt int) error

	// Close closes whichever tty is currently open on this seat,
	// restoring text mode and keyboard input first.
	Close() error

	// OpenAndClose opens vt, restores text mode and keyboard input,
	// and closes it again, used to clean up a VT this seat never
	// currently holds open (spec.md §4.4.8: "not active... open and
	// close its tty to restore keyboard/text-mode state").
	OpenAndClose(vt int) error

	// SwitchTo asks the kernel to switch the active VT to vt. The
	// actual changeover happens asynchronously via VT signals.
	SwitchTo(vt int) error

	// AckAcquire acknowledges a pending VT-acquire signal.
	AckAcquire() error

	// AckRelease acknowledges a pending VT-release signal.
	AckRelease() error
}
