package seat

import "golang.org/x/sys/unix"

// Error is a state or resource error carrying the POSIX errno spec.md §7
// says the server chooses for the ERROR{error_code} wire reply.
// Protocol framing errors are represented separately by wire.ErrFraming
// and never reach this type: they terminate the connection with no
// reply at all.
type Error struct {
	Errno unix.Errno
	msg   string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.Errno }

func newErr(errno unix.Errno, msg string) *Error {
	return &Error{Errno: errno, msg: msg}
}

// Sentinel state/resource errors for the handlers described in spec.md
// §4.3 and the state machine in §4.4.
var (
	ErrAlreadyAttached  = newErr(unix.EBUSY, "seat: client already attached to a seat")
	ErrVTBoundOccupied  = newErr(unix.EBUSY, "seat: vt-bound seat already has an attached client")
	ErrClientReused     = newErr(unix.EINVAL, "seat: client has already been used and cannot reattach")
	ErrNotAttached      = newErr(unix.EINVAL, "seat: client is not attached to this seat")
	ErrInvalidState     = newErr(unix.EBUSY, "seat: operation not valid for the client's current state")
	ErrDeviceLimit      = newErr(unix.EMFILE, "seat: seat device limit reached")
	ErrUnknownDevice    = newErr(unix.EBADF, "seat: unknown device id")
	ErrNotActiveClient  = newErr(unix.EPERM, "seat: client is not the seat's active client")
	ErrInvalidSession   = newErr(unix.EINVAL, "seat: invalid or unknown session id")
	ErrNotASeatDevice   = newErr(unix.ENOENT, "seat: path is not a recognized seat device")
	ErrEvdevReactivate  = newErr(unix.EINVAL, "seat: evdev devices cannot be server-reactivated")
)

// AsErrno extracts the wire errno to report for err: a seat *Error's own
// errno, a bare unix.Errno (e.g. from a lower-level open/ioctl failure)
// unchanged, and ENOMEM for any other error (spec.md §7's "resource
// error" class).
func AsErrno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
		return e.Errno
	}
	if errno, ok := err.(unix.Errno); ok {
		return errno
	}
	return unix.ENOMEM
}
