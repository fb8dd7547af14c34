// Package seatclient implements spec.md §4.6's client-side backend: the
// codec mirror plus the synchronous/non-blocking dispatch loop that
// drives it.
//
// Per spec.md §9's polymorphic-backend design note, backends are a
// tagged variant selected by name (LIBSEAT_BACKEND) rather than an open
// inheritance hierarchy; see backend_seatd.go for the one implementation
// in scope. The logind-equivalent backend and the built-in
// fork/socketpair backend are named here only as documented gaps —
// spec.md §1 explicitly excludes both from this implementation.
package seatclient

import (
	"errors"

	"github.com/canonical/seatd/internal/config"
	"github.com/canonical/seatd/internal/logger"
)

// Listener receives the two asynchronous seat events a Handle's
// Dispatch call may fire, mirroring spec.md §6's library ABI
// ("Listener with two callbacks: enable_seat, disable_seat, each
// receiving the handle and opaque user data").
type Listener interface {
	EnableSeat(h *Handle, userdata any)
	DisableSeat(h *Handle, userdata any)
}

// Backend is the tagged-variant operation set every concrete backend
// implements. Handle is a thin dispatcher over one Backend.
type Backend interface {
	SeatName() string
	CloseSeat() error
	OpenDevice(path string) (fd int, id int32, err error)
	CloseDevice(id int32) error
	SwitchSession(session int32) error
	DisableSeat() error
	Fd() (int, error)
	Dispatch(timeoutMs int) (int, error)
	Close() error

	// bind gives the backend a reference to the Handle wrapping it,
	// so it can pass the handle back into Listener callbacks.
	bind(h *Handle)
}

// ErrNoBackend is returned by OpenSeat when no registered backend
// could open a seat, mirroring libseat_open_seat's ENOSYS.
var ErrNoBackend = errors.New("seatclient: no backend could open a seat")

// ErrBackendUnavailable marks a named backend that is recognized but not
// implemented in this build.
var ErrBackendUnavailable = errors.New("seatclient: backend not available in this build")

type namedOpener struct {
	name string
	open func(Listener, any) (Backend, error)
}

// registry lists every backend name libseat knows about, in probing
// order, matching original_source/libseat/libseat.c's static impls[]
// table. Only "seatd" has a working implementation; the others report
// ErrBackendUnavailable so LIBSEAT_BACKEND=logind (for example) fails
// the way a build without that backend compiled in would.
var registry = []namedOpener{
	{name: "seatd", open: openSeatdBackend},
	{name: "logind", open: unavailableBackend},
	{name: "builtin", open: unavailableBackend},
}

func unavailableBackend(Listener, any) (Backend, error) {
	return nil, ErrBackendUnavailable
}

// Handle is the opaque client handle spec.md §6 names.
type Handle struct {
	backend Backend
	log     *logger.Logger
}

// log is the package-level library logger, leveled by SEATD_LOGLEVEL
// per spec.md §6 ("library log verbosity"). Every OpenSeat call and
// backend probing decision logs through it.
var log = logger.New(config.ResolveLogLevel(""))

// OpenSeat tries each registered backend in order, honoring
// LIBSEAT_BACKEND to restrict probing to one name, exactly as
// libseat_open_seat does.
func OpenSeat(listener Listener, userdata any) (*Handle, error) {
	want := config.ResolveBackend()

	for _, reg := range registry {
		if want != "" && reg.name != want {
			continue
		}

		b, err := reg.open(listener, userdata)
		if err != nil {
			log.Debug("backend probe failed", logger.Ctx{"backend": reg.name, "err": err})
			continue
		}

		h := &Handle{backend: b, log: log}
		b.bind(h)
		log.Info("seat opened", logger.Ctx{"backend": reg.name})
		return h, nil
	}

	return nil, ErrNoBackend
}

// SeatName returns the name of the seat this handle opened.
func (h *Handle) SeatName() string { return h.backend.SeatName() }

// CloseSeat detaches from the seat.
func (h *Handle) CloseSeat() error { return h.backend.CloseSeat() }

// OpenDevice opens path via the seat broker and returns a local fd plus
// the broker-assigned device id.
func (h *Handle) OpenDevice(path string) (int, int32, error) { return h.backend.OpenDevice(path) }

// CloseDevice releases a device previously opened with OpenDevice.
func (h *Handle) CloseDevice(id int32) error { return h.backend.CloseDevice(id) }

// SwitchSession requests a VT/session switch. Fire-and-forget.
func (h *Handle) SwitchSession(session int32) error { return h.backend.SwitchSession(session) }

// DisableSeat acknowledges a DISABLE_SEAT notification. Fire-and-forget.
func (h *Handle) DisableSeat() error { return h.backend.DisableSeat() }

// Fd exposes the backend's socket fd for the caller's own event loop.
func (h *Handle) Fd() (int, error) { return h.backend.Fd() }

// Dispatch drains the socket and delivers any queued ENABLE_SEAT /
// DISABLE_SEAT events as Listener callbacks, returning the number of
// opcodes processed.
func (h *Handle) Dispatch(timeoutMs int) (int, error) { return h.backend.Dispatch(timeoutMs) }

// Close tears down the backend connection.
func (h *Handle) Close() error { return h.backend.Close() }
