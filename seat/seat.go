// Package seat implements the per-seat policy engine: it tracks clients
// and their devices, gates activation against VT state, drives DRM
// master / evdev revoke transitions, and mediates VT-switch handshakes.
// This is the core state machine spec.md §4.4 describes; every method
// here corresponds to one of its named operations.
//
// Per spec.md §9, clients and devices are held in growable slices with
// stable ids rather than intrusive linked lists, and the active/next
// client weak references are cleared explicitly on removal rather than
// left to dangle.
package seat

import (
	"path/filepath"

	"github.com/canonical/seatd/internal/logger"
	"golang.org/x/sys/unix"
)

// MaxSeatDevices bounds the number of simultaneously open, ref-count
// deduplicated device ledger entries a single client may hold (recovered
// from original_source/seatd/seat.c, which counts only the opening
// client's own device list; spec.md names the EMFILE wire error but not
// this bound).
const MaxSeatDevices = 10

// Terminal is the VT control surface a vt-bound seat drives. See
// internal/vtterm for the concrete Linux implementation; the seat
// package depends only on this interface, per spec.md's treatment of
// the kernel ioctls as an effectful black box.
type Terminal interface {
	CurrentVT() (int, error)
	Open(vt int) error
	Close() error
	OpenAndClose(vt int) error
	SwitchTo(vt int) error
	AckAcquire() error
	AckRelease() error
}

// DeviceOpener resolves a canonical seat device path to an open fd plus
// its classification and activation backend. internal/devtype +
// internal/drmev provide the concrete implementation; kept as an
// interface here so the state machine never imports raw device I/O.
type DeviceOpener interface {
	Open(path string) (fd int, devType DeviceType, backend DeviceBackend, err error)
}

// Seat is the per-seat policy engine: clients, their devices, VT
// binding, and the active/next-client arbitration state.
type Seat struct {
	Name    string
	VTBound bool

	curVT int // -1 = unknown

	term   Terminal
	opener DeviceOpener
	log    *logger.Logger

	clients      []*Client
	activeClient *Client
	nextClient   *Client
	sessionCnt   int32
}

// New constructs a seat. term may be nil for a non-vt-bound seat.
func New(name string, vtBound bool, term Terminal, opener DeviceOpener, log *logger.Logger) *Seat {
	return &Seat{
		Name:    name,
		VTBound: vtBound,
		curVT:   -1,
		term:    term,
		opener:  opener,
		log:     log,
	}
}

// ActiveClient returns the seat's current active client, or nil.
func (s *Seat) ActiveClient() *Client { return s.activeClient }

// Clients returns the seat's attached clients in attach order. Owned by
// the seat; callers must not mutate it.
func (s *Seat) Clients() []*Client { return s.clients }

// CurrentVT returns the seat's last-known current VT number, or -1.
func (s *Seat) CurrentVT() int { return s.curVT }

// AddClient implements seat_add_client (spec.md §4.4.1): reject if
// already attached, reject if vt-bound and occupied, reject reuse of a
// previously-closed client, assign a session id, and link into the
// client list.
func (s *Seat) AddClient(c *Client) error {
	if c.seat != nil {
		return ErrAlreadyAttached
	}
	if c.session != -1 {
		return ErrClientReused
	}
	if s.VTBound && len(s.clients) > 0 {
		return ErrVTBoundOccupied
	}

	if s.VTBound {
		vt, err := s.term.CurrentVT()
		if err != nil {
			return err
		}
		c.session = int32(vt)
	} else {
		c.session = s.sessionCnt
		s.sessionCnt++
	}

	c.seat = s
	s.clients = append(s.clients, c)
	return nil
}

// OpenClient implements seat_open_client (spec.md §4.4.2): opens the VT
// if vt-bound, reactivates every device in the client's ledger, marks
// the client ACTIVE, and sends ENABLE_SEAT.
func (s *Seat) OpenClient(c *Client) error {
	if c.state != StateNew && c.state != StateDisabled {
		return ErrInvalidState
	}
	if s.activeClient != nil {
		return ErrInvalidState
	}

	if s.VTBound {
		if err := s.term.Open(int(c.session)); err != nil {
			return err
		}
	}

	for _, d := range c.devices {
		if err := d.activate(); err != nil {
			if d.Type == DeviceEVDEV {
				// Intentional asymmetry (spec.md §4.4.2): evdev cannot be
				// server-reactivated. Log and proceed rather than abort.
				s.log.Warn("evdev device could not be server-reactivated", logger.Ctx{
					"seat": s.Name, "path": d.Path, "err": err,
				})
				continue
			}
			if s.VTBound {
				_ = s.term.Close()
			}
			return err
		}
	}

	c.state = StateActive
	s.activeClient = c

	if err := c.notifier.SendEnableSeat(); err != nil {
		s.log.Warn("failed to deliver enable_seat", logger.Ctx{"seat": s.Name, "err": err})
	}

	return nil
}

// DisableClient implements seat_disable_client (spec.md §4.4.3):
// deactivates every device without closing its fd, moves the client to
// PENDING_DISABLE, and sends DISABLE_SEAT.
func (s *Seat) DisableClient(c *Client) error {
	if c.state != StateActive {
		return ErrInvalidState
	}

	for _, d := range c.devices {
		_ = d.deactivate()
	}

	c.state = StatePendingDisable

	if err := c.notifier.SendDisableSeat(); err != nil {
		s.log.Warn("failed to deliver disable_seat", logger.Ctx{"seat": s.Name, "err": err})
	}

	return nil
}

// AckDisableClient implements seat_ack_disable_client (spec.md §4.4.4):
// marks the client DISABLED, and if it was the active client, promotes
// a successor via activate.
func (s *Seat) AckDisableClient(c *Client) error {
	if c.state != StatePendingDisable {
		return ErrInvalidState
	}

	c.state = StateDisabled

	if s.activeClient == c {
		s.activeClient = nil
		s.activate()
	}

	return nil
}

// activate implements seat_activate (spec.md §4.4.5): chooses the next
// client to open when there is no active client, preferring a queued
// next_client, then (vt-bound) the client matching cur_vt, then the
// head of the client list.
func (s *Seat) activate() {
	if s.activeClient != nil {
		return
	}

	var next *Client
	switch {
	case s.nextClient != nil:
		next = s.nextClient
		s.nextClient = nil
	case len(s.clients) == 0:
		return
	case s.VTBound && s.curVT == -1:
		return
	case s.VTBound:
		for _, cl := range s.clients {
			if cl.session == int32(s.curVT) {
				next = cl
				break
			}
		}
		if next == nil {
			return
		}
	default:
		next = s.clients[0]
	}

	if err := s.OpenClient(next); err != nil {
		s.log.Warn("failed to activate next client", logger.Ctx{"seat": s.Name, "err": err})
	}
}

// SetNextSession implements seat_set_next_session (spec.md §4.4.6).
func (s *Seat) SetNextSession(c *Client, session int32) error {
	if c.state != StateActive {
		return ErrInvalidState
	}
	if session <= 0 {
		return ErrInvalidSession
	}
	if session == c.session {
		return nil
	}
	if s.nextClient != nil {
		// A switch is already queued; spec.md: no-op.
		return nil
	}

	if s.VTBound {
		return s.term.SwitchTo(int(session))
	}

	var target *Client
	for _, cl := range s.clients {
		if cl.session == session {
			target = cl
			break
		}
	}
	if target == nil {
		return ErrInvalidSession
	}

	s.nextClient = target
	return s.DisableClient(c)
}

// VTActivate implements seat_vt_activate (spec.md §4.4.7): the kernel's
// VT-acquire signal. A no-op on non-vt-bound seats.
func (s *Seat) VTActivate() error {
	if !s.VTBound {
		return nil
	}

	vt, err := s.term.CurrentVT()
	if err != nil {
		return err
	}
	s.curVT = vt

	if err := s.term.AckAcquire(); err != nil {
		s.log.Warn("failed to ack vt acquire", logger.Ctx{"seat": s.Name, "err": err})
	}

	if s.activeClient == nil {
		s.activate()
	}

	return nil
}

// VTRelease implements seat_vt_release (spec.md §4.4.7): the kernel's
// VT-release signal. A no-op on non-vt-bound seats.
//
// Disable is initiated before the release ack is sent, matching the
// documented subtlety in spec.md: under process-controlled VT
// switching the kernel won't complete the switch until release is
// acked, so it's correct to start the disable handshake first — the
// hardware is already safe because devices were revoked/dropped at
// disable initiation, not at ack time.
func (s *Seat) VTRelease() error {
	if !s.VTBound {
		return nil
	}

	if vt, err := s.term.CurrentVT(); err == nil {
		s.curVT = vt
	}

	if s.activeClient != nil {
		_ = s.DisableClient(s.activeClient)
	}

	if err := s.term.AckRelease(); err != nil {
		s.log.Warn("failed to ack vt release", logger.Ctx{"seat": s.Name, "err": err})
	}

	s.curVT = -1
	return nil
}

// RemoveClient implements seat_remove_client (spec.md §4.4.8): closes
// every device the client still has open, then detaches it.
func (s *Seat) RemoveClient(c *Client) error {
	for _, d := range append([]*Device(nil), c.devices...) {
		_ = s.closeDevice(c, d)
	}
	return s.closeClient(c)
}

// closeClient implements seat_close_client (spec.md §4.4.8).
func (s *Seat) closeClient(c *Client) error {
	wasActive := s.activeClient == c

	s.removeFromList(c)

	if wasActive {
		s.activeClient = nil
		s.activate()
	}

	if s.VTBound {
		if wasActive && s.activeClient == nil {
			_ = s.term.Close()
		} else if !wasActive {
			_ = s.term.OpenAndClose(int(c.session))
		}
	}

	c.state = StateClosed
	c.seat = nil
	return nil
}

func (s *Seat) removeFromList(c *Client) {
	for i, cl := range s.clients {
		if cl == c {
			s.clients = append(s.clients[:i], s.clients[i+1:]...)
			break
		}
	}
	if s.nextClient == c {
		s.nextClient = nil
	}
}

// Destroy implements seat_destroy (spec.md §4.4.8): destroys every
// client then closes any current tty.
func (s *Seat) Destroy() {
	for _, c := range append([]*Client(nil), s.clients...) {
		_ = s.RemoveClient(c)
	}
	if s.VTBound {
		_ = s.term.Close()
	}
}

// OpenDevice implements seat_open_device (spec.md §3, §4.4.2): legal
// only for the seat's current active client (EPERM otherwise, matching
// original_source/seatd/seat.c's CLIENT_ACTIVE assertion). Opening the
// same canonical path twice from the same client coalesces into one
// ref-counted ledger entry. A fresh device's id is the max existing id
// in the client's own ledger + 1, not a sticky per-client counter, so
// the id of the highest-id device is reused once CloseDevice frees it.
func (s *Seat) OpenDevice(c *Client, path string) (*Device, error) {
	if c.seat != s {
		return nil, ErrNotAttached
	}
	if c.state != StateActive {
		return nil, ErrNotActiveClient
	}

	canon, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, newErr(unix.ENOENT, "seat: device path does not resolve")
	}

	for _, d := range c.devices {
		if d.Path == canon {
			d.RefCount++
			return d, nil
		}
	}

	if len(c.devices) >= MaxSeatDevices {
		return nil, ErrDeviceLimit
	}

	fd, devType, backend, err := s.opener.Open(canon)
	if err != nil {
		return nil, err
	}

	var id int32 = 1
	for _, d := range c.devices {
		if d.ID >= id {
			id = d.ID + 1
		}
	}

	dev := &Device{ID: id, Path: canon, Fd: fd, RefCount: 1, Type: devType, Backend: backend}

	// c is guaranteed active at this point, so the device is activated
	// unconditionally, same as original_source/seatd/seat.c's
	// seat_open_device (it only reaches here under that same guarantee).
	if err := dev.activate(); err != nil {
		if devType != DeviceEVDEV {
			_ = unix.Close(fd)
			return nil, err
		}
		// A freshly opened evdev fd has not been revoked: it is active
		// from open even though the backend refuses reactivation.
		dev.Active = true
	}

	c.devices = append(c.devices, dev)
	return dev, nil
}

// CloseDevice implements seat_close_device (spec.md §3): decrements the
// ref count, only actually closing the fd once it reaches zero.
func (s *Seat) CloseDevice(c *Client, id int32) error {
	if c.seat != s {
		return ErrNotAttached
	}

	d, ok := c.Device(id)
	if !ok {
		return ErrUnknownDevice
	}

	return s.closeDevice(c, d)
}

func (s *Seat) closeDevice(c *Client, d *Device) error {
	d.RefCount--
	if d.RefCount > 0 {
		return nil
	}

	if d.Active {
		_ = d.deactivate()
	}
	_ = unix.Close(d.Fd)

	for i, cd := range c.devices {
		if cd == d {
			c.devices = append(c.devices[:i], c.devices[i+1:]...)
			break
		}
	}

	return nil
}
