package server

import (
	"github.com/canonical/seatd/internal/conn"
	"github.com/canonical/seatd/internal/logger"
	"github.com/canonical/seatd/internal/ucred"
	"github.com/canonical/seatd/internal/wire"
	"github.com/canonical/seatd/seat"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// ClientSession is the server-side per-connection handler described by
// spec.md §4.3: it owns the framed connection, the peer credentials
// captured at accept time, and (once attached) the seat.Client it
// drives. Every ClientSession is tagged with a correlation id so
// concurrent client lifecycles stay distinguishable in the log stream.
type ClientSession struct {
	id    uuid.UUID
	conn  *conn.Conn
	cred  ucred.Ucred
	log   *logger.Logger
	seats *Registry

	client *seat.Client
}

// newClientSession wraps an accepted connection. The returned session's
// seat.Client is not attached to any seat until OPEN_SEAT succeeds.
func newClientSession(c *conn.Conn, cred ucred.Ucred, seats *Registry, log *logger.Logger) *ClientSession {
	id := uuid.New()
	cs := &ClientSession{
		id:    id,
		conn:  c,
		cred:  cred,
		seats: seats,
		log:   log.With(logger.Ctx{"session": id.String(), "pid": cred.Pid, "uid": cred.Uid}),
	}
	cs.client = seat.NewClient(cred.Pid, int32(cred.Uid), int32(cred.Gid), cs)
	return cs
}

// SendEnableSeat implements seat.Notifier.
func (cs *ClientSession) SendEnableSeat() error {
	cs.conn.Put(wire.EncodeEmpty(wire.OpServerEnableSeat))
	return cs.conn.Flush()
}

// SendDisableSeat implements seat.Notifier.
func (cs *ClientSession) SendDisableSeat() error {
	cs.conn.Put(wire.EncodeEmpty(wire.OpServerDisableSeat))
	return cs.conn.Flush()
}

// ReadFromSocket performs the actual recvmsg(2) call. It touches only
// this session's own connection buffers, never shared seat state, so it
// is safe to call from a dedicated per-connection goroutine: spec.md
// §5's "all mutation of seat state happens on the server's main loop"
// guarantee is preserved by running Process (below) there instead.
func (cs *ClientSession) ReadFromSocket() error {
	n, err := cs.conn.Read()
	if err != nil {
		return err
	}
	if n == 0 {
		return errPeerClosed
	}
	return nil
}

// Process dispatches every complete message now buffered, per spec.md
// §4.3's on_readable. Must run on the daemon's single seat-mutation
// loop. A protocol framing error is returned to the caller, which must
// destroy the connection with no further reply.
func (cs *ClientSession) Process() error {
	for {
		hdrBytes, err := cs.conn.Get(wire.HeaderSize)
		if err != nil {
			break
		}
		hdr := wire.DecodeHeader(hdrBytes)

		if err := wire.ValidatePayloadSize(hdr.Opcode, hdr.Size); err != nil {
			return err
		}

		if cs.conn.Pending() < int(hdr.Size) {
			_ = cs.conn.Restore(wire.HeaderSize)
			break
		}

		payload, err := cs.conn.Get(int(hdr.Size))
		if err != nil {
			return err
		}

		if err := cs.dispatch(hdr.Opcode, payload); err != nil {
			return err
		}
	}

	return cs.conn.Flush()
}

func (cs *ClientSession) dispatch(op wire.Opcode, payload []byte) error {
	switch op {
	case wire.OpOpenSeat:
		return cs.handleOpenSeat()
	case wire.OpCloseSeat:
		return cs.handleCloseSeat()
	case wire.OpOpenDevice:
		return cs.handleOpenDevice(payload)
	case wire.OpCloseDevice:
		return cs.handleCloseDevice(payload)
	case wire.OpSwitchSession:
		return cs.handleSwitchSession(payload)
	case wire.OpDisableSeat:
		return cs.handleDisableSeatAck()
	default:
		return &wire.ErrFraming{Reason: "unexpected client-to-server opcode"}
	}
}

// handleOpenSeat implements spec.md §4.3's OPEN_SEAT. Seat name
// resolution is hard-coded to "seat0" — an acknowledged limitation, not
// an oversight; see spec.md §9's open question on seat naming.
func (cs *ClientSession) handleOpenSeat() error {
	if cs.client.Seat() != nil {
		return cs.sendError(unix.EBUSY)
	}

	const seatName = "seat0"
	st, ok := cs.seats.Get(seatName)
	if !ok {
		return cs.sendError(unix.ENOENT)
	}

	if err := st.AddClient(cs.client); err != nil {
		return cs.sendError(seat.AsErrno(err))
	}

	cs.conn.Put(wire.EncodeString(wire.OpSeatOpened, seatName))

	if err := st.OpenClient(cs.client); err != nil {
		cs.log.Warn("failed to enable newly attached client", logger.Ctx{"err": err})
	}

	return nil
}

func (cs *ClientSession) handleCloseSeat() error {
	st := cs.client.Seat()
	if st == nil {
		return cs.sendError(unix.EINVAL)
	}

	_ = st.RemoveClient(cs.client)
	cs.conn.Put(wire.EncodeEmpty(wire.OpSeatClosed))
	return nil
}

func (cs *ClientSession) handleOpenDevice(payload []byte) error {
	st := cs.client.Seat()
	if st == nil {
		return cs.sendError(unix.EINVAL)
	}

	path, err := wire.DecodeString(payload)
	if err != nil {
		return err
	}
	if len(path) > wire.MaxPathLen {
		return &wire.ErrFraming{Reason: "oversize device path"}
	}

	dev, err := st.OpenDevice(cs.client, path)
	if err != nil {
		return cs.sendError(seat.AsErrno(err))
	}

	dup, err := unix.Dup(dev.Fd)
	if err != nil {
		// Mirrors original_source/seatd/client.c's handling of this exact
		// dup failure: release the ledger entry seat.OpenDevice just
		// created rather than leaving it stranded with no id ever
		// communicated to the client.
		_ = st.CloseDevice(cs.client, dev.ID)
		return cs.sendError(unix.EMFILE)
	}
	_, _ = unix.FcntlInt(uintptr(dup), unix.F_SETFD, unix.FD_CLOEXEC)

	cs.conn.PutFd(dup)
	cs.conn.Put(wire.EncodeI32(wire.OpDeviceOpened, dev.ID))
	return nil
}

func (cs *ClientSession) handleCloseDevice(payload []byte) error {
	st := cs.client.Seat()
	if st == nil {
		return cs.sendError(unix.EINVAL)
	}

	id, err := wire.DecodeI32(payload)
	if err != nil {
		return err
	}

	if err := st.CloseDevice(cs.client, id); err != nil {
		return cs.sendError(seat.AsErrno(err))
	}

	cs.conn.Put(wire.EncodeI32(wire.OpDeviceClosed, id))
	return nil
}

func (cs *ClientSession) handleSwitchSession(payload []byte) error {
	st := cs.client.Seat()
	if st == nil {
		return cs.sendError(unix.EINVAL)
	}

	session, err := wire.DecodeI32(payload)
	if err != nil {
		return err
	}

	if err := st.SetNextSession(cs.client, session); err != nil {
		return cs.sendError(seat.AsErrno(err))
	}

	return nil
}

func (cs *ClientSession) handleDisableSeatAck() error {
	st := cs.client.Seat()
	if st == nil || st.ActiveClient() != cs.client {
		return cs.sendError(unix.EPERM)
	}

	if err := st.AckDisableClient(cs.client); err != nil {
		return cs.sendError(seat.AsErrno(err))
	}

	return nil
}

func (cs *ClientSession) sendError(errno unix.Errno) error {
	cs.conn.Put(wire.EncodeError(errno))
	return nil
}

// Destroy implements spec.md §4.3's destroy: detach from the seat
// (transitively closing all devices), close the connection, and
// release any fds still queued.
func (cs *ClientSession) Destroy() {
	if st := cs.client.Seat(); st != nil {
		_ = st.RemoveClient(cs.client)
	}
	_ = cs.conn.Close()
}
