package seatclient

import (
	"net"
	"os"
	"time"

	"github.com/canonical/seatd/internal/conn"
	"github.com/canonical/seatd/internal/wire"
	"golang.org/x/sys/unix"
)

// defaultSocketPath mirrors spec.md §6: default /run/seatd.sock,
// overridden by SEATD_SOCK.
const defaultSocketPath = "/run/seatd.sock"

type pendingEvent struct {
	enable bool // true: ENABLE_SEAT, false: DISABLE_SEAT
}

// seatdBackend is the one Backend implementation in scope: it speaks
// directly to a seatd-compatible broker over a unix socket.
type seatdBackend struct {
	conn     *conn.Conn
	listener Listener
	userdata any
	handle   *Handle

	seatName string
	pending  []pendingEvent
}

func openSeatdBackend(listener Listener, userdata any) (Backend, error) {
	path := os.Getenv("SEATD_SOCK")
	if path == "" {
		path = defaultSocketPath
	}

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return nil, err
	}

	uc, err := net.DialUnix("unix", nil, addr)
	if err != nil {
		return nil, err
	}

	if rc, err := uc.SyscallConn(); err == nil {
		_ = rc.Control(func(fd uintptr) {
			_ = conn.SetNonblock(int(fd), true)
			_, _ = unix.FcntlInt(fd, unix.F_SETFD, unix.FD_CLOEXEC)
		})
	}

	b := &seatdBackend{
		conn:     conn.New(uc),
		listener: listener,
		userdata: userdata,
	}

	if err := b.openSeatHandshake(); err != nil {
		_ = b.conn.Close()
		return nil, err
	}

	return b, nil
}

func (b *seatdBackend) bind(h *Handle) { b.handle = h }

func (b *seatdBackend) openSeatHandshake() error {
	b.conn.Put(wire.EncodeEmpty(wire.OpOpenSeat))
	if err := b.conn.Flush(); err != nil {
		return err
	}

	msg, err := b.awaitReply(wire.OpSeatOpened)
	if err != nil {
		return err
	}
	if msg.Header.Opcode == wire.OpError {
		errno, _ := wire.DecodeError(msg.Payload)
		return errno
	}

	name, err := wire.DecodeString(msg.Payload)
	if err != nil {
		return err
	}

	b.seatName = name
	return nil
}

func (b *seatdBackend) SeatName() string { return b.seatName }

func (b *seatdBackend) CloseSeat() error {
	b.conn.Put(wire.EncodeEmpty(wire.OpCloseSeat))
	if err := b.conn.Flush(); err != nil {
		return err
	}

	msg, err := b.awaitReply(wire.OpSeatClosed)
	if err != nil {
		return err
	}
	if msg.Header.Opcode == wire.OpError {
		errno, _ := wire.DecodeError(msg.Payload)
		return errno
	}
	return nil
}

func (b *seatdBackend) OpenDevice(path string) (int, int32, error) {
	if len(path) > wire.MaxPathLen {
		return -1, 0, &wire.ErrFraming{Reason: "device path too long"}
	}

	b.conn.Put(wire.EncodeString(wire.OpOpenDevice, path))
	if err := b.conn.Flush(); err != nil {
		return -1, 0, err
	}

	msg, err := b.awaitReply(wire.OpDeviceOpened)
	if err != nil {
		return -1, 0, err
	}
	if msg.Header.Opcode == wire.OpError {
		errno, _ := wire.DecodeError(msg.Payload)
		return -1, 0, errno
	}

	id, err := wire.DecodeI32(msg.Payload)
	if err != nil {
		return -1, 0, err
	}

	fd, err := b.conn.GetFd()
	if err != nil {
		return -1, 0, err
	}

	return fd, id, nil
}

func (b *seatdBackend) CloseDevice(id int32) error {
	b.conn.Put(wire.EncodeI32(wire.OpCloseDevice, id))
	if err := b.conn.Flush(); err != nil {
		return err
	}

	msg, err := b.awaitReply(wire.OpDeviceClosed)
	if err != nil {
		return err
	}
	if msg.Header.Opcode == wire.OpError {
		errno, _ := wire.DecodeError(msg.Payload)
		return errno
	}

	gotID, err := wire.DecodeI32(msg.Payload)
	if err != nil {
		return err
	}
	if gotID != id {
		return &wire.ErrFraming{Reason: "DEVICE_CLOSED id mismatch"}
	}

	return nil
}

func (b *seatdBackend) SwitchSession(session int32) error {
	b.conn.Put(wire.EncodeI32(wire.OpSwitchSession, session))
	return b.conn.Flush()
}

func (b *seatdBackend) DisableSeat() error {
	b.conn.Put(wire.EncodeEmpty(wire.OpDisableSeat))
	return b.conn.Flush()
}

func (b *seatdBackend) Fd() (int, error) {
	return int(mustFd(b.conn)), nil
}

func mustFd(c *conn.Conn) uintptr {
	fd, err := c.Fd()
	if err != nil {
		return 0
	}
	return fd
}

func (b *seatdBackend) Close() error {
	return b.conn.Close()
}

// parseOnce consumes at most the messages already buffered. Every
// SERVER_ENABLE_SEAT/SERVER_DISABLE_SEAT it finds is queued, never
// returned, per spec.md §9's "load-bearing concurrency contract": a
// server notification arriving while a synchronous call is in flight
// must not fire a callback from inside that call.
//
// If expectingReply is true and a non-notification message is found,
// it is the awaited reply and is returned. If expectingReply is false
// (background Dispatch, no outstanding request) a non-notification
// message here is a protocol violation.
func (b *seatdBackend) parseOnce(expectingReply bool) (*wire.Message, error) {
	for {
		hdrBytes, err := b.conn.Get(wire.HeaderSize)
		if err != nil {
			return nil, nil
		}

		hdr := wire.DecodeHeader(hdrBytes)
		if err := wire.ValidatePayloadSize(hdr.Opcode, hdr.Size); err != nil {
			return nil, err
		}

		if b.conn.Pending() < int(hdr.Size) {
			_ = b.conn.Restore(wire.HeaderSize)
			return nil, nil
		}

		payload, err := b.conn.Get(int(hdr.Size))
		if err != nil {
			return nil, err
		}

		if hdr.Opcode == wire.OpServerEnableSeat || hdr.Opcode == wire.OpServerDisableSeat {
			b.pending = append(b.pending, pendingEvent{enable: hdr.Opcode == wire.OpServerEnableSeat})
			continue
		}

		if !expectingReply {
			return nil, &wire.ErrFraming{Reason: "unexpected reply opcode outside a synchronous call"}
		}

		return &wire.Message{Header: hdr, Payload: payload}, nil
	}
}

// awaitReply implements spec.md §4.6's synchronous dispatch loop:
// parse any pending messages; if the awaited reply isn't at the head
// yet, block until more data arrives; repeat.
func (b *seatdBackend) awaitReply(want wire.Opcode) (*wire.Message, error) {
	for {
		msg, err := b.parseOnce(true)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			if msg.Header.Opcode != want && msg.Header.Opcode != wire.OpError {
				return nil, &wire.ErrFraming{Reason: "unexpected reply opcode"}
			}
			return msg, nil
		}

		if err := b.conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, err
		}
		if _, err := b.conn.Read(); err != nil {
			return nil, err
		}
	}
}

// Dispatch implements spec.md §4.6's dispatch(timeout): a single
// non-blocking parse, a bounded read, a final parse, then callback
// drain.
func (b *seatdBackend) Dispatch(timeoutMs int) (int, error) {
	if _, err := b.parseOnce(false); err != nil {
		return -1, err
	}

	effectiveTimeout := timeoutMs
	if len(b.pending) > 0 {
		effectiveTimeout = 0
	}

	if err := b.waitReadable(effectiveTimeout); err != nil {
		return -1, err
	}

	if _, err := b.parseOnce(false); err != nil {
		return -1, err
	}

	return b.executeEvents(), nil
}

func (b *seatdBackend) waitReadable(timeoutMs int) error {
	if timeoutMs < 0 {
		if err := b.conn.SetReadDeadline(time.Time{}); err != nil {
			return err
		}
	} else {
		if err := b.conn.SetReadDeadline(time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)); err != nil {
			return err
		}
	}

	_, err := b.conn.Read()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil
		}
		return err
	}

	return nil
}

func (b *seatdBackend) executeEvents() int {
	events := b.pending
	b.pending = nil

	for _, e := range events {
		if e.enable {
			b.listener.EnableSeat(b.handle, b.userdata)
		} else {
			b.listener.DisableSeat(b.handle, b.userdata)
		}
	}

	return len(events)
}
