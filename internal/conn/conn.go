// Package conn implements the framed, full-duplex connection described by
// seatd's wire protocol: an inbound/outbound byte buffer pair plus an
// inbound/outbound ancillary-fd queue, with rewindable byte consumption
// so callers can try-parse a header before committing to it.
//
// The SCM_RIGHTS handling (ReadMsgUnix/WriteMsgUnix plus
// ParseSocketControlMessage/ParseUnixRights) follows the same pattern
// used by vhost-user protocol servers passing memory-region fds over a
// unix socket.
package conn

import (
	"errors"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// ErrShortRead is returned by Get when fewer than n bytes are buffered.
var ErrShortRead = errors.New("conn: short read, not enough buffered bytes")

// ErrNoFd is returned by GetFd when the inbound fd queue is empty.
var ErrNoFd = errors.New("conn: no ancillary fd queued")

// ErrRestoreUnderflow is returned by Restore when asked to un-consume more
// bytes than have actually been consumed since the last compaction.
var ErrRestoreUnderflow = errors.New("conn: restore exceeds consumed bytes")

// maxAncillaryFds bounds how many fds a single recvmsg call will accept;
// seatd only ever passes one fd per message (DEVICE_OPENED) but a
// generous bound avoids rejecting well-formed traffic with batched
// acks.
const maxAncillaryFds = 16

const readChunk = 4096

// Conn is a framed wrapper over one AF_UNIX SOCK_STREAM connection.
type Conn struct {
	uc *net.UnixConn

	inBuf []byte
	inOff int
	inFds []int

	outBuf []byte
	outFds []int
}

// New wraps an already-connected unix socket.
func New(uc *net.UnixConn) *Conn {
	return &Conn{uc: uc}
}

// Put appends bytes to the outbound buffer.
func (c *Conn) Put(b []byte) {
	c.outBuf = append(c.outBuf, b...)
}

// PutFd enqueues fd for ancillary transmission with the next flush that
// carries bytes. The connection takes ownership of fd: it is closed on
// teardown if never sent.
func (c *Conn) PutFd(fd int) {
	c.outFds = append(c.outFds, fd)
}

// Flush writes as much of the outbound buffer as possible. Any queued fds
// are attached as SCM_RIGHTS ancillary data to the first non-empty write
// of this call. On EAGAIN the remainder stays buffered and Flush returns
// nil; any other error is returned and the connection should be torn
// down by the caller.
func (c *Conn) Flush() error {
	for len(c.outBuf) > 0 {
		var oob []byte
		if len(c.outFds) > 0 {
			oob = unix.UnixRights(c.outFds...)
		}

		n, _, err := c.uc.WriteMsgUnix(c.outBuf, oob, nil)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return nil
			}
			return err
		}

		if oob != nil {
			c.outFds = c.outFds[:0]
		}
		c.outBuf = c.outBuf[n:]
	}
	return nil
}

// Read receives bytes and any ancillary fds into the inbound queues. It
// returns the number of bytes read; 0 means the peer closed the
// connection. Fds received are marked close-on-exec.
func (c *Conn) Read() (int, error) {
	c.compact()

	buf := make([]byte, readChunk)
	oob := make([]byte, unix.CmsgSpace(maxAncillaryFds*4))

	n, oobn, _, _, err := c.uc.ReadMsgUnix(buf, oob)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		c.inBuf = append(c.inBuf, buf[:n]...)
	}

	if oobn > 0 {
		scms, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err == nil {
			for _, scm := range scms {
				fds, err := unix.ParseUnixRights(&scm)
				if err != nil {
					continue
				}
				for _, fd := range fds {
					_, _ = unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC)
					c.inFds = append(c.inFds, fd)
				}
			}
		}
	}

	return n, nil
}

// compact discards already-consumed bytes once no more restores can
// plausibly reference them, keeping the inbound buffer from growing
// without bound across many small messages. Called only at the start of
// Read, by which point any header-peek restore has already happened.
func (c *Conn) compact() {
	if c.inOff == 0 {
		return
	}
	c.inBuf = append(c.inBuf[:0], c.inBuf[c.inOff:]...)
	c.inOff = 0
}

// Get consumes n bytes from the inbound buffer. Consumption is
// rewindable via Restore.
func (c *Conn) Get(n int) ([]byte, error) {
	if len(c.inBuf)-c.inOff < n {
		return nil, ErrShortRead
	}
	b := c.inBuf[c.inOff : c.inOff+n]
	c.inOff += n
	return b, nil
}

// Restore un-consumes the last n bytes obtained via Get, enabling
// try-parse-header semantics: peek a header, and if the full payload
// isn't buffered yet, put the header bytes back.
func (c *Conn) Restore(n int) error {
	if n > c.inOff {
		return ErrRestoreUnderflow
	}
	c.inOff -= n
	return nil
}

// GetFd dequeues one inbound fd. Ownership transfers to the caller.
func (c *Conn) GetFd() (int, error) {
	if len(c.inFds) == 0 {
		return -1, ErrNoFd
	}
	fd := c.inFds[0]
	c.inFds = c.inFds[1:]
	return fd, nil
}

// Pending returns the number of bytes currently available to Get.
func (c *Conn) Pending() int {
	return len(c.inBuf) - c.inOff
}

// CloseFds drops all still-queued inbound and outbound fds. Call on
// teardown to avoid leaking fds that were queued but never
// flushed/consumed.
func (c *Conn) CloseFds() {
	for _, fd := range c.inFds {
		_ = unix.Close(fd)
	}
	c.inFds = nil

	for _, fd := range c.outFds {
		_ = unix.Close(fd)
	}
	c.outFds = nil
}

// Close closes the underlying socket and sweeps any queued fds.
func (c *Conn) Close() error {
	c.CloseFds()
	return c.uc.Close()
}

// Fd returns the underlying socket's file descriptor, for registration
// with an external readiness notifier (epoll).
func (c *Conn) Fd() (uintptr, error) {
	sc, err := c.uc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd uintptr
	err = sc.Control(func(f uintptr) { fd = f })
	return fd, err
}

// SetNonblock toggles O_NONBLOCK on the underlying socket, used by the
// client-side backend (spec: "Set socket non-blocking and
// close-on-exec" on open_seat).
func SetNonblock(fd int, nonblocking bool) error {
	return unix.SetNonblock(fd, nonblocking)
}

// SetReadDeadline bounds the next Read call, used by the client-side
// backend's dispatch(timeout) to implement a bounded wait without
// sharing this connection's fd with an external poller.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.uc.SetReadDeadline(t)
}
