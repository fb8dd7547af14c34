package seatclient

import (
	"net"
	"os"
	"testing"

	"github.com/canonical/seatd/internal/conn"
	"github.com/canonical/seatd/internal/wire"
	"github.com/stretchr/testify/require"
)

func socketpair(t *testing.T) (*net.UnixConn, *net.UnixConn) {
	t.Helper()

	l, err := net.Listen("unix", "")
	require.NoError(t, err)
	defer l.Close()

	addr := l.Addr().String()

	clientCh := make(chan *net.UnixConn, 1)
	go func() {
		c, err := net.Dial("unix", addr)
		require.NoError(t, err)
		clientCh <- c.(*net.UnixConn)
	}()

	srv, err := l.Accept()
	require.NoError(t, err)

	return srv.(*net.UnixConn), <-clientCh
}

type recordingListener struct {
	enables, disables int
}

func (l *recordingListener) EnableSeat(*Handle, any)  { l.enables++ }
func (l *recordingListener) DisableSeat(*Handle, any) { l.disables++ }

// newTestBackend wires a seatdBackend directly to one end of a
// socketpair, skipping the openSeatdBackend dial step, and drives the
// OPEN_SEAT handshake from a fake server goroutine on the other end.
func newTestBackend(t *testing.T, listener Listener) (*seatdBackend, *conn.Conn) {
	t.Helper()

	srvUC, cliUC := socketpair(t)
	t.Cleanup(func() { srvUC.Close() })

	srv := conn.New(srvUC)

	b := &seatdBackend{conn: conn.New(cliUC), listener: listener}
	h := &Handle{backend: b}
	b.bind(h)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = srv.Read()
		hdrBytes, err := srv.Get(wire.HeaderSize)
		require.NoError(t, err)
		hdr := wire.DecodeHeader(hdrBytes)
		require.Equal(t, wire.OpOpenSeat, hdr.Opcode)

		srv.Put(wire.EncodeString(wire.OpSeatOpened, "seat0"))
		require.NoError(t, srv.Flush())
	}()

	require.NoError(t, b.openSeatHandshake())
	<-done

	return b, srv
}

func TestOpenSeatHandshake(t *testing.T) {
	b, _ := newTestBackend(t, &recordingListener{})
	require.Equal(t, "seat0", b.SeatName())
}

// TestDispatchQueuesEventsAndFiresOnDrain exercises spec.md §9's
// concurrency contract: an ENABLE_SEAT/DISABLE_SEAT notification
// arriving mid-stream is queued by parseOnce and only reaches the
// Listener when Dispatch explicitly drains it.
func TestDispatchQueuesEventsAndFiresOnDrain(t *testing.T) {
	listener := &recordingListener{}
	b, srv := newTestBackend(t, listener)

	srv.Put(wire.EncodeEmpty(wire.OpServerEnableSeat))
	srv.Put(wire.EncodeEmpty(wire.OpServerDisableSeat))
	require.NoError(t, srv.Flush())

	n, err := b.Dispatch(1000)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 1, listener.enables)
	require.Equal(t, 1, listener.disables)
}

// TestOpenDeviceRoundTrip exercises the fd-carrying OPEN_DEVICE reply
// path end to end over a real socketpair.
func TestOpenDeviceRoundTrip(t *testing.T) {
	listener := &recordingListener{}
	b, srv := newTestBackend(t, listener)

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer w.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = srv.Read()
		hdrBytes, err := srv.Get(wire.HeaderSize)
		require.NoError(t, err)
		hdr := wire.DecodeHeader(hdrBytes)
		require.Equal(t, wire.OpOpenDevice, hdr.Opcode)
		payload, err := srv.Get(int(hdr.Size))
		require.NoError(t, err)
		path, err := wire.DecodeString(payload)
		require.NoError(t, err)
		require.Equal(t, "/dev/dri/card0", path)

		srv.PutFd(int(r.Fd()))
		srv.Put(wire.EncodeI32(wire.OpDeviceOpened, 1))
		require.NoError(t, srv.Flush())
		r.Close()
	}()

	fd, id, err := b.OpenDevice("/dev/dri/card0")
	require.NoError(t, err)
	require.Greater(t, fd, 0)
	require.EqualValues(t, 1, id)
	<-done
}
