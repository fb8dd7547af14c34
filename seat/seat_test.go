package seat_test

import (
	"errors"
	"testing"

	"github.com/canonical/seatd/internal/logger"
	"github.com/canonical/seatd/seat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeNotifier records ENABLE_SEAT/DISABLE_SEAT deliveries for
// assertions, in place of a real wire connection.
type fakeNotifier struct {
	enables  int
	disables int
}

func (f *fakeNotifier) SendEnableSeat() error  { f.enables++; return nil }
func (f *fakeNotifier) SendDisableSeat() error { f.disables++; return nil }

// fakeBackend is a DeviceBackend double that can simulate an evdev
// device's permanent reactivation failure.
type fakeBackend struct {
	activateErr error
}

func (b *fakeBackend) Activate() error   { return b.activateErr }
func (b *fakeBackend) Deactivate() error { return nil }

// fakeOpener hands out a fresh fd number and a DRM fakeBackend for any
// path, so tests don't need real DRM/evdev device nodes.
type fakeOpener struct {
	nextFd int
}

func (o *fakeOpener) Open(path string) (int, seat.DeviceType, seat.DeviceBackend, error) {
	o.nextFd++
	return o.nextFd, seat.DeviceDRM, &fakeBackend{}, nil
}

type fakeTerminal struct {
	cur int
}

func (t *fakeTerminal) CurrentVT() (int, error)  { return t.cur, nil }
func (t *fakeTerminal) Open(vt int) error        { return nil }
func (t *fakeTerminal) Close() error             { return nil }
func (t *fakeTerminal) OpenAndClose(vt int) error { return nil }
func (t *fakeTerminal) SwitchTo(vt int) error    { t.cur = vt; return nil }
func (t *fakeTerminal) AckAcquire() error        { return nil }
func (t *fakeTerminal) AckRelease() error        { return nil }

func newTestSeat() *seat.Seat {
	return seat.New("seat0", false, nil, &fakeOpener{}, logger.New("silent"))
}

func attachAndOpen(t *testing.T, s *seat.Seat, n *fakeNotifier) *seat.Client {
	t.Helper()
	c := seat.NewClient(100, 1000, 1000, n)
	require.NoError(t, s.AddClient(c))
	require.NoError(t, s.OpenClient(c))
	return c
}

func TestBasicLifecycle(t *testing.T) {
	s := newTestSeat()
	n := &fakeNotifier{}
	c := attachAndOpen(t, s, n)

	assert.Equal(t, seat.StateActive, c.State())
	assert.Equal(t, 1, n.enables)
	assert.Equal(t, c, s.ActiveClient())

	dev, err := s.OpenDevice(c, "/")
	require.NoError(t, err)
	assert.EqualValues(t, 1, dev.ID)
	assert.True(t, dev.Active)

	require.NoError(t, s.CloseDevice(c, dev.ID))
	_, ok := c.Device(dev.ID)
	assert.False(t, ok)

	require.NoError(t, s.RemoveClient(c))
	assert.Equal(t, seat.StateClosed, c.State())
	assert.Nil(t, s.ActiveClient())
}

func TestRefCountedOpenDedupes(t *testing.T) {
	s := newTestSeat()
	c := attachAndOpen(t, s, &fakeNotifier{})

	d1, err := s.OpenDevice(c, "/")
	require.NoError(t, err)
	d2, err := s.OpenDevice(c, "/")
	require.NoError(t, err)

	assert.Same(t, d1, d2)
	assert.Equal(t, 2, d1.RefCount)

	require.NoError(t, s.CloseDevice(c, d1.ID))
	_, ok := c.Device(d1.ID)
	assert.True(t, ok, "device should still be open after first close, ref count 1")

	require.NoError(t, s.CloseDevice(c, d1.ID))
	_, ok = c.Device(d1.ID)
	assert.False(t, ok, "device should be gone after ref count reaches 0")
}

// TestDeviceIDReusesFreedSlot exercises spec.md §3's "choice of id is
// max-existing-id + 1": closing the highest-id device in a client's
// ledger must free that id for the next open, rather than a sticky
// per-client counter that never decreases.
func TestDeviceIDReusesFreedSlot(t *testing.T) {
	s := newTestSeat()
	c := attachAndOpen(t, s, &fakeNotifier{})

	a, err := s.OpenDevice(c, "/")
	require.NoError(t, err)
	require.EqualValues(t, 1, a.ID)

	b, err := s.OpenDevice(c, "/tmp")
	require.NoError(t, err)
	require.EqualValues(t, 2, b.ID)

	require.NoError(t, s.CloseDevice(c, b.ID)) // frees id 2

	cc, err := s.OpenDevice(c, "/dev")
	require.NoError(t, err)
	assert.EqualValues(t, 2, cc.ID, "freed id should be reused, not a sticky counter")
}

// TestDeviceLimitIsPerClient ensures MaxSeatDevices caps each client's
// own ledger independently rather than a seat-wide total, matching
// original_source/seatd/seat.c's device_count loop over client->devices
// only.
func TestDeviceLimitIsPerClient(t *testing.T) {
	s := newTestSeat()
	nA, nB := &fakeNotifier{}, &fakeNotifier{}
	paths := []string{"/", "/tmp", "/dev", "/proc", "/etc", "/var", "/usr", "/bin", "/sbin", "/root"}
	require.GreaterOrEqual(t, len(paths), seat.MaxSeatDevices)

	a := attachAndOpen(t, s, nA)
	for i := 0; i < seat.MaxSeatDevices; i++ {
		_, err := s.OpenDevice(a, paths[i])
		require.NoError(t, err)
	}
	_, err := s.OpenDevice(a, "/lib")
	require.Error(t, err, "a's own ledger is already at the per-client cap")
	assert.ErrorIs(t, err, unix.EMFILE)

	b := seat.NewClient(2, 0, 0, nB)
	require.NoError(t, s.AddClient(b))
	require.NoError(t, s.SetNextSession(a, b.Session()))
	require.NoError(t, s.AckDisableClient(a)) // promotes b to active

	for i := 0; i < seat.MaxSeatDevices; i++ {
		_, err := s.OpenDevice(b, paths[i])
		require.NoError(t, err, "b's cap must be independent of a's already-full ledger")
	}
}

// TestOpenDeviceRequiresActiveClient ensures a newly attached, not yet
// enabled client cannot open devices ahead of activation, matching
// original_source/seatd/seat.c's CLIENT_ACTIVE assertion in
// seat_open_device.
func TestOpenDeviceRequiresActiveClient(t *testing.T) {
	s := newTestSeat()
	c := seat.NewClient(1, 0, 0, &fakeNotifier{})
	require.NoError(t, s.AddClient(c)) // attached, but not opened/active yet

	_, err := s.OpenDevice(c, "/")
	require.Error(t, err)
	assert.ErrorIs(t, err, unix.EPERM)
}

func TestSecondClientRejectedOnVTBoundSeat(t *testing.T) {
	s := seat.New("seat0", true, &fakeTerminal{cur: 0}, &fakeOpener{}, logger.New("silent"))
	a := seat.NewClient(1, 0, 0, &fakeNotifier{})
	require.NoError(t, s.AddClient(a))

	b := seat.NewClient(2, 0, 0, &fakeNotifier{})
	err := s.AddClient(b)
	require.Error(t, err)
	assert.ErrorIs(t, err, unix.EBUSY)
}

func TestSwitchSessionNonVTBound(t *testing.T) {
	s := newTestSeat()
	nA := &fakeNotifier{}
	nB := &fakeNotifier{}

	a := attachAndOpen(t, s, nA)
	b := seat.NewClient(2, 0, 0, nB)
	require.NoError(t, s.AddClient(b))

	require.NoError(t, s.SetNextSession(a, b.Session()))
	assert.Equal(t, seat.StatePendingDisable, a.State())
	assert.Equal(t, 1, nA.disables)

	require.NoError(t, s.AckDisableClient(a))
	assert.Equal(t, seat.StateDisabled, a.State())
	assert.Equal(t, seat.StateActive, b.State())
	assert.Equal(t, 1, nB.enables)
	assert.Equal(t, b, s.ActiveClient())
}

func TestSwitchSessionIdempotentOnCurrentSession(t *testing.T) {
	s := newTestSeat()
	// An idle client takes session 0, so the active client's session is
	// positive: session 0 is rejected before the same-session check.
	idle := seat.NewClient(1, 0, 0, &fakeNotifier{})
	require.NoError(t, s.AddClient(idle))
	a := attachAndOpen(t, s, &fakeNotifier{})

	err := s.SetNextSession(a, a.Session())
	assert.NoError(t, err)
	assert.Equal(t, seat.StateActive, a.State())
}

func TestSwitchSessionRejectsNonPositive(t *testing.T) {
	s := newTestSeat()
	a := attachAndOpen(t, s, &fakeNotifier{})

	err := s.SetNextSession(a, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, unix.EINVAL)
}

func TestEvdevReactivationFailsButDoesNotAbortOpen(t *testing.T) {
	s := newTestSeat()
	n := &fakeNotifier{}
	c := attachAndOpen(t, s, n)

	dev, err := s.OpenDevice(c, "/")
	require.NoError(t, err)

	// Force this entry to look like an evdev device so that the
	// disable/re-enable cycle below exercises the documented
	// reactivation asymmetry: evdev can never be server-reactivated.
	dev.Type = seat.DeviceEVDEV
	dev.Backend = &fakeBackend{activateErr: unix.EINVAL}

	require.NoError(t, s.DisableClient(c))
	require.NoError(t, s.AckDisableClient(c)) // promotes c itself back to active

	assert.Equal(t, seat.StateActive, c.State())
	assert.False(t, dev.Active)
}

func TestDisableRequiresActiveState(t *testing.T) {
	s := newTestSeat()
	c := seat.NewClient(1, 0, 0, &fakeNotifier{})
	require.NoError(t, s.AddClient(c))

	err := s.DisableClient(c)
	require.Error(t, err)
	var target *seat.Error
	assert.True(t, errors.As(err, &target))
}

func TestCloseUnknownDeviceIsEBADF(t *testing.T) {
	s := newTestSeat()
	c := attachAndOpen(t, s, &fakeNotifier{})

	err := s.CloseDevice(c, 99)
	require.Error(t, err)
	assert.ErrorIs(t, err, unix.EBADF)
}

func TestVTBoundAcquireActivatesMatchingSession(t *testing.T) {
	term := &fakeTerminal{cur: -1}
	s := seat.New("seat0", true, term, &fakeOpener{}, logger.New("silent"))

	c := seat.NewClient(1, 0, 0, &fakeNotifier{})
	term.cur = 3
	require.NoError(t, s.AddClient(c)) // session = cur vt = 3

	require.NoError(t, s.VTActivate())
	assert.Equal(t, seat.StateActive, c.State())
}

func TestVTReleaseDisablesActiveClient(t *testing.T) {
	term := &fakeTerminal{cur: 3}
	s := seat.New("seat0", true, term, &fakeOpener{}, logger.New("silent"))
	n := &fakeNotifier{}
	c := seat.NewClient(1, 0, 0, n)
	require.NoError(t, s.AddClient(c))
	require.NoError(t, s.OpenClient(c))

	require.NoError(t, s.VTRelease())
	assert.Equal(t, seat.StatePendingDisable, c.State())
	assert.Equal(t, -1, s.CurrentVT())
}
