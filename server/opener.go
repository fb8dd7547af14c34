package server

import (
	"github.com/canonical/seatd/internal/devtype"
	"github.com/canonical/seatd/internal/drmev"
	"github.com/canonical/seatd/seat"
	"golang.org/x/sys/unix"
)

// deviceOpener is the seat.DeviceOpener used by every real seat: it
// classifies the path via internal/devtype and opens it with the exact
// flags original_source/seatd/seat.c uses.
type deviceOpener struct{}

// NewDeviceOpener returns the real, kernel-backed seat.DeviceOpener, for
// cmd/seatd to hand to every seat.Seat it constructs.
func NewDeviceOpener() seat.DeviceOpener { return deviceOpener{} }

// openFlags matches original_source/seatd/seat.c's seat_open_device:
// O_NOFOLLOW refuses a symlinked path at open time; O_NONBLOCK keeps a
// misbehaving device node from blocking the daemon.
const openFlags = unix.O_RDWR | unix.O_NOCTTY | unix.O_NOFOLLOW | unix.O_CLOEXEC | unix.O_NONBLOCK

func (deviceOpener) Open(path string) (int, seat.DeviceType, seat.DeviceBackend, error) {
	t, err := devtype.Classify(path)
	if err != nil || t == devtype.Unknown {
		return -1, seat.DeviceUnknown, nil, seat.ErrNotASeatDevice
	}

	fd, err := unix.Open(path, openFlags, 0)
	if err != nil {
		return -1, seat.DeviceUnknown, nil, err
	}

	switch t {
	case devtype.DRM:
		return fd, seat.DeviceDRM, drmev.NewDRMBackend(fd), nil
	case devtype.EVDEV:
		return fd, seat.DeviceEVDEV, drmev.NewEVDEVBackend(fd), nil
	default:
		_ = unix.Close(fd)
		return -1, seat.DeviceUnknown, nil, seat.ErrNotASeatDevice
	}
}
