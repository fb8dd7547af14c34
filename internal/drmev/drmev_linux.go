//go:build linux

package drmev

import (
	"golang.org/x/sys/unix"
)

// DRM_IOCTL_SET_MASTER / DRM_IOCTL_DROP_MASTER take no argument
// (_IO('d', 0x1e) / _IO('d', 0x1f)); EVIOCREVOKE takes an int argument
// and is always 0 (_IOW('E', 0x91, int)). These numbers are the stable
// kernel uAPI values from drm.h / input.h, the same ones the reference
// seatd backend calls directly.
const (
	drmIoctlSetMaster  = 0x641e
	drmIoctlDropMaster = 0x641f
	evIoctlRevoke      = 0x40044591
)

// DRMBackend holds DRM master on fd while Active.
type DRMBackend struct {
	fd int
}

// NewDRMBackend wraps an already-open DRM device fd.
func NewDRMBackend(fd int) *DRMBackend {
	return &DRMBackend{fd: fd}
}

func (b *DRMBackend) Activate() error {
	return ioctl(uintptr(b.fd), drmIoctlSetMaster, 0)
}

func (b *DRMBackend) Deactivate() error {
	return ioctl(uintptr(b.fd), drmIoctlDropMaster, 0)
}

// EVDEVBackend revokes an evdev device on deactivate. Per spec.md
// §4.4.2, server-side reactivation is not supported: Activate always
// returns EINVAL, and the caller (seat.Device.activate) is expected to
// log and continue rather than treat it as a fatal failure of the
// whole open-client sequence.
type EVDEVBackend struct {
	fd int
}

// NewEVDEVBackend wraps an already-open evdev device fd.
func NewEVDEVBackend(fd int) *EVDEVBackend {
	return &EVDEVBackend{fd: fd}
}

func (b *EVDEVBackend) Activate() error {
	return unix.EINVAL
}

func (b *EVDEVBackend) Deactivate() error {
	return ioctl(uintptr(b.fd), evIoctlRevoke, 0)
}

func ioctl(fd uintptr, req uint, arg uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), arg)
	if errno != 0 {
		return errno
	}
	return nil
}
