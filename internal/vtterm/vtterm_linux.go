//go:build linux

package vtterm

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux VT and keyboard ioctl numbers, from linux/vt.h and linux/kd.h.
// golang.org/x/sys/unix does not export these (they belong to the
// console driver, not a generic syscall surface), so they are named
// here the same way the reference seatd implementation names them in
// its own ioctl.h shim.
const (
	vtOpenqry    = 0x5600
	vtGetmode    = 0x5601
	vtSetmode    = 0x5602
	vtGetstate   = 0x5603
	vtReldisp    = 0x5605
	vtActivate   = 0x5606
	vtWaitactive = 0x5607

	kdSetmode = 0x4B3A
	kdText    = 0x00
	kdGraphics = 0x01

	kdSkbmode = 0x4B45
	kOff      = 0x04
	kXlate    = 0x01

	vtProcess = 0x01
	vtAuto    = 0x00
	vtAckacq  = 0x02
)

type vtMode struct {
	mode   byte
	waitv  byte
	relsig int16
	acqsig int16
	frsig  int16
}

type vtStat struct {
	active  uint16
	signal  uint16
	state   uint16
}

// LinuxTerminal drives VT switching through the console driver ioctls.
// It opens one tty device node at a time, matching seat.c's model of a
// single short-lived tty fd per VT-bound seat.
type LinuxTerminal struct {
	controlPath string // e.g. /dev/tty0, used for VT_GETSTATE/VT_ACTIVATE
	ttyPathFmt  string // e.g. "/dev/tty%d"

	f *os.File // currently open tty, or nil
}

// NewLinuxTerminal builds a Terminal bound to the console at
// controlPath, opening VTs named by fmt.Sprintf(ttyPathFmt, vt).
func NewLinuxTerminal(controlPath, ttyPathFmt string) *LinuxTerminal {
	return &LinuxTerminal{controlPath: controlPath, ttyPathFmt: ttyPathFmt}
}

func (t *LinuxTerminal) CurrentVT() (int, error) {
	cf, err := os.OpenFile(t.controlPath, os.O_RDWR, 0)
	if err != nil {
		return 0, err
	}
	defer cf.Close()

	var st vtStat
	if err := ioctl(cf.Fd(), vtGetstate, unsafe.Pointer(&st)); err != nil {
		return 0, err
	}

	return int(st.active), nil
}

func (t *LinuxTerminal) Open(vt int) error {
	if t.f != nil {
		return fmt.Errorf("vtterm: a tty is already open on this seat")
	}

	path := fmt.Sprintf(t.ttyPathFmt, vt)
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return err
	}

	if err := ioctl(f.Fd(), kdSkbmode, unsafe.Pointer(uintptr(kOff))); err != nil {
		f.Close()
		return err
	}

	if err := ioctl(f.Fd(), kdSetmode, unsafe.Pointer(uintptr(kdGraphics))); err != nil {
		f.Close()
		return err
	}

	mode := vtMode{mode: vtProcess, relsig: int16(unix.SIGUSR1), acqsig: int16(unix.SIGUSR2)}
	if err := ioctl(f.Fd(), vtSetmode, unsafe.Pointer(&mode)); err != nil {
		f.Close()
		return err
	}

	t.f = f
	return nil
}

func (t *LinuxTerminal) Close() error {
	if t.f == nil {
		return nil
	}

	_ = t.restoreTextMode(t.f)
	err := t.f.Close()
	t.f = nil
	return err
}

func (t *LinuxTerminal) OpenAndClose(vt int) error {
	path := fmt.Sprintf(t.ttyPathFmt, vt)
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	return t.restoreTextMode(f)
}

func (t *LinuxTerminal) restoreTextMode(f *os.File) error {
	mode := vtMode{mode: vtAuto}
	_ = ioctl(f.Fd(), vtSetmode, unsafe.Pointer(&mode))
	_ = ioctl(f.Fd(), kdSkbmode, unsafe.Pointer(uintptr(kXlate)))
	return ioctl(f.Fd(), kdSetmode, unsafe.Pointer(uintptr(kdText)))
}

func (t *LinuxTerminal) SwitchTo(vt int) error {
	cf, err := os.OpenFile(t.controlPath, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer cf.Close()

	return ioctl(cf.Fd(), vtActivate, unsafe.Pointer(uintptr(vt)))
}

func (t *LinuxTerminal) AckAcquire() error {
	if t.f == nil {
		return nil
	}
	return ioctl(t.f.Fd(), vtReldisp, unsafe.Pointer(uintptr(vtAckacq)))
}

func (t *LinuxTerminal) AckRelease() error {
	if t.f == nil {
		return nil
	}
	return ioctl(t.f.Fd(), vtReldisp, unsafe.Pointer(uintptr(1)))
}

func ioctl(fd uintptr, req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
