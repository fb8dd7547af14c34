// Package devtype classifies seat device paths by stat'ing the
// canonicalized path and inspecting the character device's major number,
// exactly as spec.md §6 describes ("by stat'ing the canonicalized path:
// major number matching evdev's input subsystem -> EVDEV; DRM range ->
// DRM; else rejected").
package devtype

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Type is the seat device classification used by the seat state machine
// to pick DRM-master or evdev-revoke semantics.
type Type int

const (
	// Unknown marks a path that does not resolve to a recognized seat
	// device; OPEN_DEVICE against it is rejected.
	Unknown Type = iota
	DRM
	EVDEV
)

func (t Type) String() string {
	switch t {
	case DRM:
		return "drm"
	case EVDEV:
		return "evdev"
	default:
		return "unknown"
	}
}

// Linux character device major numbers for the two recognized
// subsystems. DRM is major 226 on every mainline kernel; the generic
// input/evdev subsystem is major 13.
const (
	drmMajor   = 226
	inputMajor = 13
)

// ErrNotASeatDevice is returned by Classify for any path that is not a
// DRM or evdev character device.
var ErrNotASeatDevice = fmt.Errorf("path is not a recognized seat device")

// Classify stats path and returns its seat device type. path must
// already be canonicalized (symlinks resolved) by the caller.
func Classify(path string) (Type, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return Unknown, err
	}

	if st.Mode&unix.S_IFMT != unix.S_IFCHR {
		return Unknown, ErrNotASeatDevice
	}

	major := unix.Major(uint64(st.Rdev))

	switch major {
	case drmMajor:
		return DRM, nil
	case inputMajor:
		return EVDEV, nil
	default:
		return Unknown, ErrNotASeatDevice
	}
}
