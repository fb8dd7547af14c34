// Package drmev implements the two device-level effects the seat state
// machine needs, specified only by effect in spec.md §1: DRM master
// acquire/drop and evdev revoke. seat.DeviceBackend declares the
// matching two-method interface (Activate/Deactivate); the concrete
// implementations here satisfy it structurally.
package drmev

// Backend is the device-type-specific activation surface: DRM devices
// regain/drop master; evdev devices are revoked on deactivate and
// cannot be server-reactivated (spec.md §4.4.2, an intentional,
// documented asymmetry — do not "fix" it here).
type Backend interface {
	Activate() error
	Deactivate() error
}
