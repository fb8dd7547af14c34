package seat

// DeviceType distinguishes DRM from evdev devices for activation
// semantics. Defined here (rather than imported from internal/devtype)
// so the seat package has no dependency on how classification happens —
// only on its result.
type DeviceType int

const (
	DeviceUnknown DeviceType = iota
	DeviceDRM
	DeviceEVDEV
)

// DeviceBackend is the device-type-specific activation surface a Device
// delegates to. internal/drmev's DRMBackend and EVDEVBackend satisfy
// this structurally.
type DeviceBackend interface {
	Activate() error
	Deactivate() error
}

// Device is one seat device ledger entry: a canonical path, an open fd,
// a reference count, and whether the device currently holds DRM master
// / has not been evdev-revoked.
type Device struct {
	ID       int32
	Path     string
	Fd       int
	RefCount int
	Type     DeviceType
	Active   bool
	Backend  DeviceBackend
}

// activate brings the device into the "active" state (DRM: acquire
// master; EVDEV: a no-op that always fails, intentionally — see
// spec.md §4.4.2). The caller decides whether an EVDEV failure here is
// fatal to the surrounding operation; it never is.
func (d *Device) activate() error {
	if err := d.Backend.Activate(); err != nil {
		return err
	}
	d.Active = true
	return nil
}

// deactivate drops DRM master or revokes the evdev fd. The fd itself is
// never closed here: spec.md §4.4.3 requires it stay open so the kernel
// object identity backing e.g. DRM GEM handles survives a disable.
func (d *Device) deactivate() error {
	err := d.Backend.Deactivate()
	d.Active = false
	return err
}
