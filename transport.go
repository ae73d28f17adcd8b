package usbserial

import "context"

// Device is an opaque handle to one attached USB device
type Device interface {
	// ID is stable for as long as the device stays attached
	ID() string
	// Name is a human readable label, typically the USB product string
	Name() string
}

// NodeDevice is implemented by devices backed by device nodes under /dev.
// Permission facilities use it to check access without opening the device.
type NodeDevice interface {
	Device
	Nodes() []string
}

// Driver is the result of probing a device against the known serial chips
type Driver interface {
	// Name is the chip family, e.g. "FTDI" or "CDC-ACM"
	Name() string
	// Ports lists the serial ports in port-index order
	Ports() []Port
}

// Connection is a raw handle to an opened USB device. Ports are opened
// against it.
type Connection interface {
	Close() error
}

// Port is one serial port exposed by a driver
type Port interface {
	Open(conn Connection) error
	SetParameters(cfg LineConfig) error
	Read(buf []byte) (int, error)
	Close() error
}

// Transport enumerates, probes and opens USB devices
type Transport interface {
	Devices(ctx context.Context) ([]Device, error)
	Probe(dev Device) (Driver, bool)
	// OpenDevice returns ErrDeviceUnavailable (possibly wrapped) when the
	// device is busy or the process lacks permission
	OpenDevice(dev Device) (Connection, error)
}

// PermissionResult is delivered by a PermissionFacility once the OS has
// answered a permission request
type PermissionResult struct {
	Channel  string
	DeviceID string
	Granted  bool
}

// PermissionFacility is the OS-level access control for USB devices
type PermissionFacility interface {
	HasPermission(dev Device) bool
	// RequestPermission starts an asynchronous request. deliver is called
	// exactly once, from any goroutine, with the result tagged by channel.
	RequestPermission(dev Device, channel string, deliver func(PermissionResult)) error
}
