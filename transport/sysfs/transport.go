// Package sysfs is a Linux transport that discovers USB serial devices
// through /sys and talks to their ttys with termios.
package sysfs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/allbin/usbserial"
)

const (
	DefaultSysRoot     = "/sys"
	DefaultDevRoot     = "/dev"
	DefaultReadTimeout = 100 * time.Millisecond
)

// Config controls where the transport looks for devices
type Config struct {
	SysRoot     string
	DevRoot     string
	ReadTimeout time.Duration
	Probes      *usbserial.ProbeTable
	Logger      zerolog.Logger
}

// DefaultConfig returns the settings for a regular Linux host
func DefaultConfig() Config {
	return Config{
		SysRoot:     DefaultSysRoot,
		DevRoot:     DefaultDevRoot,
		ReadTimeout: DefaultReadTimeout,
		Probes:      usbserial.DefaultProbeTable(),
		Logger:      zerolog.Nop(),
	}
}

// Transport implements usbserial.Transport over sysfs and termios
type Transport struct {
	cfg Config
	log zerolog.Logger
}

// Ensure Transport implements usbserial.Transport at compile time
var _ usbserial.Transport = (*Transport)(nil)

// New creates a transport. Zero fields fall back to DefaultConfig.
func New(cfg Config) *Transport {
	def := DefaultConfig()
	if cfg.SysRoot == "" {
		cfg.SysRoot = def.SysRoot
	}
	if cfg.DevRoot == "" {
		cfg.DevRoot = def.DevRoot
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.Probes == nil {
		cfg.Probes = def.Probes
	}
	return &Transport{
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "sysfs").Logger(),
	}
}

// DevRoot returns the directory holding the device nodes
func (t *Transport) DevRoot() string {
	return t.cfg.DevRoot
}

// Devices lists attached USB devices that expose at least one tty
func (t *Transport) Devices(ctx context.Context) ([]usbserial.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	found, err := enumerate(t.cfg.SysRoot, t.cfg.DevRoot)
	if err != nil {
		return nil, err
	}

	devices := make([]usbserial.Device, len(found))
	for i, dev := range found {
		t.log.Debug().
			Str("device", dev.ID()).
			Str("vid", dev.VendorID).
			Str("pid", dev.ProductID).
			Int("ttys", len(dev.TTYs)).
			Msg("found usb device")
		devices[i] = dev
	}
	return devices, nil
}

// Lookup finds an attached device by ID
func (t *Transport) Lookup(id string) (*Device, error) {
	found, err := enumerate(t.cfg.SysRoot, t.cfg.DevRoot)
	if err != nil {
		return nil, err
	}
	for _, dev := range found {
		if dev.ID() == id {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", usbserial.ErrDeviceNotFound, id)
}

// Probe matches the device against the probe table. Every tty of a
// matched device becomes one port, in interface order.
func (t *Transport) Probe(dev usbserial.Device) (usbserial.Driver, bool) {
	d, ok := dev.(*Device)
	if !ok || len(d.TTYs) == 0 {
		return nil, false
	}

	id, ok := usbserial.ParseUSBID(d.VendorID, d.ProductID)
	if !ok {
		return nil, false
	}

	name, ok := t.cfg.Probes.Match(id, d.KernelDriver())
	if !ok {
		return nil, false
	}

	ports := make([]usbserial.Port, len(d.TTYs))
	for i, tty := range d.TTYs {
		ports[i] = newPort(tty.Path, t.cfg.ReadTimeout)
	}
	return &driver{name: name, ports: ports}, true
}

// OpenDevice checks that every node of the device can be opened for
// reading and writing. The returned connection is what the device's
// ports open against.
func (t *Transport) OpenDevice(dev usbserial.Device) (usbserial.Connection, error) {
	d, ok := dev.(*Device)
	if !ok {
		return nil, fmt.Errorf("%w: foreign device %T", usbserial.ErrDeviceUnavailable, dev)
	}
	for _, node := range d.Nodes() {
		if err := unix.Access(node, unix.R_OK|unix.W_OK); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", usbserial.ErrDeviceUnavailable, node, err)
		}
	}
	return &connection{device: d}, nil
}

type driver struct {
	name  string
	ports []usbserial.Port
}

func (d *driver) Name() string {
	return d.name
}

func (d *driver) Ports() []usbserial.Port {
	return d.ports
}

// connection marks a device as opened by this process
type connection struct {
	device *Device

	mu     sync.Mutex
	closed bool
}

func (c *connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return usbserial.ErrPortClosed
	}
	c.closed = true
	return nil
}
