// Package bugst is a portable transport built on go.bug.st/serial. USB
// ports reported by the enumerator are grouped into devices by vendor,
// product and serial number.
package bugst

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/allbin/usbserial"
)

// DefaultReadTimeout bounds each Read so readers notice a close
const DefaultReadTimeout = 100 * time.Millisecond

// handle is the subset of serial.Port the transport uses
type handle interface {
	SetMode(mode *serial.Mode) error
	SetReadTimeout(t time.Duration) error
	Read(p []byte) (int, error)
	Close() error
}

var (
	listPorts = enumerator.GetDetailedPortsList
	openPort  = func(name string, mode *serial.Mode) (handle, error) {
		return serial.Open(name, mode)
	}
)

// Device groups the enumerator entries of one USB device
type Device struct {
	VendorID     string
	ProductID    string
	SerialNumber string
	Product      string
	PortNames    []string
}

// ID is vid:pid:serial, or vid:pid@port when the device has no serial
func (d *Device) ID() string {
	vid, pid := strings.ToLower(d.VendorID), strings.ToLower(d.ProductID)
	if d.SerialNumber != "" {
		return fmt.Sprintf("%s:%s:%s", vid, pid, d.SerialNumber)
	}
	name := ""
	if len(d.PortNames) > 0 {
		name = d.PortNames[0]
	}
	return fmt.Sprintf("%s:%s@%s", vid, pid, name)
}

// Name returns the product string, falling back to vid:pid
func (d *Device) Name() string {
	if d.Product != "" {
		return d.Product
	}
	return fmt.Sprintf("%s:%s", d.VendorID, d.ProductID)
}

// Nodes returns the port names, which are device paths on Unix
func (d *Device) Nodes() []string {
	return append([]string(nil), d.PortNames...)
}

// Config controls the transport
type Config struct {
	ReadTimeout time.Duration
	Probes      *usbserial.ProbeTable
	Logger      zerolog.Logger
}

// Transport implements usbserial.Transport with go.bug.st/serial
type Transport struct {
	readTimeout time.Duration
	probes      *usbserial.ProbeTable
	log         zerolog.Logger
}

// Ensure Transport implements usbserial.Transport at compile time
var _ usbserial.Transport = (*Transport)(nil)

// New creates a transport
func New(cfg Config) *Transport {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Probes == nil {
		cfg.Probes = usbserial.DefaultProbeTable()
	}
	return &Transport{
		readTimeout: cfg.ReadTimeout,
		probes:      cfg.Probes,
		log:         cfg.Logger.With().Str("component", "bugst").Logger(),
	}
}

// Devices lists USB serial devices in ID order
func (t *Transport) Devices(ctx context.Context) ([]usbserial.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ports, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("enumerator error: %w", err)
	}

	grouped := groupPorts(ports)
	devices := make([]usbserial.Device, len(grouped))
	for i, dev := range grouped {
		t.log.Debug().Str("device", dev.ID()).Strs("ports", dev.PortNames).Msg("found usb device")
		devices[i] = dev
	}
	return devices, nil
}

func groupPorts(ports []*enumerator.PortDetails) []*Device {
	byKey := make(map[string]*Device)
	for _, p := range ports {
		if p == nil || !p.IsUSB {
			continue
		}
		key := fmt.Sprintf("%s:%s:%s", strings.ToLower(p.VID), strings.ToLower(p.PID), p.SerialNumber)
		if p.SerialNumber == "" {
			key += "@" + p.Name
		}
		dev, ok := byKey[key]
		if !ok {
			dev = &Device{
				VendorID:     p.VID,
				ProductID:    p.PID,
				SerialNumber: p.SerialNumber,
				Product:      p.Product,
			}
			byKey[key] = dev
		}
		dev.PortNames = append(dev.PortNames, p.Name)
	}

	devices := make([]*Device, 0, len(byKey))
	for _, dev := range byKey {
		sort.Strings(dev.PortNames)
		devices = append(devices, dev)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID() < devices[j].ID()
	})
	return devices
}

// Probe matches the device by vendor and product id
func (t *Transport) Probe(dev usbserial.Device) (usbserial.Driver, bool) {
	d, ok := dev.(*Device)
	if !ok || len(d.PortNames) == 0 {
		return nil, false
	}
	id, ok := usbserial.ParseUSBID(d.VendorID, d.ProductID)
	if !ok {
		return nil, false
	}
	name, ok := t.probes.Match(id, "")
	if !ok {
		return nil, false
	}

	ports := make([]usbserial.Port, len(d.PortNames))
	for i, portName := range d.PortNames {
		ports[i] = &port{name: portName, readTimeout: t.readTimeout}
	}
	return &driver{name: name, ports: ports}, true
}

// OpenDevice returns a connection token; the serial library opens each
// port separately
func (t *Transport) OpenDevice(dev usbserial.Device) (usbserial.Connection, error) {
	if _, ok := dev.(*Device); !ok {
		return nil, fmt.Errorf("%w: foreign device %T", usbserial.ErrDeviceUnavailable, dev)
	}
	return &connection{}, nil
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

type connection struct {
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

// port wraps one go.bug.st/serial port
type port struct {
	name        string
	readTimeout time.Duration

	mu     sync.Mutex
	handle handle
	closed bool
}

// Ensure port implements usbserial.Port at compile time
var _ usbserial.Port = (*port)(nil)

func toMode(cfg usbserial.LineConfig) *serial.Mode {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	switch cfg.Parity {
	case usbserial.ParityOdd:
		mode.Parity = serial.OddParity
	case usbserial.ParityEven:
		mode.Parity = serial.EvenParity
	case usbserial.ParityMark:
		mode.Parity = serial.MarkParity
	case usbserial.ParitySpace:
		mode.Parity = serial.SpaceParity
	}
	if cfg.StopBits == 2 {
		mode.StopBits = serial.TwoStopBits
	}
	return mode
}

func (p *port) Open(conn usbserial.Connection) error {
	if _, ok := conn.(*connection); !ok {
		return fmt.Errorf("%w: foreign connection %T", usbserial.ErrPortNotOpen, conn)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle != nil {
		return nil
	}

	h, err := openPort(p.name, toMode(usbserial.DefaultLineConfig()))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", usbserial.ErrDeviceUnavailable, p.name, err)
	}
	if err := h.SetReadTimeout(p.readTimeout); err != nil {
		h.Close()
		return fmt.Errorf("failed to set read timeout: %w", err)
	}

	p.handle = h
	p.closed = false
	return nil
}

func (p *port) SetParameters(cfg usbserial.LineConfig) error {
	p.mu.Lock()
	h := p.handle
	p.mu.Unlock()

	if h == nil {
		return usbserial.ErrPortNotOpen
	}
	return h.SetMode(toMode(cfg))
}

// Read does not hold the lock so Close can interrupt it
func (p *port) Read(buf []byte) (int, error) {
	p.mu.Lock()
	h, closed := p.handle, p.closed
	p.mu.Unlock()

	if closed {
		return 0, usbserial.ErrPortClosed
	}
	if h == nil {
		return 0, usbserial.ErrPortNotOpen
	}
	return h.Read(buf)
}

func (p *port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == nil {
		return usbserial.ErrPortClosed
	}
	err := p.handle.Close()
	p.handle = nil
	p.closed = true
	return err
}
