package usbserial

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var errWire = errors.New("wire unplugged")

type readResult struct {
	data []byte
	err  error
}

// fakePort serves reads from a queue until it is closed
type fakePort struct {
	mu      sync.Mutex
	queue   chan readResult
	closed  chan struct{}
	open    bool
	openErr error
	setErr  error
	params  []LineConfig
	onClose func()

	opens  atomic.Int32
	closes atomic.Int32
}

func newFakePort() *fakePort {
	p := &fakePort{
		queue:  make(chan readResult, 64),
		closed: make(chan struct{}),
	}
	close(p.closed)
	return p
}

func (p *fakePort) Open(conn Connection) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.openErr != nil {
		return p.openErr
	}
	p.open = true
	p.queue = make(chan readResult, 64)
	p.closed = make(chan struct{})
	p.opens.Add(1)
	return nil
}

func (p *fakePort) SetParameters(cfg LineConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.params = append(p.params, cfg)
	return p.setErr
}

func (p *fakePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	queue, closed := p.queue, p.closed
	p.mu.Unlock()

	select {
	case <-closed:
		return 0, ErrPortClosed
	default:
	}

	select {
	case r := <-queue:
		return copy(buf, r.data), r.err
	case <-closed:
		return 0, ErrPortClosed
	}
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	if !p.open {
		p.mu.Unlock()
		return ErrPortClosed
	}
	p.open = false
	close(p.closed)
	p.closes.Add(1)
	hook := p.onClose
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (p *fakePort) push(data []byte) {
	p.mu.Lock()
	queue := p.queue
	p.mu.Unlock()
	queue <- readResult{data: data}
}

func (p *fakePort) fail(data []byte, err error) {
	p.mu.Lock()
	queue := p.queue
	p.mu.Unlock()
	queue <- readResult{data: data, err: err}
}

func (p *fakePort) isOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

func (p *fakePort) lastParams() (LineConfig, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.params) == 0 {
		return LineConfig{}, false
	}
	return p.params[len(p.params)-1], true
}

type fakeDevice struct {
	id     string
	name   string
	driver string
	ports  []*fakePort
}

func (d *fakeDevice) ID() string   { return d.id }
func (d *fakeDevice) Name() string { return d.name }

type fakeDriver struct {
	name  string
	ports []Port
}

func (d *fakeDriver) Name() string  { return d.name }
func (d *fakeDriver) Ports() []Port { return d.ports }

type fakeConn struct {
	closes atomic.Int32
}

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	return nil
}

type fakeTransport struct {
	mu         sync.Mutex
	devices    []*fakeDevice
	devicesErr error
	openErr    error
	openGate   chan struct{}
	conns      []*fakeConn
}

func newFakeTransport(devices ...*fakeDevice) *fakeTransport {
	return &fakeTransport{devices: devices}
}

func (t *fakeTransport) Devices(ctx context.Context) ([]Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.devicesErr != nil {
		return nil, t.devicesErr
	}
	out := make([]Device, 0, len(t.devices))
	for _, d := range t.devices {
		out = append(out, d)
	}
	return out, nil
}

func (t *fakeTransport) Probe(dev Device) (Driver, bool) {
	d, ok := dev.(*fakeDevice)
	if !ok || d.driver == "" {
		return nil, false
	}
	ports := make([]Port, len(d.ports))
	for i, p := range d.ports {
		ports[i] = p
	}
	return &fakeDriver{name: d.driver, ports: ports}, true
}

func (t *fakeTransport) OpenDevice(dev Device) (Connection, error) {
	t.mu.Lock()
	gate, openErr := t.openGate, t.openErr
	t.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if openErr != nil {
		return nil, openErr
	}

	conn := &fakeConn{}
	t.mu.Lock()
	t.conns = append(t.conns, conn)
	t.mu.Unlock()
	return conn, nil
}

func (t *fakeTransport) setDevices(devices ...*fakeDevice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.devices = devices
}

func (t *fakeTransport) connections() []*fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*fakeConn(nil), t.conns...)
}

type fakeFacility struct {
	mu       sync.Mutex
	allowAll bool
	allowed  map[string]bool
	pending  map[string]pendingPermission
	requests int
	err      error
}

type pendingPermission struct {
	channel string
	deliver func(PermissionResult)
}

func newFakeFacility(allowAll bool) *fakeFacility {
	return &fakeFacility{
		allowAll: allowAll,
		allowed:  make(map[string]bool),
		pending:  make(map[string]pendingPermission),
	}
}

func (f *fakeFacility) HasPermission(dev Device) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allowAll || f.allowed[dev.ID()]
}

func (f *fakeFacility) RequestPermission(dev Device, channel string, deliver func(PermissionResult)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	if f.err != nil {
		return f.err
	}
	f.pending[dev.ID()] = pendingPermission{channel: channel, deliver: deliver}
	return nil
}

// answer delivers the OS decision for a pending request
func (f *fakeFacility) answer(deviceID string, granted bool) bool {
	f.mu.Lock()
	p, ok := f.pending[deviceID]
	delete(f.pending, deviceID)
	if granted {
		f.allowed[deviceID] = true
	}
	f.mu.Unlock()

	if !ok {
		return false
	}
	p.deliver(PermissionResult{Channel: p.channel, DeviceID: deviceID, Granted: granted})
	return true
}

func (f *fakeFacility) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *fakeFacility) hasPending(deviceID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pending[deviceID]
	return ok
}

func dualPortDevice(id string) *fakeDevice {
	return &fakeDevice{
		id:     id,
		name:   "Dual RS232",
		driver: DriverFTDI,
		ports:  []*fakePort{newFakePort(), newFakePort()},
	}
}
