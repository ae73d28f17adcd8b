package bugst

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/allbin/usbserial"
)

type fakeHandle struct {
	mu      sync.Mutex
	mode    *serial.Mode
	timeout time.Duration
	data    [][]byte
	closed  bool
}

func (h *fakeHandle) SetMode(mode *serial.Mode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mode = mode
	return nil
}

func (h *fakeHandle) SetReadTimeout(t time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timeout = t
	return nil
}

func (h *fakeHandle) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, errors.New("port closed")
	}
	if len(h.data) == 0 {
		return 0, nil
	}
	n := copy(p, h.data[0])
	h.data = h.data[1:]
	return n, nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func stubEnumerator(t *testing.T, ports []*enumerator.PortDetails) {
	t.Helper()
	orig := listPorts
	listPorts = func() ([]*enumerator.PortDetails, error) { return ports, nil }
	t.Cleanup(func() { listPorts = orig })
}

func stubOpen(t *testing.T, h *fakeHandle, opened *string) {
	t.Helper()
	orig := openPort
	openPort = func(name string, mode *serial.Mode) (handle, error) {
		*opened = name
		h.mode = mode
		return h, nil
	}
	t.Cleanup(func() { openPort = orig })
}

func samplePorts() []*enumerator.PortDetails {
	return []*enumerator.PortDetails{
		{Name: "/dev/ttyUSB1", IsUSB: true, VID: "0403", PID: "6010", SerialNumber: "FT1", Product: "Dual UART"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6010", SerialNumber: "FT1", Product: "Dual UART"},
		{Name: "/dev/ttyS0", IsUSB: false},
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043"},
		{Name: "/dev/ttyUSB7", IsUSB: true, VID: "dead", PID: "beef", SerialNumber: "X"},
	}
}

func TestGroupPorts(t *testing.T) {
	devices := groupPorts(samplePorts())
	require.Len(t, devices, 3)

	assert.Equal(t, "0403:6010:FT1", devices[0].ID())
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, devices[0].PortNames)
	assert.Equal(t, "Dual UART", devices[0].Name())

	assert.Equal(t, "2341:0043@/dev/ttyACM0", devices[1].ID())
	assert.Equal(t, "2341:0043", devices[1].Name())

	assert.Equal(t, "dead:beef:X", devices[2].ID())
}

func TestScanSkipsUnknownChips(t *testing.T) {
	stubEnumerator(t, samplePorts())

	store := usbserial.NewStore(0)
	catalog := usbserial.NewCatalog(New(Config{Logger: zerolog.Nop()}), store, zerolog.Nop())

	endpoints, err := catalog.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, endpoints, 3)

	assert.Equal(t, "0403:6010:FT1:0", endpoints[0].Key())
	assert.Equal(t, "0403:6010:FT1:1", endpoints[1].Key())
	assert.Equal(t, usbserial.DriverFTDI, endpoints[0].Driver.Name())
	assert.Equal(t, usbserial.DriverCDCACM, endpoints[2].Driver.Name())
}

func TestToMode(t *testing.T) {
	cfg, err := usbserial.NewLineConfig(
		usbserial.WithBaudRate(115200),
		usbserial.WithDataBits(7),
		usbserial.WithStopBits(2),
		usbserial.WithParity(usbserial.ParityEven),
	)
	require.NoError(t, err)

	mode := toMode(cfg)
	assert.Equal(t, 115200, mode.BaudRate)
	assert.Equal(t, 7, mode.DataBits)
	assert.Equal(t, serial.EvenParity, mode.Parity)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)

	def := toMode(usbserial.DefaultLineConfig())
	assert.Equal(t, 19200, def.BaudRate)
	assert.Equal(t, serial.NoParity, def.Parity)
	assert.Equal(t, serial.OneStopBit, def.StopBits)
}

func TestPortLifecycle(t *testing.T) {
	stubEnumerator(t, samplePorts())
	h := &fakeHandle{data: [][]byte{[]byte("hi")}}
	var opened string
	stubOpen(t, h, &opened)

	tr := New(Config{})
	devices, err := tr.Devices(context.Background())
	require.NoError(t, err)

	driver, ok := tr.Probe(devices[0])
	require.True(t, ok)
	p := driver.Ports()[1]

	_, err = p.Read(make([]byte, 4))
	assert.ErrorIs(t, err, usbserial.ErrPortNotOpen)

	conn, err := tr.OpenDevice(devices[0])
	require.NoError(t, err)
	require.NoError(t, p.Open(conn))
	assert.Equal(t, "/dev/ttyUSB1", opened)
	assert.Equal(t, DefaultReadTimeout, h.timeout)

	require.NoError(t, p.SetParameters(usbserial.LineConfig{BaudRate: 9600, DataBits: 8, StopBits: 1}))
	assert.Equal(t, 9600, h.mode.BaudRate)

	buf := make([]byte, 4)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf[:n]))

	require.NoError(t, p.Close())
	assert.True(t, h.closed)
	_, err = p.Read(buf)
	assert.ErrorIs(t, err, usbserial.ErrPortClosed)
	assert.ErrorIs(t, p.Close(), usbserial.ErrPortClosed)

	require.NoError(t, conn.Close())
}
