package sysfs

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/allbin/usbserial"
)

// port is a tty opened raw through termios
type port struct {
	path        string
	readTimeout time.Duration

	mu     sync.RWMutex
	fd     int
	open   bool
	closed bool
}

// Ensure port implements usbserial.Port at compile time
var _ usbserial.Port = (*port)(nil)

func newPort(path string, readTimeout time.Duration) *port {
	return &port{path: path, readTimeout: readTimeout, fd: -1}
}

// getBaudRate converts an integer baud rate to the unix constant
func getBaudRate(rate int) (uint32, error) {
	switch rate {
	case 50:
		return unix.B50, nil
	case 75:
		return unix.B75, nil
	case 110:
		return unix.B110, nil
	case 134:
		return unix.B134, nil
	case 150:
		return unix.B150, nil
	case 200:
		return unix.B200, nil
	case 300:
		return unix.B300, nil
	case 600:
		return unix.B600, nil
	case 1200:
		return unix.B1200, nil
	case 1800:
		return unix.B1800, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 500000:
		return unix.B500000, nil
	case 576000:
		return unix.B576000, nil
	case 921600:
		return unix.B921600, nil
	case 1000000:
		return unix.B1000000, nil
	case 1152000:
		return unix.B1152000, nil
	case 1500000:
		return unix.B1500000, nil
	case 2000000:
		return unix.B2000000, nil
	case 2500000:
		return unix.B2500000, nil
	case 3000000:
		return unix.B3000000, nil
	case 3500000:
		return unix.B3500000, nil
	case 4000000:
		return unix.B4000000, nil
	default:
		return 0, usbserial.ErrInvalidBaudRate
	}
}

// readTimeoutTenths converts the read timeout to VTIME deciseconds
func readTimeoutTenths(d time.Duration) uint8 {
	tenths := d / (100 * time.Millisecond)
	if tenths < 1 {
		tenths = 1
	}
	if tenths > 255 {
		tenths = 255
	}
	return uint8(tenths)
}

// Open opens the tty raw at the default line settings. conn must come from
// the same transport.
func (p *port) Open(conn usbserial.Connection) error {
	if _, ok := conn.(*connection); !ok {
		return fmt.Errorf("%w: foreign connection %T", usbserial.ErrPortNotOpen, conn)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.open {
		return nil
	}

	fd, err := unix.Open(p.path, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", usbserial.ErrDeviceUnavailable, p.path, err)
	}

	if err := configurePort(fd, usbserial.DefaultLineConfig(), readTimeoutTenths(p.readTimeout)); err != nil {
		unix.Close(fd)
		return err
	}

	p.fd = fd
	p.open = true
	p.closed = false
	return nil
}

// SetParameters applies line settings to the open tty
func (p *port) SetParameters(cfg usbserial.LineConfig) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return usbserial.ErrPortNotOpen
	}
	return configurePort(p.fd, cfg, readTimeoutTenths(p.readTimeout))
}

// configurePort puts the tty in raw mode with the given line settings.
// VMIN=0 and VTIME bound every read so readers notice a close.
func configurePort(fd int, cfg usbserial.LineConfig, vtime uint8) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to get termios: %v", err)
	}

	termios.Cflag = unix.CREAD | unix.CLOCAL
	termios.Iflag = 0
	termios.Oflag = 0
	termios.Lflag = 0

	termios.Cc[unix.VMIN] = 0
	termios.Cc[unix.VTIME] = vtime

	baudRate, err := getBaudRate(cfg.BaudRate)
	if err != nil {
		return err
	}
	termios.Cflag = (termios.Cflag &^ unix.CBAUD) | baudRate
	termios.Ispeed = baudRate
	termios.Ospeed = baudRate

	switch cfg.DataBits {
	case 5:
		termios.Cflag |= unix.CS5
	case 6:
		termios.Cflag |= unix.CS6
	case 7:
		termios.Cflag |= unix.CS7
	default:
		termios.Cflag |= unix.CS8
	}

	if cfg.StopBits == 2 {
		termios.Cflag |= unix.CSTOPB
	}

	switch cfg.Parity {
	case usbserial.ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
	case usbserial.ParityEven:
		termios.Cflag |= unix.PARENB
	case usbserial.ParityMark:
		termios.Cflag |= unix.PARENB | unix.PARODD | unix.CMSPAR
	case usbserial.ParitySpace:
		termios.Cflag |= unix.PARENB | unix.CMSPAR
	}

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("failed to set termios: %v", err)
	}
	return nil
}

// Read reads from the tty. It returns (0, nil) when VTIME expires.
func (p *port) Read(buf []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, usbserial.ErrPortClosed
	}
	if !p.open {
		return 0, usbserial.ErrPortNotOpen
	}

	n, err := unix.Read(p.fd, buf)
	if n < 0 {
		n = 0
	}
	return n, err
}

// Close closes the tty. It waits for a running Read to hit its VTIME.
func (p *port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || !p.open {
		return usbserial.ErrPortClosed
	}

	err := unix.Close(p.fd)
	p.fd = -1
	p.open = false
	p.closed = true
	return err
}
