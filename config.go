package usbserial

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parity represents the parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	case ParityMark:
		return "mark"
	case ParitySpace:
		return "space"
	default:
		return fmt.Sprintf("parity(%d)", int(p))
	}
}

// Short returns the single-letter form used in "8N1" notation
func (p Parity) Short() string {
	switch p {
	case ParityOdd:
		return "O"
	case ParityEven:
		return "E"
	case ParityMark:
		return "M"
	case ParitySpace:
		return "S"
	default:
		return "N"
	}
}

// ParseParity converts a parity name ("none", "odd", "even", "mark", "space"
// or the single-letter forms) into a Parity
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "n":
		return ParityNone, nil
	case "odd", "o":
		return ParityOdd, nil
	case "even", "e":
		return ParityEven, nil
	case "mark", "m":
		return ParityMark, nil
	case "space", "s":
		return ParitySpace, nil
	default:
		return ParityNone, fmt.Errorf("%w: unknown parity %q", ErrInvalidConfig, s)
	}
}

// LineConfig holds the line parameters applied to a port after it is opened
type LineConfig struct {
	BaudRate int
	DataBits int
	StopBits int
	Parity   Parity
}

// Option is a functional option for configuring the line parameters
type Option func(*LineConfig) error

// DefaultLineConfig returns 19200 baud, 8 data bits, 1 stop bit, no parity
func DefaultLineConfig() LineConfig {
	return LineConfig{
		BaudRate: 19200,
		DataBits: 8,
		StopBits: 1,
		Parity:   ParityNone,
	}
}

// NewLineConfig applies opts on top of DefaultLineConfig
func NewLineConfig(opts ...Option) (LineConfig, error) {
	cfg := DefaultLineConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return LineConfig{}, err
		}
	}
	return cfg, nil
}

// Validate reports whether every field holds a supported value
func (c LineConfig) Validate() error {
	if !IsStandardBaudRate(c.BaudRate) {
		return ErrInvalidBaudRate
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return ErrInvalidConfig
	}
	if c.StopBits != 1 && c.StopBits != 2 {
		return ErrInvalidConfig
	}
	if c.Parity < ParityNone || c.Parity > ParitySpace {
		return ErrInvalidConfig
	}
	return nil
}

func (c LineConfig) String() string {
	return fmt.Sprintf("%d %d%s%d", c.BaudRate, c.DataBits, c.Parity.Short(), c.StopBits)
}

// ParseLineConfig parses the "115200 8N1" notation produced by String.
// The frame part may be omitted ("9600"), in which case data bits, parity
// and stop bits are taken from base.
func ParseLineConfig(s string, base LineConfig) (LineConfig, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 || len(fields) > 2 {
		return LineConfig{}, fmt.Errorf("%w: line settings %q", ErrInvalidConfig, s)
	}

	baud, err := strconv.Atoi(fields[0])
	if err != nil {
		return LineConfig{}, fmt.Errorf("%w: baud rate %q", ErrInvalidBaudRate, fields[0])
	}

	opts := []Option{WithBaudRate(baud), WithDataBits(base.DataBits), WithStopBits(base.StopBits), WithParity(base.Parity)}
	if len(fields) == 2 {
		frame := fields[1]
		if len(frame) != 3 {
			return LineConfig{}, fmt.Errorf("%w: frame %q", ErrInvalidConfig, frame)
		}
		data, err := strconv.Atoi(frame[:1])
		if err != nil {
			return LineConfig{}, fmt.Errorf("%w: data bits %q", ErrInvalidConfig, frame[:1])
		}
		parity, err := ParseParity(frame[1:2])
		if err != nil {
			return LineConfig{}, err
		}
		stop, err := strconv.Atoi(frame[2:])
		if err != nil {
			return LineConfig{}, fmt.Errorf("%w: stop bits %q", ErrInvalidConfig, frame[2:])
		}
		opts = append(opts, WithDataBits(data), WithParity(parity), WithStopBits(stop))
	}
	return NewLineConfig(opts...)
}

// WithBaudRate sets the baud rate
func WithBaudRate(rate int) Option {
	return func(c *LineConfig) error {
		if !IsStandardBaudRate(rate) {
			return ErrInvalidBaudRate
		}
		c.BaudRate = rate
		return nil
	}
}

// WithDataBits sets the number of data bits (5, 6, 7, or 8)
func WithDataBits(bits int) Option {
	return func(c *LineConfig) error {
		if bits < 5 || bits > 8 {
			return ErrInvalidConfig
		}
		c.DataBits = bits
		return nil
	}
}

// WithStopBits sets the number of stop bits (1 or 2)
func WithStopBits(bits int) Option {
	return func(c *LineConfig) error {
		if bits != 1 && bits != 2 {
			return ErrInvalidConfig
		}
		c.StopBits = bits
		return nil
	}
}

// WithParity sets the parity mode
func WithParity(parity Parity) Option {
	return func(c *LineConfig) error {
		if parity < ParityNone || parity > ParitySpace {
			return ErrInvalidConfig
		}
		c.Parity = parity
		return nil
	}
}

var standardBaudRates = []int{
	50, 75, 110, 134, 150, 200, 300, 600, 1200, 1800, 2400, 4800, 9600,
	19200, 38400, 57600, 115200, 230400, 460800, 500000, 576000, 921600,
	1000000, 1152000, 1500000, 2000000, 2500000, 3000000, 3500000, 4000000,
}

// IsStandardBaudRate reports whether rate is one of the rates every
// transport in this module can program
func IsStandardBaudRate(rate int) bool {
	for _, r := range standardBaudRates {
		if r == rate {
			return true
		}
	}
	return false
}

// ConfigurePolicy decides what happens when Port.SetParameters fails
type ConfigurePolicy int

const (
	// ConfigureIgnore logs the failure and keeps streaming with whatever
	// parameters the port already has
	ConfigureIgnore ConfigurePolicy = iota
	// ConfigureAbort tears the session down
	ConfigureAbort
)

func (p ConfigurePolicy) String() string {
	if p == ConfigureAbort {
		return "abort"
	}
	return "ignore"
}

// ParseConfigurePolicy accepts "ignore" or "abort"
func ParseConfigurePolicy(s string) (ConfigurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ignore":
		return ConfigureIgnore, nil
	case "abort":
		return ConfigureAbort, nil
	default:
		return ConfigureIgnore, fmt.Errorf("%w: unknown configure policy %q", ErrInvalidConfig, s)
	}
}

// SessionMode selects how many endpoints may be connected at once
type SessionMode int

const (
	// SingleSession tracks one active connection; connecting another
	// endpoint disconnects the current one first
	SingleSession SessionMode = iota
	// MultiSession keeps one session per endpoint
	MultiSession
)

func (m SessionMode) String() string {
	if m == MultiSession {
		return "multi"
	}
	return "single"
}

// ParseSessionMode accepts "single" or "multi"
func ParseSessionMode(s string) (SessionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "single":
		return SingleSession, nil
	case "multi":
		return MultiSession, nil
	default:
		return SingleSession, fmt.Errorf("%w: unknown session mode %q", ErrInvalidConfig, s)
	}
}

// ReadMode selects how received bytes reach the caller
type ReadMode int

const (
	// ReadModeEvent starts an IOManager that pushes chunks into the store
	ReadModeEvent ReadMode = iota
	// ReadModeDirect leaves the port open without a reader; callers use
	// Manager.Read
	ReadModeDirect
)

func (m ReadMode) String() string {
	if m == ReadModeDirect {
		return "direct"
	}
	return "event"
}

// ParseReadMode accepts "event" or "direct"
func ParseReadMode(s string) (ReadMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "event":
		return ReadModeEvent, nil
	case "direct":
		return ReadModeDirect, nil
	default:
		return ReadModeEvent, fmt.Errorf("%w: unknown read mode %q", ErrInvalidConfig, s)
	}
}

// ManagerConfig holds the session manager settings
type ManagerConfig struct {
	Mode              SessionMode
	ReadMode          ReadMode
	ConfigurePolicy   ConfigurePolicy
	AwaitPermission   bool          // wait for the permission callback instead of returning ErrPermissionPending
	PermissionTimeout time.Duration // 0 waits forever
	OpenTimeout       time.Duration // 0 waits forever
	ReadBufferSize    int
}

// DefaultManagerConfig returns a configuration with sensible defaults
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Mode:              SingleSession,
		ReadMode:          ReadModeEvent,
		ConfigurePolicy:   ConfigureIgnore,
		AwaitPermission:   false,
		PermissionTimeout: 0,
		OpenTimeout:       0,
		ReadBufferSize:    4096,
	}
}
