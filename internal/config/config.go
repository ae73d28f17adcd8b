// Package config loads the CLI configuration from an optional YAML file,
// USBSERIAL_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/allbin/usbserial"
	"github.com/allbin/usbserial/internal/logger"
)

// EnvPrefix prefixes environment overrides, e.g. USBSERIAL_LINE_BAUD
const EnvPrefix = "USBSERIAL"

// Config defines the global configuration structure
type Config struct {
	Transport string        `mapstructure:"transport"` // sysfs, bugst
	SysRoot   string        `mapstructure:"sys_root"`
	DevRoot   string        `mapstructure:"dev_root"`
	Watch     bool          `mapstructure:"watch"`
	Line      LineConfig    `mapstructure:"line"`
	Session   SessionConfig `mapstructure:"session"`
	Records   RecordsConfig `mapstructure:"records"`
	NATS      NATSConfig    `mapstructure:"nats"`
	Log       logger.Config `mapstructure:"log"`
}

// LineConfig defines the serial line parameters
type LineConfig struct {
	Baud     int    `mapstructure:"baud"`
	DataBits int    `mapstructure:"data_bits"`
	StopBits int    `mapstructure:"stop_bits"`
	Parity   string `mapstructure:"parity"` // none, odd, even, mark, space
}

// SessionConfig defines connection lifecycle behaviour
type SessionConfig struct {
	Mode              string        `mapstructure:"mode"`             // single, multi
	ReadMode          string        `mapstructure:"read_mode"`        // event, direct
	ConfigurePolicy   string        `mapstructure:"configure_policy"` // ignore, abort
	AwaitPermission   bool          `mapstructure:"await_permission"`
	PermissionTimeout time.Duration `mapstructure:"permission_timeout"`
	PermissionWait    time.Duration `mapstructure:"permission_wait"` // how long the OS side waits for access
	OpenTimeout       time.Duration `mapstructure:"open_timeout"`
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
}

// RecordsConfig bounds the in-memory message log
type RecordsConfig struct {
	Capacity int `mapstructure:"capacity"` // 0 keeps every record
}

// NATSConfig enables publishing records to NATS when URL is set
type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
	Creds   string `mapstructure:"creds"`
}

// SetDefaults registers the defaults on v
func SetDefaults(v *viper.Viper) {
	line := usbserial.DefaultLineConfig()
	mgr := usbserial.DefaultManagerConfig()

	v.SetDefault("transport", "sysfs")
	v.SetDefault("sys_root", "/sys")
	v.SetDefault("dev_root", "/dev")
	v.SetDefault("watch", false)

	v.SetDefault("line.baud", line.BaudRate)
	v.SetDefault("line.data_bits", line.DataBits)
	v.SetDefault("line.stop_bits", line.StopBits)
	v.SetDefault("line.parity", line.Parity.String())

	v.SetDefault("session.mode", mgr.Mode.String())
	v.SetDefault("session.read_mode", mgr.ReadMode.String())
	v.SetDefault("session.configure_policy", mgr.ConfigurePolicy.String())
	v.SetDefault("session.await_permission", mgr.AwaitPermission)
	v.SetDefault("session.permission_timeout", mgr.PermissionTimeout)
	v.SetDefault("session.permission_wait", 30*time.Second)
	v.SetDefault("session.open_timeout", mgr.OpenTimeout)
	v.SetDefault("session.read_buffer_size", mgr.ReadBufferSize)
	v.SetDefault("session.read_timeout", 100*time.Millisecond)

	v.SetDefault("records.capacity", 4096)

	v.SetDefault("nats.subject", "usbserial.records")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stderr")
}

// Load reads configFile (or usbserial.yaml from the usual places when
// empty) into v and unmarshals the result. A missing default file is not
// an error; a missing explicit file is.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("usbserial")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/usbserial/")
		v.AddConfigPath("$HOME/.usbserial")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if _, err := config.LineConfig(); err != nil {
		return nil, err
	}
	if _, err := config.ManagerConfig(); err != nil {
		return nil, err
	}
	switch config.Transport {
	case "sysfs", "bugst":
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", usbserial.ErrInvalidConfig, config.Transport)
	}

	return &config, nil
}

// LineConfig converts the line section into validated line parameters
func (c *Config) LineConfig() (usbserial.LineConfig, error) {
	parity, err := usbserial.ParseParity(c.Line.Parity)
	if err != nil {
		return usbserial.LineConfig{}, err
	}
	return usbserial.NewLineConfig(
		usbserial.WithBaudRate(c.Line.Baud),
		usbserial.WithDataBits(c.Line.DataBits),
		usbserial.WithStopBits(c.Line.StopBits),
		usbserial.WithParity(parity),
	)
}

// ManagerConfig converts the session section into manager settings
func (c *Config) ManagerConfig() (usbserial.ManagerConfig, error) {
	cfg := usbserial.DefaultManagerConfig()

	mode, err := usbserial.ParseSessionMode(c.Session.Mode)
	if err != nil {
		return cfg, err
	}
	readMode, err := usbserial.ParseReadMode(c.Session.ReadMode)
	if err != nil {
		return cfg, err
	}
	policy, err := usbserial.ParseConfigurePolicy(c.Session.ConfigurePolicy)
	if err != nil {
		return cfg, err
	}

	cfg.Mode = mode
	cfg.ReadMode = readMode
	cfg.ConfigurePolicy = policy
	cfg.AwaitPermission = c.Session.AwaitPermission
	cfg.PermissionTimeout = c.Session.PermissionTimeout
	cfg.OpenTimeout = c.Session.OpenTimeout
	if c.Session.ReadBufferSize > 0 {
		cfg.ReadBufferSize = c.Session.ReadBufferSize
	}
	return cfg, nil
}
