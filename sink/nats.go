package sink

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/allbin/usbserial"
)

// DefaultSubjectPrefix is prepended to the endpoint key
const DefaultSubjectPrefix = "usbserial.records"

// publisher is the part of *nats.Conn the sink needs
type publisher interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATSSink publishes each record as JSON on <prefix>.<endpoint>
type NATSSink struct {
	conn   publisher
	prefix string
}

// NATSConfig holds the connection settings
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	Name          string
	Creds         string
	Timeout       time.Duration
}

// DialNATS connects to the server and returns a sink publishing on it
func DialNATS(cfg NATSConfig) (*NATSSink, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = "usbserial"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
	}
	if cfg.Creds != "" {
		opts = append(opts, nats.UserCredentials(cfg.Creds))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	return newNATSSink(nc, cfg.SubjectPrefix), nil
}

func newNATSSink(conn publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{conn: conn, prefix: strings.TrimSuffix(prefix, ".")}
}

// Subject returns the subject a record of endpoint is published on.
// Dots and whitespace in the key would split or break the subject token.
func (s *NATSSink) Subject(endpoint string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '\t', '*', '>':
			return '_'
		}
		return r
	}, endpoint)
	return s.prefix + "." + token
}

func (s *NATSSink) Write(rec usbserial.ReceivedRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.conn.Publish(s.Subject(rec.Endpoint), data)
}

// Close flushes pending publishes and closes the connection
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
