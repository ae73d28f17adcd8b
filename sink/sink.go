// Package sink copies received records out of the store: to files, to
// writers such as stdout, or to NATS subjects.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/allbin/usbserial"
)

// Sink receives records in sequence order
type Sink interface {
	Write(rec usbserial.ReceivedRecord) error
	Close() error
}

// Format selects how a record is written to a byte stream
type Format int

const (
	// FormatJSON writes one JSON object per line
	FormatJSON Format = iota
	// FormatRaw writes the decoded payload bytes
	FormatRaw
	// FormatHex writes "<endpoint> <HEX>" lines
	FormatHex
)

// ParseFormat parses "json", "raw" or "hex"
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "json":
		return FormatJSON, nil
	case "raw":
		return FormatRaw, nil
	case "hex":
		return FormatHex, nil
	default:
		return FormatJSON, fmt.Errorf("unknown format %q (want json, raw or hex)", s)
	}
}

// WriterSink writes records to an io.Writer
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	format Format
	closer io.Closer
	bytes  int64
}

// NewWriterSink writes to w. w is not closed by Close.
func NewWriterSink(w io.Writer, format Format) *WriterSink {
	return &WriterSink{w: w, format: format}
}

// OpenFile opens path in append mode so captures can be resumed without
// overwriting earlier data
func OpenFile(path string, format Format) (*WriterSink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	return &WriterSink{w: file, format: format, closer: file}, nil
}

func (s *WriterSink) Write(rec usbserial.ReceivedRecord) error {
	var out []byte
	switch s.format {
	case FormatRaw:
		b, err := rec.Bytes()
		if err != nil {
			return err
		}
		out = b
	case FormatHex:
		out = []byte(rec.Endpoint + " " + rec.Data + "\n")
	default:
		b, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		out = append(b, '\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.w.Write(out)
	s.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("write error: %w", err)
	}
	return nil
}

// BytesWritten returns the number of bytes written so far
func (s *WriterSink) BytesWritten() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

func (s *WriterSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Forwarder copies every record that appears in the store to its sinks.
// Records evicted from a bounded log before they were forwarded are
// counted as lost.
type Forwarder struct {
	store *usbserial.Store
	sinks []Sink
	log   zerolog.Logger

	next uint64
	lost uint64
}

// NewForwarder forwards records from store, starting with the oldest one
// still in the log
func NewForwarder(store *usbserial.Store, logger zerolog.Logger, sinks ...Sink) *Forwarder {
	return &Forwarder{
		store: store,
		sinks: sinks,
		log:   logger.With().Str("component", "sink").Logger(),
	}
}

// Run forwards until ctx is done, then forwards whatever is left in the
// latest snapshot. Sink errors are logged and do not stop forwarding.
func (f *Forwarder) Run(ctx context.Context) error {
	sub := f.store.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			f.forward(f.store.Snapshot())
			return nil
		case snap, ok := <-sub.C():
			if !ok {
				return nil
			}
			f.forward(snap)
		}
	}
}

// Lost returns how many records were evicted before they could be
// forwarded. Call it after Run has returned.
func (f *Forwarder) Lost() uint64 {
	return f.lost
}

func (f *Forwarder) forward(snap *usbserial.SessionState) {
	for _, rec := range snap.Records {
		if rec.Seq < f.next {
			continue
		}
		if rec.Seq > f.next {
			missed := rec.Seq - f.next
			f.lost += missed
			f.log.Warn().Uint64("missed", missed).Msg("records evicted before forwarding")
		}
		for _, s := range f.sinks {
			if err := s.Write(rec); err != nil {
				f.log.Error().Err(err).Uint64("seq", rec.Seq).Msg("sink write failed")
			}
		}
		f.next = rec.Seq + 1
	}
}
