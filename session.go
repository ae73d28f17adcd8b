package usbserial

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// deviceSession owns the handles of one endpoint's connection. All fields
// are guarded by mu; lifecycle operations on one endpoint are serialized.
type deviceSession struct {
	mu sync.Mutex

	id       string
	endpoint Endpoint
	config   LineConfig
	status   Status
	phase    Phase
	conn     Connection
	port     Port
	io       *IOManager
	lastErr  *Failure
}

func (s *deviceSession) infoLocked() SessionInfo {
	return SessionInfo{
		ID:        s.id,
		Endpoint:  s.endpoint,
		Status:    s.status,
		Phase:     s.phase,
		Config:    s.config,
		PortOpen:  s.port != nil,
		Listening: s.io != nil && s.io.Active(),
		LastError: s.lastErr,
	}
}

// Manager drives the connect / disconnect lifecycle of device sessions and
// publishes every transition to the store
type Manager struct {
	cfg       ManagerConfig
	transport Transport
	gate      *PermissionGate
	store     *Store
	log       zerolog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*deviceSession
	closed   bool
}

// NewManager creates a session manager
func NewManager(transport Transport, gate *PermissionGate, store *Store, cfg ManagerConfig, logger zerolog.Logger) *Manager {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultManagerConfig().ReadBufferSize
	}
	return &Manager{
		cfg:       cfg,
		transport: transport,
		gate:      gate,
		store:     store,
		log:       logger.With().Str("component", "session").Logger(),
		now:       time.Now,
		sessions:  make(map[string]*deviceSession),
	}
}

// Store returns the store the manager publishes into
func (m *Manager) Store() *Store {
	return m.store
}

// Gate returns the permission gate used by Connect
func (m *Manager) Gate() *PermissionGate {
	return m.gate
}

// Config returns the manager settings
func (m *Manager) Config() ManagerConfig {
	return m.cfg
}

// ConnectKey connects the endpoint with the given key from the latest scan
func (m *Manager) ConnectKey(ctx context.Context, key string, cfg LineConfig) error {
	ep, ok := m.store.Snapshot().Endpoint(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, key)
	}
	return m.Connect(ctx, ep, cfg)
}

// Connect acquires permission, opens and configures the endpoint's port and
// starts streaming. Progress and failures are published to the store.
//
// When the process lacks permission a request is issued and, unless
// AwaitPermission is set, Connect returns ErrPermissionPending; call it
// again once the request has been granted. Connecting an endpoint that is
// already connected is a no-op.
func (m *Manager) Connect(ctx context.Context, endpoint Endpoint, cfg LineConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	key := endpoint.Key()
	s, others, err := m.prepare(key)
	if err != nil {
		return err
	}

	for _, other := range others {
		m.log.Info().Str("endpoint", other.endpoint.Key()).Msg("disconnecting previous session")
		m.disconnectSession(other, nil)
	}

	// Fresh handles from the latest scan; a rescan may have dropped the
	// endpoint while the previous session was closing
	ep, ok := m.store.Snapshot().Endpoint(key)
	if !ok {
		m.log.Warn().Str("endpoint", key).Msg("endpoint vanished before connect")
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, key)
	}

	if err := m.acquirePermission(ctx, s, ep); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusDisconnected {
		m.log.Debug().Str("endpoint", key).Str("status", s.status.String()).Msg("already connected")
		return nil
	}

	s.endpoint = ep
	s.config = cfg
	s.lastErr = nil
	s.status = StatusConnecting
	s.phase = PhaseOpening
	m.publishLocked(s)

	m.log.Info().Str("endpoint", key).Str("session", s.id).Str("line", cfg.String()).Msg("opening port")

	conn, port, err := m.open(ctx, ep)
	if err != nil {
		m.log.Error().Err(err).Str("endpoint", key).Msg("open failed")
		m.teardownLocked(s, m.failure(FailureOpen, err))
		return fmt.Errorf("open %s: %w", key, err)
	}
	s.conn = conn
	s.port = port
	s.phase = PhaseConfiguring
	m.publishLocked(s)

	if err := port.SetParameters(cfg); err != nil {
		m.log.Warn().Err(err).Str("endpoint", key).Str("policy", m.cfg.ConfigurePolicy.String()).Msg("set parameters failed")
		s.lastErr = m.failure(FailureConfigure, err)
		if m.cfg.ConfigurePolicy == ConfigureAbort {
			m.teardownLocked(s, s.lastErr)
			return fmt.Errorf("configure %s: %w", key, err)
		}
	}

	if m.cfg.ReadMode == ReadModeEvent {
		io := NewIOManager(port, nil, m.cfg.ReadBufferSize, m.log)
		io.listener = NewListener(
			func(data []byte) { m.ingest(key, data) },
			func(err error) { m.handleRunError(s, io, err) },
		)
		if err := io.Start(); err != nil {
			m.teardownLocked(s, m.failure(FailureOpen, err))
			return fmt.Errorf("start reader for %s: %w", key, err)
		}
		s.io = io
	}

	s.status = StatusConnected
	s.phase = PhaseStreaming
	m.publishLocked(s)

	m.log.Info().Str("endpoint", key).Str("session", s.id).Str("read_mode", m.cfg.ReadMode.String()).Msg("connected")
	return nil
}

// prepare finds or creates the session for key and, in single-session
// mode, returns the other sessions that must be closed first
func (m *Manager) prepare(key string) (*deviceSession, []*deviceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, ErrManagerClosed
	}

	ep, ok := m.store.Snapshot().Endpoint(key)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownEndpoint, key)
	}

	s, ok := m.sessions[key]
	if !ok {
		s = &deviceSession{
			id:       uuid.NewString(),
			endpoint: ep,
			status:   StatusDisconnected,
			phase:    PhaseIdle,
		}
		m.sessions[key] = s
	}

	var others []*deviceSession
	if m.cfg.Mode == SingleSession {
		for k, other := range m.sessions {
			if k != key {
				others = append(others, other)
			}
		}
	}
	return s, others, nil
}

// acquirePermission runs without holding the session lock so a pending
// request never blocks Disconnect
func (m *Manager) acquirePermission(ctx context.Context, s *deviceSession, ep Endpoint) error {
	key := ep.Key()

	req, err := m.gate.Request(ep.Device)
	if err != nil {
		m.log.Warn().Err(err).Str("endpoint", key).Msg("permission unavailable")
		m.recordFailure(s, m.failure(FailurePermissionDenied, err))
		return err
	}

	select {
	case <-req.Done():
	default:
		if !m.cfg.AwaitPermission {
			m.log.Info().Str("endpoint", key).Msg("permission pending")
			return ErrPermissionPending
		}
	}

	waitCtx := ctx
	if m.cfg.PermissionTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, m.cfg.PermissionTimeout)
		defer cancel()
	}

	granted, err := req.Wait(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = ErrPermissionTimeout
		}
		m.log.Warn().Err(err).Str("endpoint", key).Msg("permission not answered")
		return err
	}
	if !granted {
		m.log.Warn().Str("endpoint", key).Msg("permission denied")
		m.recordFailure(s, m.failure(FailurePermissionDenied, ErrPermissionDenied))
		return ErrPermissionDenied
	}
	return nil
}

type openResult struct {
	conn Connection
	err  error
}

func (m *Manager) open(ctx context.Context, ep Endpoint) (Connection, Port, error) {
	port, err := ep.Port()
	if err != nil {
		return nil, nil, err
	}

	if m.cfg.OpenTimeout <= 0 && ctx.Done() == nil {
		conn, err := m.openPort(ep.Device, port)
		if err != nil {
			return nil, nil, err
		}
		return conn, port, nil
	}

	openCtx := ctx
	if m.cfg.OpenTimeout > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, m.cfg.OpenTimeout)
		defer cancel()
	}

	results := make(chan openResult, 1)
	go func() {
		conn, err := m.openPort(ep.Device, port)
		results <- openResult{conn: conn, err: err}
	}()

	select {
	case r := <-results:
		if r.err != nil {
			return nil, nil, r.err
		}
		return r.conn, port, nil
	case <-openCtx.Done():
		// Release whatever the abandoned open eventually produces
		go func() {
			if r := <-results; r.err == nil {
				_ = port.Close()
				_ = r.conn.Close()
			}
		}()
		if ctx.Err() == nil {
			return nil, nil, ErrOpenTimeout
		}
		return nil, nil, ctx.Err()
	}
}

func (m *Manager) openPort(dev Device, port Port) (Connection, error) {
	conn, err := m.transport.OpenDevice(dev)
	if err != nil {
		return nil, err
	}
	if err := port.Open(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// Read reads directly from a connected endpoint. It is meant for
// ReadModeDirect; chunks read here are appended to the message log too.
func (m *Manager) Read(key string, buf []byte) (int, error) {
	s := m.session(key)
	if s == nil {
		return 0, ErrNotConnected
	}

	s.mu.Lock()
	port, status := s.port, s.status
	s.mu.Unlock()

	if port == nil || status == StatusDisconnected {
		return 0, ErrNotConnected
	}

	n, err := port.Read(buf)
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		m.ingest(key, chunk)
	}
	return n, err
}

// Disconnect stops the reader, closes the port and publishes the
// endpoint as disconnected. Disconnecting an already disconnected session
// changes nothing.
func (m *Manager) Disconnect(key string) error {
	s := m.session(key)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrNotConnected, key)
	}
	m.disconnectSession(s, nil)
	return nil
}

// ForgetPermission lets the next Connect for the endpoint's device ask for
// permission again after a denial
func (m *Manager) ForgetPermission(key string) error {
	ep, ok := m.store.Snapshot().Endpoint(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, key)
	}
	m.gate.Forget(ep.Device.ID())
	return nil
}

// Close disconnects every session. Later Connect calls fail with
// ErrManagerClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*deviceSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		m.disconnectSession(s, nil)
	}
	return nil
}

func (m *Manager) session(key string) *deviceSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[key]
}

func (m *Manager) disconnectSession(s *deviceSession, cause *Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.teardownLocked(s, cause)
}

// handleRunError runs on the reader goroutine after it has exited
func (m *Manager) handleRunError(s *deviceSession, io *IOManager, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.io != io {
		return
	}
	m.log.Error().Err(err).Str("endpoint", s.endpoint.Key()).Msg("transport error, disconnecting")
	m.teardownLocked(s, m.failure(FailureRuntimeIO, err))
}

// teardownLocked detaches the listener before closing the port so no
// callback can observe a closing port, then releases the connection.
// Close errors are logged and recorded, never returned.
func (m *Manager) teardownLocked(s *deviceSession, cause *Failure) {
	key := s.endpoint.Key()

	if s.status == StatusDisconnected && s.port == nil && s.conn == nil && s.io == nil {
		if cause != nil {
			s.lastErr = cause
			m.publishLocked(s)
		}
		return
	}

	s.phase = PhaseClosing
	m.publishLocked(s)

	if cause != nil {
		s.lastErr = cause
	}

	if s.io != nil {
		s.io.Detach()
	}
	if s.port != nil {
		if err := s.port.Close(); err != nil && !errors.Is(err, ErrPortClosed) {
			m.log.Warn().Err(err).Str("endpoint", key).Msg("close port failed")
			if cause == nil {
				s.lastErr = m.failure(FailureClose, err)
			}
		}
		s.port = nil
	}
	if s.io != nil {
		s.io.Wait()
		s.io = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			m.log.Warn().Err(err).Str("endpoint", key).Msg("close connection failed")
			if cause == nil {
				s.lastErr = m.failure(FailureClose, err)
			}
		}
		s.conn = nil
	}

	s.status = StatusDisconnected
	s.phase = PhaseIdle
	m.publishLocked(s)

	m.log.Info().Str("endpoint", key).Str("session", s.id).Msg("disconnected")
}

func (m *Manager) recordFailure(s *deviceSession, f *Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = f
	m.publishLocked(s)
}

func (m *Manager) publishLocked(s *deviceSession) {
	info := s.infoLocked()
	m.store.Update(func(st SessionState) SessionState {
		return st.withSession(info)
	})
}

func (m *Manager) ingest(key string, chunk []byte) {
	_, _ = m.store.AppendChunk(key, chunk, m.now)
}

func (m *Manager) failure(kind FailureKind, err error) *Failure {
	return &Failure{Kind: kind, Err: err, Time: m.now()}
}
