package usbserial

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Status is the connection status published for a session
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Phase is the lifecycle step a session is in
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseOpening
	PhaseConfiguring
	PhaseStreaming
	PhaseClosing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseOpening:
		return "opening"
	case PhaseConfiguring:
		return "configuring"
	case PhaseStreaming:
		return "streaming"
	case PhaseClosing:
		return "closing"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// FailureKind classifies the failures a session can record
type FailureKind int

const (
	FailurePermissionDenied FailureKind = iota + 1
	FailureOpen
	FailureConfigure
	FailureRuntimeIO
	FailureClose
)

func (k FailureKind) String() string {
	switch k {
	case FailurePermissionDenied:
		return "permission_denied"
	case FailureOpen:
		return "open_failure"
	case FailureConfigure:
		return "configure_failure"
	case FailureRuntimeIO:
		return "runtime_io_failure"
	case FailureClose:
		return "close_failure"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

// Failure is the last error recorded on a session
type Failure struct {
	Kind FailureKind
	Err  error
	Time time.Time
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// SessionInfo is the observable view of one endpoint's session
type SessionInfo struct {
	ID        string
	Endpoint  Endpoint
	Status    Status
	Phase     Phase
	Config    LineConfig
	PortOpen  bool
	Listening bool
	LastError *Failure
}

// SessionState is the aggregate published to observers. Snapshots are
// shared between readers and must be treated as read-only.
type SessionState struct {
	Version   uint64
	Endpoints []Endpoint
	Sessions  []SessionInfo
	Records   []ReceivedRecord
	NextSeq   uint64
	Dropped   uint64
}

// Session looks up the session for an endpoint key
func (s SessionState) Session(key string) (SessionInfo, bool) {
	for _, info := range s.Sessions {
		if info.Endpoint.Key() == key {
			return info, true
		}
	}
	return SessionInfo{}, false
}

// Endpoint looks up an endpoint from the latest scan
func (s SessionState) Endpoint(key string) (Endpoint, bool) {
	for _, ep := range s.Endpoints {
		if ep.Key() == key {
			return ep, true
		}
	}
	return Endpoint{}, false
}

// withSession returns a copy of s with info inserted or replaced
func (s SessionState) withSession(info SessionInfo) SessionState {
	key := info.Endpoint.Key()
	sessions := make([]SessionInfo, 0, len(s.Sessions)+1)
	replaced := false
	for _, existing := range s.Sessions {
		if existing.Endpoint.Key() == key {
			sessions = append(sessions, info)
			replaced = true
			continue
		}
		sessions = append(sessions, existing)
	}
	if !replaced {
		sessions = append(sessions, info)
	}
	s.Sessions = sessions
	return s
}

// Store is the single source of truth for catalog, sessions and the
// message log. Writes are serialized; reads are lock-free snapshots.
type Store struct {
	mu       sync.Mutex
	current  atomic.Pointer[SessionState]
	capacity int
	subs     map[*Subscription]struct{}
}

// NewStore creates a store whose message log keeps at most capacity
// records. A capacity of 0 keeps every record.
func NewStore(capacity int) *Store {
	s := &Store{
		capacity: capacity,
		subs:     make(map[*Subscription]struct{}),
	}
	s.current.Store(&SessionState{})
	return s
}

// Snapshot returns the latest published state
func (s *Store) Snapshot() *SessionState {
	return s.current.Load()
}

// Update applies fn to the latest state and publishes the result
func (s *Store) Update(fn func(SessionState) SessionState) *SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publishLocked(fn(*s.current.Load()))
}

// AppendRecord assigns the next sequence number to rec and appends it to
// the message log, evicting the oldest record when the log is full
func (s *Store) AppendRecord(rec ReceivedRecord) ReceivedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(rec)
}

// AppendChunk stamps chunk with now() and appends it in one step, so
// sequence order and time order agree across concurrent readers
func (s *Store) AppendChunk(endpoint string, chunk []byte, now func() time.Time) (ReceivedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := NewRecord(endpoint, now(), chunk)
	if err != nil {
		return rec, err
	}
	return s.appendLocked(rec), nil
}

func (s *Store) appendLocked(rec ReceivedRecord) ReceivedRecord {
	next := *s.current.Load()
	rec.Seq = next.NextSeq
	next.NextSeq++

	records := next.Records
	if s.capacity > 0 && len(records) >= s.capacity {
		drop := len(records) - s.capacity + 1
		records = records[drop:]
		next.Dropped += uint64(drop)
	}
	next.Records = append(records, rec)

	s.publishLocked(next)
	return rec
}

func (s *Store) publishLocked(next SessionState) *SessionState {
	next.Version = s.current.Load().Version + 1
	snap := &next
	s.current.Store(snap)
	for sub := range s.subs {
		sub.offer(snap)
	}
	return snap
}

// Subscribe registers an observer. The returned subscription immediately
// holds the latest snapshot and then every later one; a slow observer only
// ever sees the newest snapshot it has not consumed yet.
func (s *Store) Subscribe() *Subscription {
	sub := &Subscription{
		ch:    make(chan *SessionState, 1),
		store: s,
	}
	s.mu.Lock()
	sub.offer(s.current.Load())
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

// Subscription delivers snapshots to one observer
type Subscription struct {
	ch     chan *SessionState
	store  *Store
	closed bool
}

// C returns the snapshot channel. It is closed by Close.
func (sub *Subscription) C() <-chan *SessionState {
	return sub.ch
}

// Close unregisters the observer
func (sub *Subscription) Close() {
	sub.store.mu.Lock()
	defer sub.store.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	delete(sub.store.subs, sub)
	close(sub.ch)
}

// offer must be called with the store lock held
func (sub *Subscription) offer(snap *SessionState) {
	select {
	case sub.ch <- snap:
		return
	default:
	}
	// Replace the stale snapshot the observer has not read yet
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- snap:
	default:
	}
}
