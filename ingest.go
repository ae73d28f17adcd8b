package usbserial

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Listener receives the byte stream of one port
type Listener interface {
	OnNewData(data []byte)
	OnRunError(err error)
}

type listenerFuncs struct {
	onData  func([]byte)
	onError func(error)
}

func (l listenerFuncs) OnNewData(data []byte) {
	if l.onData != nil {
		l.onData(data)
	}
}

func (l listenerFuncs) OnRunError(err error) {
	if l.onError != nil {
		l.onError(err)
	}
}

// NewListener adapts two functions to a Listener. Either may be nil.
func NewListener(onData func([]byte), onError func(error)) Listener {
	return listenerFuncs{onData: onData, onError: onError}
}

// IOManager reads a port on its own goroutine and pushes every non-empty
// chunk to a listener. Callbacks are only forwarded while the manager is
// active; Detach makes it inactive and waits out any callback in flight,
// so nothing reaches the listener once the port starts closing.
type IOManager struct {
	port     Port
	listener Listener
	bufSize  int
	log      zerolog.Logger

	active  atomic.Bool
	started atomic.Bool
	cbMu    sync.RWMutex
	done    chan struct{}
}

// NewIOManager binds a reader to port. bufferSize bounds the largest chunk
// a single read can deliver.
func NewIOManager(port Port, listener Listener, bufferSize int, logger zerolog.Logger) *IOManager {
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	return &IOManager{
		port:     port,
		listener: listener,
		bufSize:  bufferSize,
		log:      logger.With().Str("component", "ingest").Logger(),
		done:     make(chan struct{}),
	}
}

// Start launches the reader goroutine
func (m *IOManager) Start() error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrListenerStarted
	}
	m.active.Store(true)
	go m.run()
	return nil
}

// Active reports whether callbacks are still forwarded
func (m *IOManager) Active() bool {
	return m.active.Load()
}

// Detach stops forwarding callbacks. It returns once no data callback is
// running. It must not be called from OnNewData.
func (m *IOManager) Detach() {
	m.active.Store(false)
	m.cbMu.Lock()
	m.cbMu.Unlock() //nolint:staticcheck // barrier for in-flight callbacks
}

// Wait blocks until the reader goroutine has exited. The reader only
// notices a detach between reads, so close the port first when its reads
// can block indefinitely.
func (m *IOManager) Wait() {
	if !m.started.Load() {
		return
	}
	<-m.done
}

// Done is closed when the reader goroutine has exited
func (m *IOManager) Done() <-chan struct{} {
	return m.done
}

// Stop detaches and waits for the reader to exit
func (m *IOManager) Stop() {
	m.Detach()
	m.Wait()
}

func (m *IOManager) run() {
	err := m.loop()
	close(m.done)

	// Only report errors nobody asked for; a detach wins the race.
	if err != nil && m.active.CompareAndSwap(true, false) {
		m.log.Warn().Err(err).Msg("reader stopped on error")
		m.listener.OnRunError(err)
	}
}

func (m *IOManager) loop() error {
	buf := make([]byte, m.bufSize)
	for m.active.Load() {
		n, err := m.port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			m.deliver(chunk)
		}
		if err != nil {
			if !m.active.Load() {
				return nil
			}
			return err
		}
	}
	return nil
}

func (m *IOManager) deliver(chunk []byte) {
	m.cbMu.RLock()
	defer m.cbMu.RUnlock()
	if !m.active.Load() {
		return
	}
	m.listener.OnNewData(chunk)
}
