package usbserial

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	mu     sync.Mutex
	chunks [][]byte
	errs   []error
}

func (l *recordingListener) OnNewData(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chunks = append(l.chunks, data)
}

func (l *recordingListener) OnRunError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *recordingListener) snapshot() ([][]byte, []error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([][]byte(nil), l.chunks...), append([]error(nil), l.errs...)
}

func openPort(t *testing.T) *fakePort {
	t.Helper()
	p := newFakePort()
	require.NoError(t, p.Open(&fakeConn{}))
	return p
}

func TestIOManagerDeliversChunksInOrder(t *testing.T) {
	port := openPort(t)
	listener := &recordingListener{}
	m := NewIOManager(port, listener, 16, zerolog.Nop())
	require.NoError(t, m.Start())
	assert.True(t, m.Active())

	port.push([]byte("ab"))
	port.push(nil)
	port.push([]byte("cde"))

	require.Eventually(t, func() bool {
		chunks, _ := listener.snapshot()
		return len(chunks) == 2
	}, 5*time.Second, 5*time.Millisecond)

	m.Detach()
	require.NoError(t, port.Close())
	m.Wait()

	chunks, errs := listener.snapshot()
	assert.Equal(t, [][]byte{[]byte("ab"), []byte("cde")}, chunks)
	assert.Empty(t, errs, "a detached manager reports no error")
	assert.False(t, m.Active())
}

func TestIOManagerSplitsLargeReads(t *testing.T) {
	port := openPort(t)
	listener := &recordingListener{}
	m := NewIOManager(port, listener, 4, zerolog.Nop())
	require.NoError(t, m.Start())

	// copy truncates to the buffer, so a read never exceeds bufferSize
	port.push([]byte("0123456789"))

	require.Eventually(t, func() bool {
		chunks, _ := listener.snapshot()
		return len(chunks) == 1
	}, 5*time.Second, 5*time.Millisecond)
	chunks, _ := listener.snapshot()
	assert.Equal(t, []byte("0123"), chunks[0])

	m.Detach()
	require.NoError(t, port.Close())
	m.Wait()
}

func TestIOManagerReportsRunError(t *testing.T) {
	port := openPort(t)
	listener := &recordingListener{}
	m := NewIOManager(port, listener, 0, zerolog.Nop())
	require.NoError(t, m.Start())

	port.fail([]byte{1, 2, 3, 4}, errWire)

	select {
	case <-m.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not stop")
	}

	require.Eventually(t, func() bool {
		_, errs := listener.snapshot()
		return len(errs) == 1
	}, 5*time.Second, 5*time.Millisecond)

	chunks, errs := listener.snapshot()
	assert.Equal(t, [][]byte{{1, 2, 3, 4}}, chunks)
	assert.ErrorIs(t, errs[0], errWire)
	assert.False(t, m.Active())
	require.NoError(t, port.Close())
}

func TestIOManagerDetachWaitsForCallback(t *testing.T) {
	port := openPort(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var after sync.WaitGroup
	calls := 0
	listener := NewListener(func([]byte) {
		calls++
		once.Do(func() { close(entered) })
		<-release
	}, nil)

	m := NewIOManager(port, listener, 0, zerolog.Nop())
	require.NoError(t, m.Start())
	port.push([]byte{0x01})
	<-entered

	detached := make(chan struct{})
	after.Add(1)
	go func() {
		defer after.Done()
		m.Detach()
		close(detached)
	}()

	assert.Never(t, func() bool {
		select {
		case <-detached:
			return true
		default:
			return false
		}
	}, 50*time.Millisecond, 5*time.Millisecond, "detach returned while a callback was running")

	// Queued data must not reach the listener after the detach
	port.push([]byte{0x02})
	close(release)
	after.Wait()

	require.NoError(t, port.Close())
	m.Wait()
	assert.Equal(t, 1, calls)
}

func TestIOManagerStartTwice(t *testing.T) {
	port := openPort(t)
	m := NewIOManager(port, NewListener(nil, nil), 0, zerolog.Nop())
	require.NoError(t, m.Start())
	assert.ErrorIs(t, m.Start(), ErrListenerStarted)

	m.Detach()
	require.NoError(t, port.Close())
	m.Wait()
}

func TestIOManagerWaitWithoutStart(t *testing.T) {
	m := NewIOManager(newFakePort(), NewListener(nil, nil), 0, zerolog.Nop())
	m.Stop()
	assert.False(t, m.Active())
}
