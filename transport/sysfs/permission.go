package sysfs

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/allbin/usbserial"
)

// DefaultPermissionWait bounds how long a request waits for a node to
// become accessible before it is reported as denied
const DefaultPermissionWait = 30 * time.Second

// Facility answers permission questions from the access bits of the
// device nodes. A request waits for udev (or an administrator) to make the
// nodes accessible and is denied when that does not happen in time.
type Facility struct {
	wait time.Duration
	log  zerolog.Logger

	mu      sync.Mutex
	stop    chan struct{}
	stopped bool
	wg      sync.WaitGroup
}

// Ensure Facility implements usbserial.PermissionFacility at compile time
var _ usbserial.PermissionFacility = (*Facility)(nil)

// NewFacility creates a facility. A zero wait selects DefaultPermissionWait.
func NewFacility(wait time.Duration, logger zerolog.Logger) *Facility {
	if wait <= 0 {
		wait = DefaultPermissionWait
	}
	return &Facility{
		wait: wait,
		log:  logger.With().Str("component", "sysfs-permission").Logger(),
		stop: make(chan struct{}),
	}
}

// HasPermission reports whether every node of the device is readable and
// writable by this process
func (f *Facility) HasPermission(dev usbserial.Device) bool {
	nd, ok := dev.(usbserial.NodeDevice)
	if !ok {
		return false
	}
	return nodesAccessible(nd.Nodes())
}

func nodesAccessible(nodes []string) bool {
	if len(nodes) == 0 {
		return false
	}
	for _, node := range nodes {
		if unix.Access(node, unix.R_OK|unix.W_OK) != nil {
			return false
		}
	}
	return true
}

// RequestPermission watches the directories holding the device nodes and
// delivers a grant as soon as they become accessible
func (f *Facility) RequestPermission(dev usbserial.Device, channel string, deliver func(usbserial.PermissionResult)) error {
	nd, ok := dev.(usbserial.NodeDevice)
	if !ok {
		return usbserial.ErrDeviceUnavailable
	}
	nodes := nd.Nodes()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dirs := make(map[string]struct{})
	for _, node := range nodes {
		dirs[filepath.Dir(node)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return err
		}
	}

	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		watcher.Close()
		return usbserial.ErrManagerClosed
	}
	f.wg.Add(1)
	f.mu.Unlock()

	f.log.Info().Str("device", dev.ID()).Strs("nodes", nodes).Dur("wait", f.wait).Msg("waiting for device access")

	go func() {
		defer f.wg.Done()
		defer watcher.Close()

		granted := f.waitAccessible(watcher, nodes)
		f.log.Info().Str("device", dev.ID()).Bool("granted", granted).Msg("device access answered")
		deliver(usbserial.PermissionResult{
			Channel:  channel,
			DeviceID: dev.ID(),
			Granted:  granted,
		})
	}()
	return nil
}

func (f *Facility) waitAccessible(watcher *fsnotify.Watcher, nodes []string) bool {
	// The node may have become accessible before the watch was set up
	if nodesAccessible(nodes) {
		return true
	}

	timer := time.NewTimer(f.wait)
	defer timer.Stop()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return false
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Chmod) {
				continue
			}
			if nodesAccessible(nodes) {
				return true
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return false
			}
			f.log.Warn().Err(err).Msg("permission watch error")
		case <-timer.C:
			return false
		case <-f.stop:
			return false
		}
	}
}

// Close answers every pending request with a denial and waits for them
func (f *Facility) Close() error {
	f.mu.Lock()
	if !f.stopped {
		f.stopped = true
		close(f.stop)
	}
	f.mu.Unlock()
	f.wg.Wait()
	return nil
}
