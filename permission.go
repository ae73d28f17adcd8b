package usbserial

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultPermissionChannel tags permission results that belong to this
// process
const DefaultPermissionChannel = "usbserial.GRANT_USB"

// PermissionState tracks the access negotiation for one device
type PermissionState int

const (
	PermissionUnknown PermissionState = iota
	PermissionRequested
	PermissionGranted
	PermissionDenied
)

func (s PermissionState) String() string {
	switch s {
	case PermissionUnknown:
		return "unknown"
	case PermissionRequested:
		return "requested"
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return fmt.Sprintf("permission(%d)", int(s))
	}
}

// PermissionRequest completes once the OS answers
type PermissionRequest struct {
	deviceID string
	done     chan struct{}
	granted  bool
	err      error
}

func newPermissionRequest(deviceID string) *PermissionRequest {
	return &PermissionRequest{deviceID: deviceID, done: make(chan struct{})}
}

func completedRequest(deviceID string, granted bool) *PermissionRequest {
	r := newPermissionRequest(deviceID)
	r.granted = granted
	close(r.done)
	return r
}

// DeviceID returns the device the request was issued for
func (r *PermissionRequest) DeviceID() string {
	return r.deviceID
}

// Done is closed when the request has been answered
func (r *PermissionRequest) Done() <-chan struct{} {
	return r.done
}

// Granted is only meaningful after Done is closed
func (r *PermissionRequest) Granted() bool {
	select {
	case <-r.done:
		return r.granted
	default:
		return false
	}
}

// Wait blocks until the request is answered or ctx is done
func (r *PermissionRequest) Wait(ctx context.Context) (bool, error) {
	select {
	case <-r.done:
		return r.granted, r.err
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// PermissionGate negotiates device access through a PermissionFacility.
// State and pending requests are keyed by device ID so requests for
// different devices can be in flight at the same time.
type PermissionGate struct {
	facility PermissionFacility
	channel  string
	log      zerolog.Logger

	mu      sync.Mutex
	states  map[string]PermissionState
	pending map[string]*PermissionRequest
}

// NewPermissionGate creates a gate that tags its requests with channel.
// An empty channel selects DefaultPermissionChannel.
func NewPermissionGate(facility PermissionFacility, channel string, logger zerolog.Logger) *PermissionGate {
	if channel == "" {
		channel = DefaultPermissionChannel
	}
	return &PermissionGate{
		facility: facility,
		channel:  channel,
		log:      logger.With().Str("component", "permission").Logger(),
		states:   make(map[string]PermissionState),
		pending:  make(map[string]*PermissionRequest),
	}
}

// Channel returns the identifier results must carry to be accepted
func (g *PermissionGate) Channel() string {
	return g.channel
}

// State returns the negotiation state for a device
func (g *PermissionGate) State(deviceID string) PermissionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.states[deviceID]
}

// HasPermission asks the facility directly
func (g *PermissionGate) HasPermission(dev Device) bool {
	return g.facility.HasPermission(dev)
}

// Request returns a request that is already granted when the process holds
// permission. Otherwise it issues at most one facility request per device;
// callers asking again while it is pending share the same request. A device
// that was denied fails fast with ErrPermissionDenied until Forget is called.
func (g *PermissionGate) Request(dev Device) (*PermissionRequest, error) {
	id := dev.ID()

	if g.facility.HasPermission(dev) {
		return completedRequest(id, true), nil
	}

	g.mu.Lock()
	switch g.states[id] {
	case PermissionDenied:
		g.mu.Unlock()
		return nil, ErrPermissionDenied
	case PermissionGranted:
		g.mu.Unlock()
		return completedRequest(id, true), nil
	case PermissionRequested:
		req := g.pending[id]
		g.mu.Unlock()
		return req, nil
	}

	req := newPermissionRequest(id)
	g.states[id] = PermissionRequested
	g.pending[id] = req
	g.mu.Unlock()

	g.log.Info().Str("device", id).Str("channel", g.channel).Msg("requesting usb permission")

	if err := g.facility.RequestPermission(dev, g.channel, g.Resolve); err != nil {
		g.mu.Lock()
		owned := g.pending[id] == req
		if owned {
			delete(g.pending, id)
			g.states[id] = PermissionUnknown
		}
		g.mu.Unlock()

		if !owned {
			// Answered before the facility reported the error; the answer stands
			g.log.Warn().Err(err).Str("device", id).Msg("permission facility failed after answering")
			return req, nil
		}

		req.err = err
		close(req.done)
		return nil, fmt.Errorf("request permission for %s: %w", id, err)
	}

	return req, nil
}

// Resolve records an answer from the facility. Results tagged with a
// foreign channel and answers for devices without a pending request are
// ignored.
func (g *PermissionGate) Resolve(res PermissionResult) {
	if res.Channel != g.channel {
		g.log.Debug().Str("channel", res.Channel).Str("device", res.DeviceID).Msg("ignoring foreign permission result")
		return
	}

	g.mu.Lock()
	req := g.pending[res.DeviceID]
	if req == nil || g.states[res.DeviceID] != PermissionRequested {
		g.mu.Unlock()
		g.log.Debug().Str("device", res.DeviceID).Msg("ignoring unsolicited permission result")
		return
	}
	if res.Granted {
		g.states[res.DeviceID] = PermissionGranted
	} else {
		g.states[res.DeviceID] = PermissionDenied
	}
	delete(g.pending, res.DeviceID)
	g.mu.Unlock()

	g.log.Info().Str("device", res.DeviceID).Bool("granted", res.Granted).Msg("usb permission answered")

	req.granted = res.Granted
	close(req.done)
}

// Forget resets a device to PermissionUnknown so the next Request asks
// again. A pending request stays pending.
func (g *PermissionGate) Forget(deviceID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.states[deviceID] == PermissionRequested {
		return
	}
	delete(g.states, deviceID)
}
