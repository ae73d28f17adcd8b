package usbserial

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Endpoint is one addressable serial port on one attached device
type Endpoint struct {
	Device    Device
	Driver    Driver
	PortIndex int
}

// Key identifies the endpoint across scans for as long as the device
// keeps its ID
func (e Endpoint) Key() string {
	if e.Device == nil {
		return fmt.Sprintf(":%d", e.PortIndex)
	}
	return fmt.Sprintf("%s:%d", e.Device.ID(), e.PortIndex)
}

// Port returns the driver port the endpoint addresses
func (e Endpoint) Port() (Port, error) {
	if e.Driver == nil {
		return nil, ErrInvalidPortIndex
	}
	ports := e.Driver.Ports()
	if e.PortIndex < 0 || e.PortIndex >= len(ports) {
		return nil, fmt.Errorf("%w %d", ErrInvalidPortIndex, e.PortIndex)
	}
	return ports[e.PortIndex], nil
}

func (e Endpoint) String() string {
	name, driver := "", ""
	if e.Device != nil {
		name = e.Device.Name()
	}
	if e.Driver != nil {
		driver = e.Driver.Name()
	}
	return fmt.Sprintf("%s [%s] port %d", name, driver, e.PortIndex)
}

// Catalog turns the attached devices into connectable endpoints
type Catalog struct {
	transport Transport
	store     *Store
	log       zerolog.Logger
}

// NewCatalog creates a catalog that publishes into store
func NewCatalog(transport Transport, store *Store, logger zerolog.Logger) *Catalog {
	return &Catalog{
		transport: transport,
		store:     store,
		log:       logger.With().Str("component", "catalog").Logger(),
	}
}

// Scan enumerates attached devices, probes each one and publishes one
// endpoint per driver port. Devices without a matching driver are skipped.
// Endpoints keep device enumeration order, then port order.
func (c *Catalog) Scan(ctx context.Context) ([]Endpoint, error) {
	devices, err := c.transport.Devices(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	var endpoints []Endpoint
	for _, dev := range devices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		driver, ok := c.transport.Probe(dev)
		if !ok {
			c.log.Debug().Str("device", dev.ID()).Msg("no driver matched")
			continue
		}

		for i := range driver.Ports() {
			ep := Endpoint{Device: dev, Driver: driver, PortIndex: i}
			c.log.Debug().Str("endpoint", ep.Key()).Str("driver", driver.Name()).Msg("found endpoint")
			endpoints = append(endpoints, ep)
		}
	}

	c.store.Update(func(st SessionState) SessionState {
		st.Endpoints = endpoints
		return st
	})

	c.log.Info().Int("devices", len(devices)).Int("endpoints", len(endpoints)).Msg("scan complete")
	return endpoints, nil
}

// Watch rescans every time changes fires until ctx is done or changes is
// closed. Scan errors are logged and do not stop the watch.
func (c *Catalog) Watch(ctx context.Context, changes <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if _, err := c.Scan(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.log.Warn().Err(err).Msg("rescan failed")
			}
		}
	}
}
