/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/allbin/usbserial"
	"github.com/allbin/usbserial/internal/config"
	"github.com/allbin/usbserial/internal/logger"
	"github.com/allbin/usbserial/sink"
	"github.com/allbin/usbserial/transport/bugst"
	"github.com/allbin/usbserial/transport/sysfs"
)

// runtime wires the library components for one command invocation
type runtime struct {
	cfg       *config.Config
	log       zerolog.Logger
	transport usbserial.Transport
	sysfs     *sysfs.Transport // nil unless the sysfs transport is selected
	facility  *sysfs.Facility
	store     *usbserial.Store
	gate      *usbserial.PermissionGate
	catalog   *usbserial.Catalog
	manager   *usbserial.Manager
}

func newRuntime(cfg *config.Config) (*runtime, error) {
	mgrCfg, err := cfg.ManagerConfig()
	if err != nil {
		return nil, err
	}

	log := logger.GetLogger()
	rt := &runtime{cfg: cfg, log: log}

	switch cfg.Transport {
	case "bugst":
		rt.transport = bugst.New(bugst.Config{
			ReadTimeout: cfg.Session.ReadTimeout,
			Logger:      log,
		})
	default:
		rt.sysfs = sysfs.New(sysfs.Config{
			SysRoot:     cfg.SysRoot,
			DevRoot:     cfg.DevRoot,
			ReadTimeout: cfg.Session.ReadTimeout,
			Logger:      log,
		})
		rt.transport = rt.sysfs
	}

	rt.facility = sysfs.NewFacility(cfg.Session.PermissionWait, log)
	rt.store = usbserial.NewStore(cfg.Records.Capacity)
	rt.gate = usbserial.NewPermissionGate(rt.facility, usbserial.DefaultPermissionChannel, log)
	rt.catalog = usbserial.NewCatalog(rt.transport, rt.store, log)
	rt.manager = usbserial.NewManager(rt.transport, rt.gate, rt.store, mgrCfg, log)
	return rt, nil
}

// Close disconnects every session and cancels pending permission waits
func (rt *runtime) Close() error {
	err := rt.manager.Close()
	return errors.Join(err, rt.facility.Close())
}

// lineConfig returns the configured line settings
func (rt *runtime) lineConfig() (usbserial.LineConfig, error) {
	return rt.cfg.LineConfig()
}

// startWatch rescans on hot-plug events until ctx is done. It is a no-op
// unless watching is enabled and the sysfs transport is in use.
func (rt *runtime) startWatch(ctx context.Context) error {
	if !rt.cfg.Watch {
		return nil
	}
	if rt.sysfs == nil {
		rt.log.Warn().Str("transport", rt.cfg.Transport).Msg("hot-plug watch needs the sysfs transport")
		return nil
	}

	changes, err := sysfs.Watch(ctx, rt.sysfs.DevRoot(), rt.log)
	if err != nil {
		return fmt.Errorf("watch %s: %w", rt.sysfs.DevRoot(), err)
	}
	go func() {
		if err := rt.catalog.Watch(ctx, changes); err != nil && !errors.Is(err, context.Canceled) {
			rt.log.Warn().Err(err).Msg("hot-plug watch stopped")
		}
	}()
	return nil
}

// resolveEndpoint returns the endpoint named by arg: an endpoint key, a
// device ID (first port) or, when arg is empty, the first endpoint found
func resolveEndpoint(endpoints []usbserial.Endpoint, arg string) (usbserial.Endpoint, error) {
	if len(endpoints) == 0 {
		return usbserial.Endpoint{}, fmt.Errorf("%w: no usb serial endpoints attached", usbserial.ErrDeviceNotFound)
	}
	if arg == "" {
		return endpoints[0], nil
	}
	for _, ep := range endpoints {
		if ep.Key() == arg {
			return ep, nil
		}
	}
	for _, ep := range endpoints {
		if ep.Device.ID() == arg {
			return ep, nil
		}
	}
	for _, ep := range endpoints {
		if nd, ok := ep.Device.(usbserial.NodeDevice); ok {
			nodes := nd.Nodes()
			if ep.PortIndex < len(nodes) && nodes[ep.PortIndex] == arg {
				return ep, nil
			}
		}
	}
	return usbserial.Endpoint{}, fmt.Errorf("%w: %s", usbserial.ErrUnknownEndpoint, arg)
}

// endpointNode returns the device node of an endpoint, if known
func endpointNode(ep usbserial.Endpoint) string {
	nd, ok := ep.Device.(usbserial.NodeDevice)
	if !ok {
		return ""
	}
	nodes := nd.Nodes()
	if ep.PortIndex < 0 || ep.PortIndex >= len(nodes) {
		return ""
	}
	return nodes[ep.PortIndex]
}

// natsSink dials NATS when a URL is configured
func (rt *runtime) natsSink() (sink.Sink, error) {
	if rt.cfg.NATS.URL == "" {
		return nil, nil
	}
	s, err := sink.DialNATS(sink.NATSConfig{
		URL:           rt.cfg.NATS.URL,
		SubjectPrefix: rt.cfg.NATS.Subject,
		Creds:         rt.cfg.NATS.Creds,
		Timeout:       5 * time.Second,
	})
	if err != nil {
		return nil, err
	}
	rt.log.Info().Str("url", rt.cfg.NATS.URL).Str("subject", rt.cfg.NATS.Subject).Msg("publishing records to nats")
	return s, nil
}

// stream connects ep and forwards its records to sinks until ctx is done
// or the session drops. A session that drops on an error returns it.
func (rt *runtime) stream(ctx context.Context, ep usbserial.Endpoint, sinks ...sink.Sink) error {
	line, err := rt.lineConfig()
	if err != nil {
		return err
	}

	// Subscribe before connecting so no transition is missed
	sub := rt.store.Subscribe()
	defer sub.Close()

	fwdCtx, stopForwarder := context.WithCancel(context.Background())
	fwd := sink.NewForwarder(rt.store, rt.log, sinks...)
	fwdDone := make(chan error, 1)
	go func() { fwdDone <- fwd.Run(fwdCtx) }()
	defer func() {
		stopForwarder()
		<-fwdDone
		if lost := fwd.Lost(); lost > 0 {
			rt.log.Warn().Uint64("lost", lost).Msg("records evicted before they were forwarded")
		}
	}()

	if err := rt.manager.Connect(ctx, ep, line); err != nil {
		if errors.Is(err, usbserial.ErrPermissionPending) {
			return fmt.Errorf("%w (use --await-permission to wait for it)", err)
		}
		return err
	}
	key := ep.Key()

	if rt.manager.Config().ReadMode == usbserial.ReadModeDirect {
		pumpDone := make(chan struct{})
		go func() {
			defer close(pumpDone)
			rt.pump(ctx, key)
		}()
		defer func() { <-pumpDone }()
	}

	for {
		select {
		case <-ctx.Done():
			return rt.manager.Disconnect(key)
		case snap, ok := <-sub.C():
			if !ok {
				return nil
			}
			info, found := snap.Session(key)
			if !found || info.Status != usbserial.StatusDisconnected {
				continue
			}
			if info.LastError != nil && info.LastError.Kind != usbserial.FailureConfigure {
				return info.LastError
			}
			return nil
		}
	}
}

// pump reads a direct-mode session until its port is closed. A read error
// while the session is still wanted disconnects it.
func (rt *runtime) pump(ctx context.Context, key string) {
	buf := make([]byte, rt.manager.Config().ReadBufferSize)
	for {
		_, err := rt.manager.Read(key, buf)
		if err == nil {
			continue
		}
		if ctx.Err() == nil && !errors.Is(err, usbserial.ErrNotConnected) && !errors.Is(err, usbserial.ErrPortClosed) {
			rt.log.Error().Err(err).Str("endpoint", key).Msg("direct read failed, disconnecting")
			_ = rt.manager.Disconnect(key)
		}
		return
	}
}
