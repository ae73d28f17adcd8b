package sysfs

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch signals on the returned channel whenever a USB tty node appears in
// or disappears from devRoot. Signals coalesce; the channel is closed when
// ctx is done.
func Watch(ctx context.Context, devRoot string, logger zerolog.Logger) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(devRoot); err != nil {
		watcher.Close()
		return nil, err
	}

	log := logger.With().Str("component", "sysfs-watch").Logger()
	changes := make(chan struct{}, 1)

	go func() {
		defer close(changes)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
					continue
				}
				if !ttyPattern.MatchString(filepath.Base(event.Name)) {
					continue
				}
				log.Debug().Str("node", event.Name).Str("op", event.Op.String()).Msg("tty changed")
				select {
				case changes <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("watch error")
			}
		}
	}()

	return changes, nil
}
