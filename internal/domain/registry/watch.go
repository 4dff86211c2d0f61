package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/okian/crimecast/pkg/logger"
)

// Watch reloads the artifact whenever its file changes, until ctx is done.
// The parent directory is watched rather than the file, so atomic replaces
// (write to temp, rename over) are seen too. Bursts of events are collapsed
// into one reload after the debounce interval. A file caught mid-write must
// not take the serving artifact down, so watch reloads always keep the last
// good artifact.
func (r *Registry) Watch(ctx context.Context) error {
	if r.path == "" {
		return ErrNoPath
	}
	target, err := filepath.Abs(r.path)
	if err != nil {
		return fmt.Errorf("resolve artifact path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	r.logger.Info(ctx, "watching artifact for changes", logger.String("path", target))

	timer := time.NewTimer(r.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name, err := filepath.Abs(ev.Name)
			if err != nil || name != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			r.logger.Debug(ctx, "artifact file changed", logger.String("op", ev.Op.String()))
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(r.debounce)
			pending = true
		case <-timer.C:
			pending = false
			// Failures are logged and recorded by reload.
			_ = r.reload(ctx, true)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn(ctx, "artifact watcher error", logger.Error(err))
		}
	}
}
