package extraction

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/turtacn/lupa/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lupa/pkg/errors"
)

// Watch observes the directory holding path so that editors which replace
// the file through a rename are picked up too. Events are debounced and each
// burst triggers one Reload. A failed reload is logged and the previous
// model stays active.
func (s *serviceImpl) Watch(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeModelSource, "resolve model path").WithDetail(path)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeModelSource, "create file watcher")
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return errors.Wrap(err, errors.ErrCodeModelSource, "watch model directory").WithDetail(filepath.Dir(abs))
	}
	s.logger.Info("watching model file", logging.String("path", abs))

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(s.cfg.WatchDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("model watcher error", logging.Err(err))
		case <-timer.C:
			s.logger.Info("model file changed, reloading", logging.String("path", abs))
			_ = s.Reload(ctx)
		}
	}
}
