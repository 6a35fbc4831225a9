package preferences

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"
)

// Watcher reloads a Store when its file changes on disk.
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	debounce time.Duration

	reloadCh chan struct{}
	stopOnce sync.Once
	stopCh   chan struct{}
	done     sync.WaitGroup
}

// NewWatcher creates a watcher for store. Rapid successive changes are
// collapsed into one reload after debounce.
func NewWatcher(store *Store, debounce time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create file watcher")
	}
	return &Watcher{
		store:    store,
		watcher:  w,
		debounce: debounce,
		reloadCh: make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. It returns once the watch is registered.
func (w *Watcher) Start(ctx context.Context) error {
	path, err := filepath.Abs(w.store.Path())
	if err != nil {
		return errors.Wrap(err, "failed to resolve preferences path")
	}
	// Watch the directory: editors replace files rather than writing in place.
	dir := filepath.Dir(path)
	if err := w.watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "failed to watch directory %s", dir)
	}
	zlog.Info().Msgf("preferences: watching: path=%s", path)

	w.done.Add(2)
	go w.watchLoop(ctx, filepath.Base(path))
	go w.reloadLoop(ctx)
	return nil
}

// Stop stops watching and waits for the loops to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if err := w.watcher.Close(); err != nil {
			zlog.Error().Msgf("preferences: error closing watcher: %v", err)
		}
	})
	w.done.Wait()
}

func (w *Watcher) watchLoop(ctx context.Context, name string) {
	defer w.done.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				zlog.Debug().Msgf("preferences: change detected: op=%s", event.Op)
				select {
				case w.reloadCh <- struct{}{}:
				default:
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			zlog.Error().Msgf("preferences: watcher error: %v", err)
		}
	}
}

func (w *Watcher) reloadLoop(ctx context.Context) {
	defer w.done.Done()
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-w.reloadCh:
			timer.Reset(w.debounce)
		case <-timer.C:
			if err := w.store.Reload(); err != nil {
				zlog.Error().Msgf("preferences: reload failed, keeping previous values: %v", err)
				continue
			}
			zlog.Info().Msgf("preferences: reloaded: %+v", w.store.Current())
		}
	}
}
