package notify

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rogersnm/skillmap/internal/model"
	"github.com/rogersnm/skillmap/internal/store"
	"go.uber.org/zap"
)

const debounce = 100 * time.Millisecond

// Watcher turns document file changes under a store root into events. It
// sees writes from every process sharing the directory, including this one.
type Watcher struct {
	BaseDir string
	Events  <-chan model.Event

	events  chan model.Event
	done    chan struct{}
	watcher *fsnotify.Watcher
	logger  *zap.Logger
}

func NewWatcher(baseDir string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	ch := make(chan model.Event, defaultBuffer)
	return &Watcher{
		BaseDir: baseDir,
		Events:  ch,
		events:  ch,
		done:    make(chan struct{}),
		watcher: fw,
		logger:  logger,
	}, nil
}

// Start creates the document directories if needed and begins watching.
func (w *Watcher) Start() error {
	for _, dir := range []string{store.TreesDir, store.StatusesDir} {
		path := filepath.Join(w.BaseDir, dir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", path, err)
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
	}
	go w.loop()
	return nil
}

// Stop closes the watcher and the Events channel.
func (w *Watcher) Stop() {
	w.watcher.Close()
	<-w.done
	close(w.events)
}

func (w *Watcher) loop() {
	defer close(w.done)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(debounce)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				for file := range pending {
					w.emit(file)
				}
				return
			}
			if _, ok := store.NameFromFile(event.Name); !ok {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending[event.Name] = time.Now()
			}

		case <-ticker.C:
			now := time.Now()
			for file, t := range pending {
				if now.Sub(t) >= debounce {
					w.emit(file)
					delete(pending, file)
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) emit(file string) {
	ev, ok := eventForFile(file)
	if !ok {
		return
	}
	select {
	case w.events <- ev:
	default:
		w.logger.Debug("dropping file event", zap.String("file", file))
	}
}

// eventForFile maps a changed document file to an event. Removed status
// files produce nothing: deleting a tree already announces it.
func eventForFile(file string) (model.Event, bool) {
	name, ok := store.NameFromFile(file)
	if !ok {
		return model.Event{}, false
	}
	dir := filepath.Base(filepath.Dir(file))

	info, err := os.Stat(file)
	exists := err == nil
	stamp := time.Now().UTC().Truncate(time.Millisecond)
	if exists {
		stamp = info.ModTime().UTC().Truncate(time.Millisecond)
	}

	switch {
	case dir == store.TreesDir && exists:
		return model.Event{Type: model.EventTreeUpdated, TreeID: name, UpdatedAt: stamp}, true
	case dir == store.TreesDir:
		return model.Event{Type: model.EventTreeDeleted, TreeID: name, UpdatedAt: stamp}, true
	case dir == store.StatusesDir && exists:
		return model.Event{Type: model.EventStatusUpdated, TreeID: name, UpdatedAt: stamp}, true
	}
	return model.Event{}, false
}
