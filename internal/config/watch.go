package config

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/normanking/cortexlipsync/internal/bus"
	"github.com/rs/zerolog"
)

// ErrNoConfigFile is returned when watching a config that came from defaults only.
var ErrNoConfigFile = errors.New("no config file to watch")

// Watcher reloads the config file when it changes on disk. Invalid edits are
// logged and ignored; the previous config stays current.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher

	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)

	eventBus *bus.EventBus
	logger   zerolog.Logger
	done     chan struct{}
	wg       sync.WaitGroup
}

// Watch loads path and starts watching it. eventBus may be nil.
func Watch(path string, eventBus *bus.EventBus, logger zerolog.Logger) (*Watcher, error) {
	cfg, used, err := load(path)
	if err != nil {
		return nil, err
	}
	if used == "" {
		return nil, ErrNoConfigFile
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Editors often replace the file, so watch the directory.
	if err := fw.Add(filepath.Dir(used)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     filepath.Clean(used),
		watcher:  fw,
		current:  cfg,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "config").Logger(),
		done:     make(chan struct{}),
	}

	w.wg.Add(1)
	go w.watchLoop()
	return w, nil
}

// Config returns the current configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Path returns the watched file.
func (w *Watcher) Path() string {
	return w.path
}

// OnChange registers a callback run after each successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Close stops watching.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) watchLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, _, err := load(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("Config reload rejected")
		return
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := make([]func(*Config), len(w.onChange))
	copy(callbacks, w.onChange)
	w.mu.Unlock()

	w.logger.Info().Str("path", w.path).Msg("Config reloaded")
	w.eventBus.Publish(bus.Event{
		Type: bus.EventTypeConfigReloaded,
		Data: map[string]any{"path": w.path},
	})
	for _, fn := range callbacks {
		fn(cfg)
	}
}
