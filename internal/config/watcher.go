package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Watcher monitors the .env file for changes and updates runtime config.
// Only settings that are safe to change without a restart are applied:
// log level and the backend bearer token.
type Watcher struct {
	config      *Config
	envPath     string
	watcher     *fsnotify.Watcher
	stopChan    chan struct{}
	stopOnce    sync.Once
	lastModTime time.Time
	mu          sync.Mutex
	onChange    func(changes []string)
}

// NewWatcher creates a watcher for the .env file in the config's data dir.
func NewWatcher(cfg *Config) (*Watcher, error) {
	envPath := filepath.Join(cfg.DataDir, ".env")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		config:   cfg,
		envPath:  envPath,
		watcher:  watcher,
		stopChan: make(chan struct{}),
	}

	if stat, err := os.Stat(envPath); err == nil {
		w.lastModTime = stat.ModTime()
	}

	return w, nil
}

// SetChangeCallback sets the callback invoked after config changes are applied.
func (w *Watcher) SetChangeCallback(callback func(changes []string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = callback
}

// Values returns the runtime-reloadable settings under the watcher lock, so
// callbacks never read Config fields that a concurrent reload is writing.
func (w *Watcher) Values() (logLevel, backendToken string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.config.LogLevel, w.config.BackendToken
}

// Start begins watching the env file's directory.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.envPath)
	if err := w.watcher.Add(dir); err != nil {
		log.Warn().Err(err).Str("path", dir).Msg("Failed to watch config directory, falling back to polling")
		go w.pollForChanges()
		return nil
	}

	go w.watchForChanges()
	log.Info().Str("env_path", w.envPath).Msg("Started watching config file for changes")
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.watcher.Close()
	})
}

func (w *Watcher) watchForChanges() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != ".env" && event.Name != w.envPath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Debounce - wait a bit for the write to complete.
			time.Sleep(100 * time.Millisecond)
			log.Info().Str("event", event.Op.String()).Msg("Detected .env file change")
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Config watcher error")

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) pollForChanges() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stat, err := os.Stat(w.envPath)
			if err != nil {
				continue
			}
			if stat.ModTime().After(w.lastModTime) {
				w.lastModTime = stat.ModTime()
				log.Info().Msg("Detected .env file change via polling")
				w.reload()
			}

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	envMap, err := godotenv.Read(w.envPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error().Err(err).Msg("Failed to read .env file")
		}
		return
	}

	var changes []string

	if level := strings.Trim(envMap["GOFIT_LOG_LEVEL"], "'\""); level != "" && level != w.config.LogLevel {
		w.config.LogLevel = level
		changes = append(changes, "log level updated")
	}

	if token := strings.Trim(envMap["GOFIT_BACKEND_TOKEN"], "'\""); token != w.config.BackendToken {
		w.config.BackendToken = token
		if token == "" {
			changes = append(changes, "backend token removed")
		} else {
			changes = append(changes, "backend token updated")
		}
	}

	if len(changes) == 0 {
		log.Debug().Msg("No relevant changes detected in .env file")
		return
	}

	log.Info().Strs("changes", changes).Msg("Applied .env file changes to runtime config")

	if w.onChange != nil {
		go w.onChange(changes)
	}
}
