package selectors

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// debounceDelay coalesces the burst of events editors emit on save.
const debounceDelay = 100 * time.Millisecond

// ReloadStats contains statistics about selector reloads.
type ReloadStats struct {
	LastReloadTime time.Time `json:"lastReloadTime,omitempty"`
	ReloadCount    int64     `json:"reloadCount"`
	LastError      error     `json:"-"`
	LastErrorStr   string    `json:"lastError,omitempty"`
}

// Manager serves the current selectors and optionally reloads them when the
// override file changes. Reads are lock-free.
type Manager struct {
	embedded     *Selectors
	current      atomic.Pointer[Selectors]
	externalPath string
	watcher      *fsnotify.Watcher
	stopCh       chan struct{}
	wg           sync.WaitGroup

	mu     sync.Mutex // serializes reloads
	stats  ReloadStats
	closed bool
}

// NewManager loads the embedded selectors and, when externalPath is set, the
// override file on top of them. A broken override file is logged and the
// embedded selectors are used; it only fails if the embedded file is broken.
// With hotReload the override file is watched for changes.
func NewManager(externalPath string, hotReload bool) (*Manager, error) {
	embedded, err := Embedded()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		embedded:     embedded,
		externalPath: externalPath,
		stopCh:       make(chan struct{}),
	}
	m.current.Store(embedded)

	if externalPath == "" {
		return m, nil
	}

	if err := m.Reload(); err != nil {
		log.Warn().
			Err(err).
			Str("path", externalPath).
			Msg("Failed to load external selectors, using embedded defaults")
	} else {
		log.Info().
			Str("path", externalPath).
			Msg("Loaded external selectors file")
	}

	if hotReload {
		if err := m.startWatcher(); err != nil {
			log.Warn().
				Err(err).
				Str("path", externalPath).
				Msg("Failed to start file watcher, hot-reload disabled")
		} else {
			log.Info().
				Str("path", externalPath).
				Msg("Hot-reload enabled for selectors file")
		}
	}

	return m, nil
}

// NewStatic returns a Manager that always serves s. Used by tests and
// one-shot tools that build selectors in code.
func NewStatic(s *Selectors) *Manager {
	m := &Manager{embedded: s, stopCh: make(chan struct{})}
	m.current.Store(s)
	return m
}

// Get returns the current selectors.
func (m *Manager) Get() *Selectors {
	return m.current.Load()
}

// Reload re-reads the external file. On failure the previous selectors stay
// in use.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.externalPath == "" {
		return errors.New("no external selectors path configured")
	}

	err := m.loadExternalLocked()
	m.stats.LastError = err
	return err
}

func (m *Manager) loadExternalLocked() error {
	data, err := os.ReadFile(m.externalPath)
	if err != nil {
		return fmt.Errorf("failed to read selectors file: %w", err)
	}

	override, err := parse(data)
	if err != nil {
		return fmt.Errorf("failed to parse selectors file: %w", err)
	}

	merged := merge(m.embedded, override)
	if err := merged.Validate(); err != nil {
		return err
	}

	m.current.Store(merged)
	m.stats.LastReloadTime = time.Now()
	m.stats.ReloadCount++

	log.Info().
		Int64("reload_count", m.stats.ReloadCount).
		Msg("Selectors reloaded")

	return nil
}

// Stats returns the current reload statistics.
func (m *Manager) Stats() ReloadStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := m.stats
	if stats.LastError != nil {
		stats.LastErrorStr = stats.LastError.Error()
	}
	return stats
}

// Close stops the file watcher. Safe to call multiple times.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

func (m *Manager) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory: editors and config management replace the file
	// by rename, which silently ends a watch on the file itself.
	if err := watcher.Add(filepath.Dir(m.externalPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch selectors directory: %w", err)
	}

	m.watcher = watcher

	m.wg.Add(1)
	go m.watchFile()

	return nil
}

func (m *Manager) watchFile() {
	defer m.wg.Done()

	target := filepath.Clean(m.externalPath)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			log.Debug().
				Str("event", event.Op.String()).
				Str("file", event.Name).
				Msg("Selectors file changed")

			if debounce == nil {
				debounce = time.AfterFunc(debounceDelay, m.reloadFromWatcher)
			} else {
				debounce.Reset(debounceDelay)
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("File watcher error")

		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) reloadFromWatcher() {
	if err := m.Reload(); err != nil {
		log.Warn().
			Err(err).
			Str("path", m.externalPath).
			Msg("Hot-reload failed, keeping previous selectors")
	}
}
