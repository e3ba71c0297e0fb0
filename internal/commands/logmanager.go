package commands

import (
	"context"
	"log"
	"sync"

	"github.com/kripika/tli-tracker/internal/config"
	"github.com/kripika/tli-tracker/internal/gamelog"
	"github.com/kripika/tli-tracker/internal/settings"
)

// settingsStore is where a user-chosen log path is persisted.
type settingsStore interface {
	Settings() settings.Settings
	UpdateSettings(settings.Settings) error
}

// logManager owns the game-log tailer and lets the UI repoint it at a
// different file without restarting the process. Tailer incarnations
// come and go behind a single events channel that never closes.
type logManager struct {
	root     context.Context
	events   chan gamelog.Event
	settings settingsStore

	mu     sync.Mutex
	path   string
	cancel context.CancelFunc
}

// newLogManager resolves the initial log path (config pin, then the
// persisted user choice, then discovery) and starts tailing it. No
// path is fine: the tracker idles until one is set via the API.
func newLogManager(ctx context.Context, cfg *config.Config, store settingsStore) *logManager {
	m := &logManager{
		root:     ctx,
		events:   make(chan gamelog.Event, 256),
		settings: store,
	}

	path := cfg.GameLog.Path
	if path == "" {
		path = store.Settings().CustomLogPath
	}
	if path == "" {
		if found, ok := gamelog.Discover(); ok {
			path = found
			log.Printf("Discovered game log: %s", path)
		}
	}

	if path == "" {
		log.Println("No game log found; set one via the API or TLI_LOG_PATH")
	} else {
		m.mu.Lock()
		m.startLocked(path)
		m.mu.Unlock()
	}
	return m
}

func (m *logManager) Events() <-chan gamelog.Event { return m.events }

func (m *logManager) Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

// SetPath validates the file, persists the choice and swaps the tailer.
func (m *logManager) SetPath(path string) error {
	if err := gamelog.ValidatePath(path); err != nil {
		return err
	}

	s := m.settings.Settings()
	if s.CustomLogPath != path {
		s.CustomLogPath = path
		if err := m.settings.UpdateSettings(s); err != nil {
			log.Printf("Persisting log path: %v", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
	}
	m.startLocked(path)
	return nil
}

func (m *logManager) Discover() (string, bool) {
	return gamelog.Discover()
}

func (m *logManager) startLocked(path string) {
	ctx, cancel := context.WithCancel(m.root)
	m.path = path
	m.cancel = cancel

	tailer := gamelog.NewTailer(path)
	go func() {
		if err := tailer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("Game log tailer stopped: %v", err)
		}
	}()
	go func() {
		for ev := range tailer.Events() {
			select {
			case m.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	log.Printf("Tailing game log: %s", path)
}
