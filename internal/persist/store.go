// Package persist owns the on-disk snapshot files of the tracker: the
// price cache, user settings, the active session, and the per-user
// session history. Every document is JSON and every write is atomic,
// so a crash mid-save leaves at worst a stale snapshot plus an
// orphaned temp file, never a half-written one.
package persist

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kripika/tli-tracker/internal/pricing"
	"github.com/kripika/tli-tracker/internal/session"
	"github.com/kripika/tli-tracker/internal/settings"
)

const (
	// pricesVersion is bumped when the price file schema changes. Loads
	// fall back to the pre-versioned bare-map format when it is absent.
	pricesVersion   = 2
	settingsVersion = 1

	pricesFileName   = "prices.json"
	settingsFileName = "settings.json"
	sessionFileName  = "session.json"
	appDirName       = "tli-tracker"
)

// Store handles loading and saving the tracker's snapshot files in a
// single data directory.
type Store struct {
	dir string
}

// NewStore creates a Store that reads/writes snapshots in the given
// directory. The directory is created (with parents) on the first save
// if it does not exist. Pass an empty string to use the default XDG
// state path.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = defaultDataDir()
	}
	return &Store{dir: dir}
}

// Dir returns the data directory the store operates on.
func (s *Store) Dir() string { return s.dir }

func (s *Store) pricesPath() string   { return filepath.Join(s.dir, pricesFileName) }
func (s *Store) settingsPath() string { return filepath.Join(s.dir, settingsFileName) }
func (s *Store) sessionPath() string  { return filepath.Join(s.dir, sessionFileName) }

// pricesFile is the versioned on-disk form of the price cache.
type pricesFile struct {
	Version int                     `json:"version"`
	Prices  map[int64]pricing.Entry `json:"prices"`
}

// LoadPrices reads the persisted price cache. A missing file yields an
// empty map. Files written before the versioned format (a bare
// gameID→price map) are upgraded on the fly: each price is stamped
// with the load time and marked current-league, and non-finite or
// non-positive values are dropped.
func (s *Store) LoadPrices() (map[int64]pricing.Entry, error) {
	data, err := os.ReadFile(s.pricesPath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[int64]pricing.Entry{}, nil
		}
		return nil, fmt.Errorf("reading prices: %w", err)
	}

	var f pricesFile
	if err := json.Unmarshal(data, &f); err == nil && f.Version > 0 {
		if f.Prices == nil {
			f.Prices = map[int64]pricing.Entry{}
		}
		return f.Prices, nil
	}

	// Legacy format: a bare map of gameID to unit price.
	var legacy map[int64]float64
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("parsing prices: %w", err)
	}
	now := time.Now().UTC()
	prices := make(map[int64]pricing.Entry, len(legacy))
	for id, price := range legacy {
		if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
			continue
		}
		prices[id] = pricing.Entry{
			Price:           price,
			UpdatedAt:       now,
			IsCurrentLeague: true,
		}
	}
	return prices, nil
}

// SavePrices writes the price cache atomically. Entries with a
// non-finite or non-positive price are dropped rather than written.
func (s *Store) SavePrices(prices map[int64]pricing.Entry) error {
	clean := make(map[int64]pricing.Entry, len(prices))
	for id, e := range prices {
		if math.IsNaN(e.Price) || math.IsInf(e.Price, 0) || e.Price <= 0 {
			continue
		}
		clean[id] = e
	}
	return s.atomicWrite(s.pricesPath(), pricesFile{Version: pricesVersion, Prices: clean})
}

// settingsFile is the versioned on-disk form of the user settings.
type settingsFile struct {
	Version  int               `json:"version"`
	Settings settings.Settings `json:"settings"`
}

// LoadSettings reads the persisted settings. A missing file yields the
// defaults. Both the versioned format and the legacy bare-object
// format are decoded over the defaults, so fields added since the file
// was written keep their default values.
func (s *Store) LoadSettings() (settings.Settings, error) {
	data, err := os.ReadFile(s.settingsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return settings.Default(), nil
		}
		return settings.Settings{}, fmt.Errorf("reading settings: %w", err)
	}

	var probe struct {
		Version  int             `json:"version"`
		Settings json.RawMessage `json:"settings"`
	}
	if err := json.Unmarshal(data, &probe); err == nil && probe.Version > 0 && len(probe.Settings) > 0 {
		out := settings.Default()
		if err := json.Unmarshal(probe.Settings, &out); err != nil {
			return settings.Settings{}, fmt.Errorf("parsing settings: %w", err)
		}
		return out, nil
	}

	// Legacy format: the settings object at the top level.
	out := settings.Default()
	if err := json.Unmarshal(data, &out); err != nil {
		return settings.Settings{}, fmt.Errorf("parsing settings: %w", err)
	}
	return out, nil
}

// SaveSettings writes the settings atomically.
func (s *Store) SaveSettings(cfg settings.Settings) error {
	return s.atomicWrite(s.settingsPath(), settingsFile{Version: settingsVersion, Settings: cfg})
}

// LoadSession reads the persisted active session. The second return is
// false when there is no recoverable session: the file is missing, or
// it holds a snapshot that was never started.
func (s *Store) LoadSession() (session.State, bool, error) {
	data, err := os.ReadFile(s.sessionPath())
	if err != nil {
		if os.IsNotExist(err) {
			return session.State{}, false, nil
		}
		return session.State{}, false, fmt.Errorf("reading session: %w", err)
	}

	var st session.State
	if err := json.Unmarshal(data, &st); err != nil {
		return session.State{}, false, fmt.Errorf("parsing session: %w", err)
	}
	if st.StartedAt == nil {
		return session.State{}, false, nil
	}
	return st, true, nil
}

// SaveSession writes the active session snapshot atomically.
func (s *Store) SaveSession(st session.State) error {
	return s.atomicWrite(s.sessionPath(), st)
}

// DeleteSession removes the active session snapshot. Deleting a
// snapshot that does not exist is not an error.
func (s *Store) DeleteSession() error {
	if err := os.Remove(s.sessionPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session: %w", err)
	}
	return nil
}

// atomicWrite marshals doc and writes it to path via a temp file in
// the same directory. The existing target is removed before the
// rename: renaming over an existing file fails on some platforms.
func (s *Store) atomicWrite(path string, doc any) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	base := filepath.Base(path)
	pattern := "." + strings.TrimSuffix(base, filepath.Ext(base)) + "-*.tmp"
	tmp, err := os.CreateTemp(s.dir, pattern)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing old %s: %w", base, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming %s: %w", base, err)
	}
	committed = true

	return nil
}

// defaultDataDir returns ~/.local/state/tli-tracker, respecting
// XDG_STATE_HOME if set.
func defaultDataDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}
