// Package pricing caches item prices for drop valuation. Prices arrive
// from two directions: the player's own in-game auction searches (always
// current league) and periodic fetches from the remote price service
// (which may fall back to a previous league when the current one has no
// data yet). Entries carry their origin league and age; values older than
// the TTL are kept for display but excluded from fresh-value use.
package pricing

import (
	"encoding/json"
	"math"
	"sync"
	"time"
)

// TTL is how long a cached price stays usable for value calculations.
const TTL = time.Hour

// Entry is one cached price. UpdatedAt orders merges. IsCurrentLeague
// false means the price was carried over from a previous season by the
// remote fallback. Field names match the on-disk cache file.
type Entry struct {
	Price           float64   `json:"price"`
	UpdatedAt       time.Time `json:"updated_at"`
	IsCurrentLeague bool      `json:"is_current_league"`
	LeagueName      string    `json:"league_name,omitempty"`
}

// UnmarshalJSON defaults IsCurrentLeague to true for entries written
// before the league fallback existed.
func (e *Entry) UnmarshalJSON(data []byte) error {
	type alias Entry
	aux := struct {
		*alias
		IsCurrentLeague *bool `json:"is_current_league"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.IsCurrentLeague == nil {
		e.IsCurrentLeague = true
	} else {
		e.IsCurrentLeague = *aux.IsCurrentLeague
	}
	return nil
}

// RemotePrice is a row from the plain current-price feed.
type RemotePrice struct {
	GameID    int64
	Price     float64
	UpdatedAt time.Time
}

// LeaguePrice is a row from the league-fallback feed.
type LeaguePrice struct {
	GameID          int64
	Price           float64
	UpdatedAt       time.Time
	LeagueName      string
	IsCurrentLeague bool
}

// Cache is the price store. The base-currency check and the persist hook
// are injected so the cache carries no catalog or disk dependency.
type Cache struct {
	mu      sync.RWMutex
	entries map[int64]Entry

	isBase  func(int64) bool
	persist func(map[int64]Entry)
	now     func() time.Time
}

// NewCache builds an empty cache. isBase reports whether a game ID is the
// base currency; persist receives a full snapshot after local updates and
// may be nil. Both merges skip base currency: its price is pinned at 1.0
// by InitBaseCurrency and nothing may overwrite it.
func NewCache(isBase func(int64) bool, persist func(map[int64]Entry)) *Cache {
	if isBase == nil {
		isBase = func(int64) bool { return false }
	}
	return &Cache{
		entries: make(map[int64]Entry),
		isBase:  isBase,
		persist: persist,
		now:     time.Now,
	}
}

func validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0
}

func (c *Cache) stale(e Entry) bool {
	return c.now().Sub(e.UpdatedAt) > TTL
}

// Stale reports whether an entry is too old for fresh-value use. Stale
// entries still display, flagged, until something newer arrives.
func (c *Cache) Stale(e Entry) bool {
	return c.stale(e)
}

// UpdateLocal records a price observed in the player's own auction search.
// Local observations are always current league. The full cache is handed
// to the persist hook so the price survives a restart.
func (c *Cache) UpdateLocal(gameID int64, price float64) {
	if c.isBase(gameID) || !validPrice(price) {
		return
	}

	c.mu.Lock()
	c.entries[gameID] = Entry{Price: price, UpdatedAt: c.now(), IsCurrentLeague: true}
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if c.persist != nil {
		c.persist(snapshot)
	}
}

// MergeRemote folds current-price rows into the cache. A row wins only
// when its timestamp is strictly newer than the stored entry. Returns the
// number of entries replaced.
func (c *Cache) MergeRemote(rows []RemotePrice) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	updated := 0
	for _, row := range rows {
		if c.isBase(row.GameID) || !validPrice(row.Price) {
			continue
		}
		existing, ok := c.entries[row.GameID]
		if ok && !row.UpdatedAt.After(existing.UpdatedAt) {
			continue
		}
		c.entries[row.GameID] = Entry{Price: row.Price, UpdatedAt: row.UpdatedAt, IsCurrentLeague: true}
		updated++
	}
	return updated
}

// MergeWithLeague folds league-fallback rows into the cache. A row wins
// when it is newer, or when it upgrades a previous-league entry to the
// current league: league relevance dominates recency.
func (c *Cache) MergeWithLeague(rows []LeaguePrice) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	updated := 0
	for _, row := range rows {
		if c.isBase(row.GameID) || !validPrice(row.Price) {
			continue
		}
		existing, ok := c.entries[row.GameID]
		if ok && !row.UpdatedAt.After(existing.UpdatedAt) &&
			!(!existing.IsCurrentLeague && row.IsCurrentLeague) {
			continue
		}
		c.entries[row.GameID] = Entry{
			Price:           row.Price,
			UpdatedAt:       row.UpdatedAt,
			IsCurrentLeague: row.IsCurrentLeague,
			LeagueName:      row.LeagueName,
		}
		updated++
	}
	return updated
}

// LoadPersisted merges disk entries under in-memory ones: anything already
// cached in this run wins over the snapshot.
func (c *Cache) LoadPersisted(entries map[int64]Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range entries {
		if _, ok := c.entries[id]; !ok {
			c.entries[id] = e
		}
	}
}

// InitBaseCurrency pins the base currency at 1.0. Called after the item
// catalog loads and identifies which item that is.
func (c *Cache) InitBaseCurrency(gameID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[gameID] = Entry{Price: 1.0, UpdatedAt: c.now(), IsCurrentLeague: true}
}

// Get returns the raw entry regardless of age.
func (c *Cache) Get(gameID int64) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[gameID]
	return e, ok
}

// EffectivePrice returns the price usable for value calculations. Base
// currency is always 1.0 and never expires; other items must be cached
// and fresh, otherwise the price is unavailable.
func (c *Cache) EffectivePrice(gameID int64) (float64, bool) {
	if c.isBase(gameID) {
		return 1.0, true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[gameID]
	if !ok || c.stale(e) {
		return 0, false
	}
	return e.Price, true
}

// All returns gameID → price for every cached entry, stale or not.
func (c *Cache) All() map[int64]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[int64]float64, len(c.entries))
	for id, e := range c.entries {
		out[id] = e.Price
	}
	return out
}

// Snapshot returns a copy of every entry.
func (c *Cache) Snapshot() map[int64]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Cache) snapshotLocked() map[int64]Entry {
	out := make(map[int64]Entry, len(c.entries))
	for id, e := range c.entries {
		out[id] = e
	}
	return out
}
