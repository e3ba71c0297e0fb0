// Package engine wires the tracker core together: it owns the game-log
// dispatch loop, the periodic remote price refresh, the startup restore
// and the end-of-session bookkeeping. HTTP handlers mutate state through
// it so every mutation raises exactly one change notification for the
// push channel.
package engine

import (
	"context"
	"errors"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kripika/tli-tracker/internal/auth"
	"github.com/kripika/tli-tracker/internal/catalog"
	"github.com/kripika/tli-tracker/internal/config"
	"github.com/kripika/tli-tracker/internal/gamelog"
	"github.com/kripika/tli-tracker/internal/persist"
	"github.com/kripika/tli-tracker/internal/pricing"
	"github.com/kripika/tli-tracker/internal/remote"
	"github.com/kripika/tli-tracker/internal/session"
	"github.com/kripika/tli-tracker/internal/settings"
	"github.com/kripika/tli-tracker/internal/stats"
)

// Backend is the slice of the remote client the engine talks to. nil
// means remote sync is not configured and everything runs local-only.
type Backend interface {
	FetchCurrentPrices(ctx context.Context) ([]pricing.RemotePrice, error)
	FetchPricesWithFallback(ctx context.Context) ([]pricing.LeaguePrice, error)
	FetchCatalog(ctx context.Context) ([]catalog.Item, error)
	UpsertMarketPrice(ctx context.Context, userJWT string, gameID int64, prices []float64, currencyID int64) error
	SyncSession(ctx context.Context, userJWT string, up remote.SessionUpload) (string, error)
}

// TokenSource is the slice of the auth manager the engine needs.
type TokenSource interface {
	LoggedIn() bool
	Session() (auth.Session, bool)
	GetValidToken(ctx context.Context) (string, error)
}

// Notifier receives change signals for the push channel. Calls arrive
// from the dispatch loop and from HTTP handlers concurrently.
type Notifier interface {
	StateChanged()
	SessionEnded(final stats.Stats)
}

// Engine is the assembly point: it builds the catalog, price cache,
// session tracker and stats projector, and routes every mutation.
type Engine struct {
	cfg     *config.Config
	store   *persist.Store
	backend Backend
	auth    TokenSource

	tracker *session.Tracker
	prices  *pricing.Cache
	items   *catalog.Catalog
	stats   *stats.Projector

	clientVersion string

	mu       sync.RWMutex
	settings settings.Settings

	notifier Notifier
	now      func() time.Time
}

// New assembles the tracker core. backend may be nil when remote sync is
// not configured.
func New(cfg *config.Config, store *persist.Store, backend Backend, tokens TokenSource, clientVersion string) *Engine {
	e := &Engine{
		cfg:           cfg,
		store:         store,
		backend:       backend,
		auth:          tokens,
		items:         catalog.New(),
		clientVersion: clientVersion,
		settings:      settings.Default(),
		now:           time.Now,
	}
	e.prices = pricing.NewCache(e.items.IsBaseCurrency, func(entries map[int64]pricing.Entry) {
		if err := store.SavePrices(entries); err != nil {
			log.Printf("[engine] saving price cache: %v", err)
		}
	})
	e.tracker = session.NewTracker(e.items.Has, func(s session.State) {
		if err := store.SaveSession(s); err != nil {
			log.Printf("[engine] saving session snapshot: %v", err)
		}
	})
	e.stats = stats.NewProjector(e.tracker, e.prices, e.items)
	return e
}

// SetNotifier installs the push-channel hook. Must be set before Run.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

func (e *Engine) Tracker() *session.Tracker   { return e.tracker }
func (e *Engine) Prices() *pricing.Cache      { return e.prices }
func (e *Engine) Items() *catalog.Catalog     { return e.items }
func (e *Engine) Projector() *stats.Projector { return e.stats }

// RemoteEnabled reports whether a backend was configured at startup.
func (e *Engine) RemoteEnabled() bool { return e.backend != nil }

func (e *Engine) stateChanged() {
	if e.notifier != nil {
		e.notifier.StateChanged()
	}
}

// Restore loads the persisted state: settings, the price cache and, when
// the previous run died mid-session, the active session snapshot. Call
// once before Run so handlers never observe a half-restored engine.
func (e *Engine) Restore() {
	s, err := e.store.LoadSettings()
	if err != nil {
		log.Printf("[engine] loading settings: %v", err)
		s = settings.Default()
	}
	e.mu.Lock()
	e.settings = s
	e.mu.Unlock()

	entries, err := e.store.LoadPrices()
	if err != nil {
		log.Printf("[engine] loading price cache: %v", err)
	} else if len(entries) > 0 {
		e.prices.LoadPersisted(entries)
		log.Printf("[engine] restored %d cached prices", len(entries))
	}

	st, ok, err := e.store.LoadSession()
	if err != nil {
		log.Printf("[engine] loading session snapshot: %v", err)
	} else if ok {
		e.tracker.Restore(st)
		log.Printf("[engine] restored active session, %d maps completed", st.MapsCompleted)
	}
}

// Run drives the engine until ctx is cancelled: an initial catalog and
// price pull, then game-log events as they arrive and a price refresh
// on a timer. events may be nil when no log is being tailed.
func (e *Engine) Run(ctx context.Context, events <-chan gamelog.Event) {
	e.bootstrapRemote(ctx)

	refreshEvery := e.cfg.Remote.PriceRefreshInterval
	if refreshEvery <= 0 {
		refreshEvery = 5 * time.Minute
	}
	ticker := time.NewTicker(refreshEvery)
	defer ticker.Stop()

	log.Println("[engine] dispatch loop started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[engine] dispatch loop stopped")
			return
		case ev, ok := <-events:
			if !ok {
				// Tailer gone; keep serving timers and handlers.
				events = nil
				continue
			}
			e.dispatch(ctx, ev)
		case <-ticker.C:
			e.RefreshPrices(ctx)
		}
	}
}

func (e *Engine) bootstrapRemote(ctx context.Context) {
	if e.backend == nil {
		log.Println("[engine] remote sync not configured, running local-only")
		return
	}
	if err := e.LoadCatalog(ctx); err != nil {
		log.Printf("[engine] loading item catalog: %v", err)
	}
	e.RefreshPrices(ctx)
}

// LoadCatalog fetches the item table and pins the base currency at 1.0.
func (e *Engine) LoadCatalog(ctx context.Context) error {
	if e.backend == nil {
		return errors.New("remote sync is not configured")
	}
	items, err := e.backend.FetchCatalog(ctx)
	if err != nil {
		return err
	}
	e.items.Replace(items)
	if id, ok := e.items.BaseCurrencyID(); ok {
		e.prices.InitBaseCurrency(id)
	}
	log.Printf("[engine] loaded %d catalog items", len(items))
	e.stateChanged()
	return nil
}

// RefreshPrices merges the newest remote prices into the cache. The
// league-fallback feed is preferred; the plain feed covers backends
// without the RPC. On failure the cache is left untouched.
func (e *Engine) RefreshPrices(ctx context.Context) {
	if e.backend == nil {
		return
	}
	rows, err := e.backend.FetchPricesWithFallback(ctx)
	if err == nil {
		if n := e.prices.MergeWithLeague(rows); n > 0 {
			e.stateChanged()
		}
		return
	}
	log.Printf("[engine] league price fetch failed, trying plain feed: %v", err)

	plain, err := e.backend.FetchCurrentPrices(ctx)
	if err != nil {
		log.Printf("[engine] price refresh failed: %v", err)
		return
	}
	if n := e.prices.MergeRemote(plain); n > 0 {
		e.stateChanged()
	}
}

func (e *Engine) dispatch(ctx context.Context, ev gamelog.Event) {
	switch ev := ev.(type) {
	case gamelog.ItemDrop:
		e.tracker.AddDrop(ev.GameID, ev.Quantity)
		e.stateChanged()
	case gamelog.MapChange:
		e.tracker.HandleMapChange(ev)
		e.stateChanged()
	case gamelog.PriceSearch:
		e.handlePriceSearch(ctx, ev)
	}
}

// handlePriceSearch folds one auction search into the price cache. The
// median of the positive samples resists the bait listings that
// sometimes headline a search page. The samples themselves still go to
// the backend, which runs its own aggregation across users.
func (e *Engine) handlePriceSearch(ctx context.Context, ev gamelog.PriceSearch) {
	samples := make([]float64, 0, len(ev.Prices))
	for _, p := range ev.Prices {
		if p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p) {
			samples = append(samples, p)
		}
	}
	if len(samples) == 0 {
		return
	}

	e.prices.UpdateLocal(ev.GameID, median(samples))
	e.stateChanged()

	if e.backend == nil || !e.auth.LoggedIn() {
		return
	}
	go func() {
		jwt, err := e.auth.GetValidToken(ctx)
		if err != nil {
			log.Printf("[engine] price upsert skipped: %v", err)
			return
		}
		if err := e.backend.UpsertMarketPrice(ctx, jwt, ev.GameID, samples, ev.CurrencyID); err != nil {
			log.Printf("[engine] price upsert for item %d failed: %v", ev.GameID, err)
		}
	}()
}

// median sorts v in place.
func median(v []float64) float64 {
	sort.Float64s(v)
	mid := len(v) / 2
	if len(v)%2 == 0 {
		return (v[mid-1] + v[mid]) / 2
	}
	return v[mid]
}

// StartSession begins a farm session with an optional cost preset.
func (e *Engine) StartSession(presetID string) {
	e.tracker.Start(presetID)
	e.stateChanged()
}

// PauseSession toggles drop counting without ending the session.
func (e *Engine) PauseSession(paused bool) {
	e.tracker.SetPaused(paused)
	e.stateChanged()
}

// SetSessionDuration records the wall-clock duration the UI counter
// reports once a second.
func (e *Engine) SetSessionDuration(sec int) {
	e.tracker.SetDuration(sec)
	e.stateChanged()
}

// UpdatePrice applies a manually entered price. The cache drops
// non-positive and non-finite values silently.
func (e *Engine) UpdatePrice(gameID int64, price float64) {
	e.prices.UpdateLocal(gameID, price)
	e.stateChanged()
}

// AddExpense records a cost line. A missing ID gets a fresh one so the
// UI may omit it.
func (e *Engine) AddExpense(entry session.LedgerEntry) session.LedgerEntry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	e.tracker.AddExpense(entry)
	e.stateChanged()
	return entry
}

func (e *Engine) RemoveExpense(id string) {
	e.tracker.RemoveExpense(id)
	e.stateChanged()
}

// AddManualDrop records a hand-entered drop. The tracker ignores it
// outside an active session.
func (e *Engine) AddManualDrop(entry session.LedgerEntry) session.LedgerEntry {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	e.tracker.AddManualDrop(entry)
	e.stateChanged()
	return entry
}

func (e *Engine) RemoveManualDrop(id string) {
	e.tracker.RemoveManualDrop(id)
	e.stateChanged()
}

// EndSession closes the live session and returns its final stats. The
// numbers are computed before the reset, with the wall-clock duration
// from the UI counter replacing accumulated map time. When a user is
// logged in the record lands in the local history, after a best-effort
// upload so the row carries the backend's ID.
func (e *Engine) EndSession(ctx context.Context) (stats.Stats, error) {
	if !e.tracker.Active() {
		return stats.Stats{}, errors.New("no active session")
	}

	final := e.tracker.End()
	st := e.stats.StatsFor(final)
	final.TotalDurationSec = st.DurationSec

	var totalExpenses float64
	for _, exp := range final.Expenses {
		totalExpenses += exp.UnitPrice * float64(exp.Quantity)
	}
	totalIncome := st.TotalValue

	endedAt := e.now().UTC()
	startedAt := endedAt
	if final.StartedAt != nil {
		startedAt = final.StartedAt.UTC()
	}

	rec := persist.SessionRecord{
		ID:               uuid.NewString(),
		StartedAt:        startedAt,
		EndedAt:          endedAt,
		MapsCompleted:    final.MapsCompleted,
		TotalDurationSec: final.TotalDurationSec,
		TotalProfit:      totalIncome - totalExpenses,
		TotalExpenses:    totalExpenses,
		TotalIncome:      totalIncome,
	}

	if e.backend != nil && e.auth.LoggedIn() {
		remoteID, err := e.syncRemote(ctx, final, rec)
		if err != nil {
			log.Printf("[engine] session upload failed: %v", err)
		} else if remoteID != "" {
			rec.RemoteID = remoteID
			log.Printf("[engine] session uploaded as %s", remoteID)
		}
	}

	if userID, err := e.userID(ctx); err == nil {
		if err := e.store.AppendHistory(userID, rec); err != nil {
			log.Printf("[engine] saving session history: %v", err)
		} else {
			log.Printf("[engine] session %s saved to history", rec.ID)
		}
	}

	if err := e.store.DeleteSession(); err != nil {
		log.Printf("[engine] removing session snapshot: %v", err)
	}

	if e.notifier != nil {
		e.notifier.SessionEnded(st)
	}
	e.stateChanged()
	return st, nil
}

// syncRemote uploads the finished session and returns the backend row ID.
func (e *Engine) syncRemote(ctx context.Context, final session.State, rec persist.SessionRecord) (string, error) {
	jwt, err := e.auth.GetValidToken(ctx)
	if err != nil {
		return "", err
	}
	sess, ok := e.auth.Session()
	if !ok || sess.UserID == "" {
		return "", errors.New("no authenticated user")
	}
	up := remote.SessionUpload{
		UserID:           sess.UserID,
		StartedAt:        rec.StartedAt,
		EndedAt:          rec.EndedAt,
		MapsCompleted:    rec.MapsCompleted,
		TotalDurationSec: rec.TotalDurationSec,
		TotalProfit:      rec.TotalProfit,
		TotalExpenses:    rec.TotalExpenses,
		ClientVersion:    e.clientVersion,
		PresetID:         final.PresetID,
		Drops:            final.Drops,
	}
	return e.backend.SyncSession(ctx, jwt, up)
}

// userID returns the logged-in user's ID, minting a session from the
// stored refresh token when none is live yet.
func (e *Engine) userID(ctx context.Context) (string, error) {
	if sess, ok := e.auth.Session(); ok && sess.UserID != "" {
		return sess.UserID, nil
	}
	if e.backend != nil && e.auth.LoggedIn() {
		if _, err := e.auth.GetValidToken(ctx); err != nil {
			return "", err
		}
		if sess, ok := e.auth.Session(); ok && sess.UserID != "" {
			return sess.UserID, nil
		}
	}
	return "", errors.New("not logged in")
}

// History returns the logged-in user's local session history, newest
// first.
func (e *Engine) History(ctx context.Context, limit int) ([]persist.SessionRecord, error) {
	userID, err := e.userID(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := e.store.LoadHistory(userID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// DeleteHistory removes one record from the local history. Reports
// whether the record existed.
func (e *Engine) DeleteHistory(ctx context.Context, recordID string) (bool, error) {
	userID, err := e.userID(ctx)
	if err != nil {
		return false, err
	}
	return e.store.DeleteHistoryRecord(userID, recordID)
}

// Settings returns the current user preferences.
func (e *Engine) Settings() settings.Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// UpdateSettings persists new preferences and makes them current. The
// in-memory copy is updated even when the disk write fails, so the
// running session keeps the user's intent.
func (e *Engine) UpdateSettings(s settings.Settings) error {
	e.mu.Lock()
	e.settings = s
	e.mu.Unlock()
	return e.store.SaveSettings(s)
}
