package pricing

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

const baseID = 100

func newTestCache(persist func(map[int64]Entry)) *Cache {
	return NewCache(func(id int64) bool { return id == baseID }, persist)
}

func fixCacheClock(c *Cache, at time.Time) {
	c.now = func() time.Time { return at }
}

func TestUpdateLocalStoresCurrentLeague(t *testing.T) {
	c := newTestCache(nil)
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	fixCacheClock(c, now)

	c.UpdateLocal(200, 12.5)

	e, ok := c.Get(200)
	if !ok {
		t.Fatal("Get(200) returned ok=false after UpdateLocal")
	}
	if e.Price != 12.5 {
		t.Errorf("Price = %v, want 12.5", e.Price)
	}
	if !e.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v, want %v", e.UpdatedAt, now)
	}
	if !e.IsCurrentLeague {
		t.Error("IsCurrentLeague = false, local observations are always current league")
	}
}

func TestUpdateLocalRejectsBaseCurrency(t *testing.T) {
	c := newTestCache(nil)
	c.UpdateLocal(baseID, 50.0)
	if _, ok := c.Get(baseID); ok {
		t.Error("UpdateLocal stored a base-currency price")
	}
}

func TestUpdateLocalRejectsInvalidPrices(t *testing.T) {
	c := newTestCache(nil)
	for _, p := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		c.UpdateLocal(200, p)
	}
	if _, ok := c.Get(200); ok {
		t.Error("UpdateLocal stored an invalid price")
	}
}

func TestUpdateLocalCallsPersistHook(t *testing.T) {
	var got map[int64]Entry
	c := newTestCache(func(snap map[int64]Entry) { got = snap })

	c.UpdateLocal(200, 3.0)

	if got == nil {
		t.Fatal("persist hook not called")
	}
	if len(got) != 1 || got[200].Price != 3.0 {
		t.Errorf("persist snapshot = %v, want one entry for 200 @ 3.0", got)
	}
}

func TestUpdateLocalSkipsPersistOnRejected(t *testing.T) {
	called := false
	c := newTestCache(func(map[int64]Entry) { called = true })

	c.UpdateLocal(baseID, 5.0)
	c.UpdateLocal(200, -4.0)

	if called {
		t.Error("persist hook called for a rejected update")
	}
}

func TestMergeRemoteStrictlyNewerWins(t *testing.T) {
	c := newTestCache(nil)
	t0 := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	if n := c.MergeRemote([]RemotePrice{{GameID: 200, Price: 10, UpdatedAt: t0}}); n != 1 {
		t.Fatalf("initial merge updated %d entries, want 1", n)
	}

	// Same timestamp: not strictly newer, keep what we have.
	if n := c.MergeRemote([]RemotePrice{{GameID: 200, Price: 11, UpdatedAt: t0}}); n != 0 {
		t.Errorf("equal-timestamp merge updated %d entries, want 0", n)
	}
	// Older: ignored.
	if n := c.MergeRemote([]RemotePrice{{GameID: 200, Price: 12, UpdatedAt: t0.Add(-time.Minute)}}); n != 0 {
		t.Errorf("older merge updated %d entries, want 0", n)
	}
	if e, _ := c.Get(200); e.Price != 10 {
		t.Errorf("Price = %v after stale merges, want 10", e.Price)
	}

	// Strictly newer: replaces.
	if n := c.MergeRemote([]RemotePrice{{GameID: 200, Price: 13, UpdatedAt: t0.Add(time.Minute)}}); n != 1 {
		t.Errorf("newer merge updated %d entries, want 1", n)
	}
	if e, _ := c.Get(200); e.Price != 13 {
		t.Errorf("Price = %v after newer merge, want 13", e.Price)
	}
}

func TestMergeRemoteSkipsBaseAndInvalid(t *testing.T) {
	c := newTestCache(nil)
	now := time.Now()
	n := c.MergeRemote([]RemotePrice{
		{GameID: baseID, Price: 9, UpdatedAt: now},
		{GameID: 201, Price: 0, UpdatedAt: now},
		{GameID: 202, Price: math.NaN(), UpdatedAt: now},
		{GameID: 203, Price: math.Inf(1), UpdatedAt: now},
	})
	if n != 0 {
		t.Errorf("merge updated %d entries, want 0", n)
	}
	for _, id := range []int64{baseID, 201, 202, 203} {
		if _, ok := c.Get(id); ok {
			t.Errorf("entry %d stored, want rejected", id)
		}
	}
}

func TestMergeWithLeagueCurrentBeatsOlderTimestamp(t *testing.T) {
	c := newTestCache(nil)
	t0 := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	// Previous-season price, recently synced.
	c.MergeWithLeague([]LeaguePrice{
		{GameID: 200, Price: 10, UpdatedAt: t0, LeagueName: "SS10", IsCurrentLeague: false},
	})
	// Current-season price with an OLDER timestamp must still win.
	n := c.MergeWithLeague([]LeaguePrice{
		{GameID: 200, Price: 8, UpdatedAt: t0.Add(-time.Hour), LeagueName: "SS11", IsCurrentLeague: true},
	})
	if n != 1 {
		t.Fatalf("league upgrade updated %d entries, want 1", n)
	}
	e, _ := c.Get(200)
	if e.Price != 8 || !e.IsCurrentLeague || e.LeagueName != "SS11" {
		t.Errorf("entry = %+v, want current-league SS11 @ 8", e)
	}
}

func TestMergeWithLeagueSameLeagueRecencyRules(t *testing.T) {
	c := newTestCache(nil)
	t0 := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	c.MergeWithLeague([]LeaguePrice{
		{GameID: 200, Price: 10, UpdatedAt: t0, LeagueName: "SS11", IsCurrentLeague: true},
	})
	// Older current-league row: no upgrade possible, recency keeps the stored one.
	if n := c.MergeWithLeague([]LeaguePrice{
		{GameID: 200, Price: 9, UpdatedAt: t0.Add(-time.Minute), LeagueName: "SS11", IsCurrentLeague: true},
	}); n != 0 {
		t.Errorf("older current-league merge updated %d entries, want 0", n)
	}
	// Newer row always wins, even when it downgrades the league.
	if n := c.MergeWithLeague([]LeaguePrice{
		{GameID: 200, Price: 7, UpdatedAt: t0.Add(time.Minute), LeagueName: "SS10", IsCurrentLeague: false},
	}); n != 1 {
		t.Errorf("newer merge updated %d entries, want 1", n)
	}
	if e, _ := c.Get(200); e.IsCurrentLeague || e.Price != 7 {
		t.Errorf("entry = %+v, want previous-league @ 7", e)
	}
}

func TestEffectivePriceBaseCurrencyNeverStale(t *testing.T) {
	c := newTestCache(nil)
	start := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	fixCacheClock(c, start)
	c.InitBaseCurrency(baseID)

	// Far beyond any TTL.
	fixCacheClock(c, start.Add(1000*time.Hour))

	p, ok := c.EffectivePrice(baseID)
	if !ok || p != 1.0 {
		t.Errorf("EffectivePrice(base) = %v, %v, want 1.0, true", p, ok)
	}
}

func TestEffectivePriceBaseWithoutEntry(t *testing.T) {
	c := newTestCache(nil)
	p, ok := c.EffectivePrice(baseID)
	if !ok || p != 1.0 {
		t.Errorf("EffectivePrice(base) = %v, %v without an entry, want 1.0, true", p, ok)
	}
}

func TestEffectivePriceTTLBoundary(t *testing.T) {
	c := newTestCache(nil)
	start := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	fixCacheClock(c, start)
	c.UpdateLocal(200, 5.0)

	// Exactly TTL old: still usable (staleness is strictly greater-than).
	fixCacheClock(c, start.Add(TTL))
	if _, ok := c.EffectivePrice(200); !ok {
		t.Error("price exactly TTL old reported unavailable, want usable")
	}

	// One second past: unavailable.
	fixCacheClock(c, start.Add(TTL+time.Second))
	if _, ok := c.EffectivePrice(200); ok {
		t.Error("price past TTL reported usable, want unavailable")
	}
	// But the raw entry is retained, not deleted.
	if _, ok := c.Get(200); !ok {
		t.Error("stale entry was deleted, want retained")
	}
}

func TestEffectivePriceMissing(t *testing.T) {
	c := newTestCache(nil)
	if _, ok := c.EffectivePrice(999); ok {
		t.Error("EffectivePrice for missing entry returned ok=true")
	}
}

func TestLoadPersistedKeepsInMemoryEntries(t *testing.T) {
	c := newTestCache(nil)
	c.UpdateLocal(200, 42.0)

	c.LoadPersisted(map[int64]Entry{
		200: {Price: 1.0, UpdatedAt: time.Now()},
		300: {Price: 2.0, UpdatedAt: time.Now()},
	})

	if e, _ := c.Get(200); e.Price != 42.0 {
		t.Errorf("in-memory price overwritten by disk load: %v, want 42.0", e.Price)
	}
	if e, ok := c.Get(300); !ok || e.Price != 2.0 {
		t.Errorf("disk-only entry not loaded: %v, %v", e, ok)
	}
}

func TestAllIncludesStaleEntries(t *testing.T) {
	c := newTestCache(nil)
	start := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	fixCacheClock(c, start)
	c.UpdateLocal(200, 5.0)
	fixCacheClock(c, start.Add(10*time.Hour))

	all := c.All()
	if all[200] != 5.0 {
		t.Errorf("All()[200] = %v, want 5.0 (stale entries still listed)", all[200])
	}
}

func TestEntryUnmarshalDefaultsCurrentLeague(t *testing.T) {
	var e Entry
	if err := json.Unmarshal([]byte(`{"price":2.5,"updated_at":"2026-08-23T12:00:00Z"}`), &e); err != nil {
		t.Fatal(err)
	}
	if !e.IsCurrentLeague {
		t.Error("IsCurrentLeague defaulted to false for a pre-league entry, want true")
	}

	var e2 Entry
	if err := json.Unmarshal([]byte(`{"price":2.5,"updated_at":"2026-08-23T12:00:00Z","is_current_league":false,"league_name":"SS10"}`), &e2); err != nil {
		t.Fatal(err)
	}
	if e2.IsCurrentLeague {
		t.Error("explicit is_current_league=false was overridden")
	}
	if e2.LeagueName != "SS10" {
		t.Errorf("LeagueName = %q, want SS10", e2.LeagueName)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	c := newTestCache(nil)
	c.UpdateLocal(200, 5.0)

	snap := c.Snapshot()
	snap[200] = Entry{Price: 99}

	if e, _ := c.Get(200); e.Price != 5.0 {
		t.Error("mutating a snapshot leaked into the cache")
	}
}
