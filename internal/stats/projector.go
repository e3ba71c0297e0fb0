// Package stats derives the UI-facing numbers from the raw session state,
// the price cache and the item catalog. Everything here is a pure
// projection: nothing is mutated, and the same inputs give the same
// outputs (modulo the clock used for staleness and the running map).
package stats

import (
	"math"
	"sort"
	"time"

	"github.com/kripika/tli-tracker/internal/catalog"
	"github.com/kripika/tli-tracker/internal/pricing"
	"github.com/kripika/tli-tracker/internal/session"
)

// Stats is the headline block the overlay shows.
type Stats struct {
	TotalItems        int     `json:"totalItems"`
	UniqueItems       int     `json:"uniqueItems"`
	TotalValue        float64 `json:"totalValue"`
	MapsCompleted     int     `json:"mapsCompleted"`
	DurationSec       int     `json:"durationSec"`
	AvgMapDurationSec int     `json:"avgMapDurationSec"`
	StalePriceLines   int     `json:"stalePriceLines"`
	HourlyProfit      float64 `json:"hourlyProfit"`
	IsPaused          bool    `json:"isPaused"`
}

// AggregatedDrop is one row of the drop table: a distinct item with its
// accumulated quantity and valuation.
type AggregatedDrop struct {
	GameID           int64         `json:"gameId"`
	Item             *catalog.Item `json:"item,omitempty"`
	Quantity         int           `json:"quantity"`
	TotalValue       float64       `json:"totalValue"`
	UnitPrice        float64       `json:"unitPrice"`
	PriceUpdatedAt   *time.Time    `json:"priceUpdatedAt,omitempty"`
	PriceIsStale     bool          `json:"priceIsStale"`
	IsPreviousSeason bool          `json:"isPreviousSeason"`
	LeagueName       string        `json:"leagueName,omitempty"`
}

type Projector struct {
	sessions *session.Tracker
	prices   *pricing.Cache
	items    *catalog.Catalog
	now      func() time.Time
}

func NewProjector(tr *session.Tracker, prices *pricing.Cache, items *catalog.Catalog) *Projector {
	return &Projector{sessions: tr, prices: prices, items: items, now: time.Now}
}

// Stats projects the live session.
func (p *Projector) Stats() Stats {
	return p.StatsFor(p.sessions.Snapshot())
}

// StatsFor projects an arbitrary state snapshot. Used for the live
// session and for the final numbers of a session that just ended.
//
// Value accounting: base currency is worth exactly 1.0 and never goes
// stale. Other items count at their cached price EVEN WHEN STALE; the
// stale lines are tallied instead so the UI can nudge the player to
// refresh their price checks. Items with no cached price contribute
// nothing.
func (p *Projector) StatsFor(s session.State) Stats {
	st := Stats{
		UniqueItems:   len(s.Drops),
		MapsCompleted: s.MapsCompleted,
		DurationSec:   s.SessionDurationSec,
		IsPaused:      s.IsPaused,
	}

	for gameID, qty := range s.Drops {
		st.TotalItems += qty
		if p.items.IsBaseCurrency(gameID) {
			st.TotalValue += float64(qty)
			continue
		}
		entry, ok := p.prices.Get(gameID)
		if !ok {
			continue
		}
		st.TotalValue += entry.Price * float64(qty)
		if p.prices.Stale(entry) {
			st.StalePriceLines++
		}
	}

	// Average map time comes from completed maps. Before the first map
	// finishes, the running map's elapsed time stands in so the number
	// is not stuck at zero for the whole first run.
	switch {
	case s.MapsCompleted > 0:
		st.AvgMapDurationSec = int(math.Round(float64(s.TotalDurationSec) / float64(s.MapsCompleted)))
	case s.IsOnMap && s.CurrentMapStarted != nil:
		if elapsed := int(p.now().Sub(*s.CurrentMapStarted).Seconds()); elapsed > 0 {
			st.AvgMapDurationSec = elapsed
		}
	}

	if st.DurationSec > 0 {
		st.HourlyProfit = st.TotalValue / float64(st.DurationSec) * 3600.0
	}
	return st
}

// Drops projects the live session's drop table.
func (p *Projector) Drops() []AggregatedDrop {
	return p.DropsFor(p.sessions.Snapshot())
}

// DropsFor builds one row per distinct dropped item, valued like StatsFor
// and sorted by total value, highest first. Row order is stable across
// calls so the table does not jitter between polls.
func (p *Projector) DropsFor(s session.State) []AggregatedDrop {
	ids := make([]int64, 0, len(s.Drops))
	for gameID := range s.Drops {
		ids = append(ids, gameID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows := make([]AggregatedDrop, 0, len(ids))
	for _, gameID := range ids {
		row := AggregatedDrop{GameID: gameID, Quantity: s.Drops[gameID]}
		if item, ok := p.items.Get(gameID); ok {
			it := item
			row.Item = &it
		}

		if p.items.IsBaseCurrency(gameID) {
			row.UnitPrice = 1.0
			now := p.now()
			row.PriceUpdatedAt = &now
		} else if entry, ok := p.prices.Get(gameID); ok {
			row.UnitPrice = entry.Price
			at := entry.UpdatedAt
			row.PriceUpdatedAt = &at
			row.PriceIsStale = p.prices.Stale(entry)
			row.IsPreviousSeason = !entry.IsCurrentLeague
			row.LeagueName = entry.LeagueName
		}
		row.TotalValue = row.UnitPrice * float64(row.Quantity)
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TotalValue > rows[j].TotalValue })
	return rows
}
