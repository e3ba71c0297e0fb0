package session

import (
	"time"

	"github.com/kripika/tli-tracker/internal/gamelog"
)

// LedgerEntry is one hand-entered money line on the session: an expense
// (maps bought, crafting costs) or a manual drop (uniques and equipment
// the log parser cannot identify). UnitPrice is in base currency. ItemID
// links the entry to a catalog item when one applies; 0 means free-form.
type LedgerEntry struct {
	ID        string  `json:"id"`
	ItemID    int64   `json:"itemId,omitempty"`
	Name      string  `json:"name"`
	NameRU    string  `json:"nameRu,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// State is the live farm session aggregate. StartedAt doubles as the
// active flag: nil means no session, and every mutating operation except
// expense entry is a no-op in that state.
//
// The LastMap* fields are dedup bookkeeping for the map transition state
// machine, not user-visible data. TotalDurationSec accumulates completed
// map time only; SessionDurationSec is the wall clock, driven by the UI.
type State struct {
	StartedAt          *time.Time            `json:"startedAt,omitempty"`
	MapsCompleted      int                   `json:"mapsCompleted"`
	TotalDurationSec   int                   `json:"totalDurationSec"`
	IsOnMap            bool                  `json:"isOnMap"`
	CurrentMapStarted  *time.Time            `json:"currentMapStarted,omitempty"`
	LastMapEventType   *gamelog.MapEventType `json:"lastMapEventType,omitempty"`
	LastMapEventAt     *time.Time            `json:"lastMapEventAt,omitempty"`
	LastMapScene       string                `json:"lastMapScene,omitempty"`
	Drops              map[int64]int         `json:"drops"`
	PresetID           string                `json:"presetId,omitempty"`
	IsPaused           bool                  `json:"isPaused"`
	Expenses           []LedgerEntry         `json:"expenses"`
	ManualDrops        []LedgerEntry         `json:"manualDrops"`
	SessionDurationSec int                   `json:"sessionDurationSec"`
}

// Active reports whether a session is running.
func (s State) Active() bool { return s.StartedAt != nil }

// Clone returns a deep copy of the State, duplicating pointer, map and
// slice fields so the copy can be mutated independently of the original.
func (s State) Clone() State {
	c := s
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.CurrentMapStarted != nil {
		t := *s.CurrentMapStarted
		c.CurrentMapStarted = &t
	}
	if s.LastMapEventType != nil {
		et := *s.LastMapEventType
		c.LastMapEventType = &et
	}
	if s.LastMapEventAt != nil {
		t := *s.LastMapEventAt
		c.LastMapEventAt = &t
	}
	if s.Drops != nil {
		c.Drops = make(map[int64]int, len(s.Drops))
		for id, n := range s.Drops {
			c.Drops[id] = n
		}
	}
	if s.Expenses != nil {
		c.Expenses = append([]LedgerEntry(nil), s.Expenses...)
	}
	if s.ManualDrops != nil {
		c.ManualDrops = append([]LedgerEntry(nil), s.ManualDrops...)
	}
	return c
}

// normalize fills nil collections so restored or legacy snapshots behave
// like freshly started sessions.
func (s *State) normalize() {
	if s.Drops == nil {
		s.Drops = make(map[int64]int)
	}
	if s.Expenses == nil {
		s.Expenses = []LedgerEntry{}
	}
	if s.ManualDrops == nil {
		s.ManualDrops = []LedgerEntry{}
	}
}
