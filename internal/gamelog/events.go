package gamelog

import (
	"encoding/json"
	"time"
)

// MapEventType classifies a scene transition as seen in the game log.
// Only the two transitions the session engine cares about are modeled;
// everything else (town, login screen, cutscenes) never produces an event.
type MapEventType int

const (
	EnterMap MapEventType = iota
	ExitToHideout
)

var mapEventNames = map[MapEventType]string{
	EnterMap:      "enter_map",
	ExitToHideout: "exit_to_hideout",
}

var mapEventFromName = map[string]MapEventType{
	"enter_map":       EnterMap,
	"exit_to_hideout": ExitToHideout,
}

func (t MapEventType) String() string {
	if s, ok := mapEventNames[t]; ok {
		return s
	}
	return "unknown"
}

func (t MapEventType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *MapEventType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := mapEventFromName[s]; ok {
		*t = v
	}
	return nil
}

// Event is a single gameplay occurrence parsed out of the game log.
// Concrete types are ItemDrop, PriceSearch and MapChange.
type Event interface {
	When() time.Time
}

// ItemDrop records items entering the player's bag: N units of one item
// landing in a specific bag page/slot.
type ItemDrop struct {
	GameID   int64
	Quantity int
	PageID   int
	SlotID   int
	Time     time.Time
}

func (e ItemDrop) When() time.Time { return e.Time }

// PriceSearch carries the listing prices returned by one auction-house
// search the player performed in-game. Prices are raw, in listing order,
// denominated in CurrencyID. SyncID groups result pages of one search.
type PriceSearch struct {
	GameID     int64
	Prices     []float64
	CurrencyID int64
	SyncID     int64
	Time       time.Time
}

func (e PriceSearch) When() time.Time { return e.Time }

// MapChange is a deduplication-relevant scene transition. Scene is the
// raw scene name from the log, kept for repeat detection and debugging.
type MapChange struct {
	Type  MapEventType
	Scene string
	Time  time.Time
}

func (e MapChange) When() time.Time { return e.Time }
