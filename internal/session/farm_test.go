package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kripika/tli-tracker/internal/gamelog"
)

func TestStateJSONRoundTrip(t *testing.T) {
	started := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	mapStart := started.Add(10 * time.Second)
	lastAt := started.Add(20 * time.Second)
	typ := gamelog.ExitToHideout

	orig := State{
		StartedAt:          &started,
		MapsCompleted:      4,
		TotalDurationSec:   360,
		IsOnMap:            true,
		CurrentMapStarted:  &mapStart,
		LastMapEventType:   &typ,
		LastMapEventAt:     &lastAt,
		LastMapScene:       "Hideout01",
		Drops:              map[int64]int{100: 3, 200: 7},
		PresetID:           "p1",
		IsPaused:           true,
		Expenses:           []LedgerEntry{{ID: "e1", ItemID: 100, Name: "maps", Quantity: 8, UnitPrice: 1.5}},
		ManualDrops:        []LedgerEntry{{ID: "m1", Name: "unique", NameRU: "уник", Quantity: 1, UnitPrice: 40}},
		SessionDurationSec: 400,
	}

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatal(err)
	}
	var back State
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}

	if !back.StartedAt.Equal(*orig.StartedAt) {
		t.Errorf("StartedAt = %v, want %v", back.StartedAt, orig.StartedAt)
	}
	if *back.LastMapEventType != gamelog.ExitToHideout {
		t.Errorf("LastMapEventType = %v, want ExitToHideout", *back.LastMapEventType)
	}
	if back.Drops[100] != 3 || back.Drops[200] != 7 {
		t.Errorf("Drops = %v, want map intact", back.Drops)
	}
	if back.Expenses[0] != orig.Expenses[0] {
		t.Errorf("Expenses[0] = %+v, want %+v", back.Expenses[0], orig.Expenses[0])
	}
	if back.ManualDrops[0] != orig.ManualDrops[0] {
		t.Errorf("ManualDrops[0] = %+v, want %+v", back.ManualDrops[0], orig.ManualDrops[0])
	}
	if back.SessionDurationSec != 400 || !back.IsPaused {
		t.Errorf("scalar fields lost: %+v", back)
	}
}

func TestInactiveStateMarshalsWithoutStartedAt(t *testing.T) {
	data, err := json.Marshal(State{})
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["startedAt"]; ok {
		t.Error("inactive state serialized a startedAt field; presence means active")
	}
}

func TestCloneOfZeroState(t *testing.T) {
	var s State
	c := s.Clone()
	if c.Active() {
		t.Error("clone of zero state is active")
	}
	if c.Drops != nil || c.Expenses != nil || c.ManualDrops != nil {
		t.Error("clone invented collections the original did not have")
	}
}
