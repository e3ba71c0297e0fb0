package session

import (
	"log"
	"sync"
	"time"

	"github.com/kripika/tli-tracker/internal/gamelog"
)

// dedupWindow is how close together two identical map transitions must be
// to count as the same log line seen twice.
const dedupWindow = 2 * time.Second

// Tracker owns the live session state behind one lock. The catalog
// membership check and the autosave hook are injected so the tracker
// carries no catalog or disk dependency. The hook receives a snapshot
// after every mutation; a failed write is the hook's problem, the
// in-memory mutation always stands.
type Tracker struct {
	mu      sync.RWMutex
	state   State
	hasItem func(int64) bool
	save    func(State)
	now     func() time.Time
}

func NewTracker(hasItem func(int64) bool, save func(State)) *Tracker {
	if hasItem == nil {
		hasItem = func(int64) bool { return true }
	}
	return &Tracker{hasItem: hasItem, save: save, now: time.Now}
}

func (t *Tracker) autosave(snap State) {
	if t.save != nil {
		t.save(snap)
	}
}

// Start begins a fresh session, wiping whatever came before.
func (t *Tracker) Start(presetID string) {
	now := t.now()
	t.mu.Lock()
	t.state = State{StartedAt: &now, PresetID: presetID}
	t.state.normalize()
	snap := t.state.Clone()
	t.mu.Unlock()

	log.Printf("[session] farm session started")
	t.autosave(snap)
}

// End resets to the inactive state and returns the final session for
// stats and history. The active-session snapshot on disk is the caller's
// to delete; the tracker only owns memory.
func (t *Tracker) End() State {
	t.mu.Lock()
	final := t.state.Clone()
	t.state = State{}
	t.mu.Unlock()

	log.Printf("[session] farm session ended")
	return final
}

// Restore installs a session recovered from disk.
func (t *Tracker) Restore(s State) {
	t.mu.Lock()
	t.state = s.Clone()
	t.state.normalize()
	t.mu.Unlock()

	log.Printf("[session] restored session, duration %d sec, paused %v",
		s.SessionDurationSec, s.IsPaused)
}

// Snapshot returns a deep copy of the current state.
func (t *Tracker) Snapshot() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Clone()
}

// Active reports whether a session is running.
func (t *Tracker) Active() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Active()
}

// SetPaused flips the pause flag. Pausing only means anything while a
// session is active; drops are ignored while paused.
func (t *Tracker) SetPaused(paused bool) {
	t.mu.Lock()
	if !t.state.Active() {
		t.mu.Unlock()
		return
	}
	t.state.IsPaused = paused
	snap := t.state.Clone()
	t.mu.Unlock()

	log.Printf("[session] paused: %v", paused)
	t.autosave(snap)
}

// SetDuration records the wall-clock session duration. The UI owns the
// session clock (it keeps ticking across tracker restarts and knows about
// pauses); the tracker never computes this itself.
func (t *Tracker) SetDuration(sec int) {
	t.mu.Lock()
	if !t.state.Active() {
		t.mu.Unlock()
		return
	}
	t.state.SessionDurationSec = sec
	snap := t.state.Clone()
	t.mu.Unlock()

	t.autosave(snap)
}

// HandleMapChange feeds one map transition through the dedup rules and,
// if it survives, through map accounting.
//
// The log is noisy: the same transition line can appear twice within a
// couple of seconds, and an exit can repeat without an intervening enter
// (loading-screen quirks). The rules, in order:
//
//  1. Same type and scene as the last recorded event within the dedup
//     window: discard outright, without touching the bookkeeping.
//  2. Exit while already exited: refresh the bookkeeping so the repeat
//     window tracks the newest sighting, but account nothing.
//  3. Otherwise process normally. An enter only arms the map timer when
//     not already on a map. An exit always counts a completed map; its
//     duration falls back to the session start when the enter was never
//     seen (session started mid-map), and is dropped when not positive
//     (clock skew).
func (t *Tracker) HandleMapChange(ev gamelog.MapChange) {
	t.mu.Lock()
	if !t.state.Active() {
		t.mu.Unlock()
		return
	}

	if t.state.LastMapEventType != nil && t.state.LastMapEventAt != nil &&
		*t.state.LastMapEventType == ev.Type && t.state.LastMapScene == ev.Scene {
		dt := ev.Time.Sub(*t.state.LastMapEventAt)
		if dt < 0 {
			dt = -dt
		}
		if dt <= dedupWindow {
			t.mu.Unlock()
			return
		}
	}

	if ev.Type == gamelog.ExitToHideout && t.state.LastMapEventType != nil &&
		*t.state.LastMapEventType == gamelog.ExitToHideout {
		t.recordMapEvent(ev)
		snap := t.state.Clone()
		t.mu.Unlock()
		t.autosave(snap)
		return
	}

	switch ev.Type {
	case gamelog.EnterMap:
		if !t.state.IsOnMap {
			t.state.IsOnMap = true
			started := ev.Time
			t.state.CurrentMapStarted = &started
		}
	case gamelog.ExitToHideout:
		mapStarted := t.state.CurrentMapStarted
		if mapStarted == nil {
			mapStarted = t.state.StartedAt
		}
		t.state.MapsCompleted++
		if mapStarted != nil {
			if d := int(ev.Time.Sub(*mapStarted).Seconds()); d > 0 {
				t.state.TotalDurationSec += d
			}
		}
		t.state.IsOnMap = false
		t.state.CurrentMapStarted = nil
	}

	t.recordMapEvent(ev)
	snap := t.state.Clone()
	t.mu.Unlock()
	t.autosave(snap)
}

func (t *Tracker) recordMapEvent(ev gamelog.MapChange) {
	typ := ev.Type
	at := ev.Time
	t.state.LastMapEventType = &typ
	t.state.LastMapEventAt = &at
	t.state.LastMapScene = ev.Scene
}

// AddDrop counts items picked up on the current map. Unknown items are
// ignored: the log and the catalog can disagree after a game patch, and a
// wrong count is worse than a missing one.
func (t *Tracker) AddDrop(gameID int64, quantity int) {
	if !t.hasItem(gameID) {
		return
	}

	t.mu.Lock()
	if !t.state.Active() || t.state.IsPaused {
		t.mu.Unlock()
		return
	}
	t.state.Drops[gameID] += quantity
	snap := t.state.Clone()
	t.mu.Unlock()

	t.autosave(snap)
}

// AddExpense appends an expense line. Expenses are allowed without an
// active session so the player can set up cost presets beforehand; the
// snapshot is only written when a session exists to save into.
func (t *Tracker) AddExpense(e LedgerEntry) {
	t.mu.Lock()
	t.state.normalize()
	t.state.Expenses = append(t.state.Expenses, e)
	active := t.state.Active()
	snap := t.state.Clone()
	t.mu.Unlock()

	log.Printf("[session] added expense %q x%d @ %v", e.Name, e.Quantity, e.UnitPrice)
	if active {
		t.autosave(snap)
	}
}

func (t *Tracker) RemoveExpense(id string) {
	t.mu.Lock()
	t.state.Expenses = removeEntry(t.state.Expenses, id)
	active := t.state.Active()
	snap := t.state.Clone()
	t.mu.Unlock()

	if active {
		t.autosave(snap)
	}
}

func (t *Tracker) Expenses() []LedgerEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]LedgerEntry(nil), t.state.Expenses...)
}

// AddManualDrop appends a hand-entered drop. Unlike expenses these only
// make sense inside a session.
func (t *Tracker) AddManualDrop(e LedgerEntry) {
	t.mu.Lock()
	if !t.state.Active() {
		t.mu.Unlock()
		return
	}
	t.state.ManualDrops = append(t.state.ManualDrops, e)
	snap := t.state.Clone()
	t.mu.Unlock()

	log.Printf("[session] added manual drop %q x%d @ %v", e.Name, e.Quantity, e.UnitPrice)
	t.autosave(snap)
}

func (t *Tracker) RemoveManualDrop(id string) {
	t.mu.Lock()
	if !t.state.Active() {
		t.mu.Unlock()
		return
	}
	t.state.ManualDrops = removeEntry(t.state.ManualDrops, id)
	snap := t.state.Clone()
	t.mu.Unlock()

	t.autosave(snap)
}

func (t *Tracker) ManualDrops() []LedgerEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]LedgerEntry(nil), t.state.ManualDrops...)
}

func removeEntry(entries []LedgerEntry, id string) []LedgerEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}
