package server

import (
	"github.com/kripika/tli-tracker/internal/session"
	"github.com/kripika/tli-tracker/internal/stats"
)

type MessageType string

const (
	MsgSnapshot     MessageType = "snapshot"
	MsgStats        MessageType = "stats"
	MsgSessionEnded MessageType = "session_ended"
)

type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}

// SnapshotPayload is the full overlay state, sent on connect and on the
// periodic resync tick.
type SnapshotPayload struct {
	Session session.State          `json:"session"`
	Stats   stats.Stats            `json:"stats"`
	Drops   []stats.AggregatedDrop `json:"drops"`
}

// StatsPayload is the throttled delta sent after mutations.
type StatsPayload struct {
	Stats stats.Stats            `json:"stats"`
	Drops []stats.AggregatedDrop `json:"drops"`
}

// SessionEndedPayload carries the final numbers of a session that just
// closed, so overlays can show a summary without re-querying.
type SessionEndedPayload struct {
	Stats stats.Stats `json:"stats"`
}
