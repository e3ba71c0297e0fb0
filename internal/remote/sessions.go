package remote

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"
)

// SessionUpload is a finished session prepared for the backend.
type SessionUpload struct {
	UserID           string
	StartedAt        time.Time
	EndedAt          time.Time
	MapsCompleted    int
	TotalDurationSec int
	TotalProfit      float64
	TotalExpenses    float64
	ClientVersion    string
	PresetID         string
	Drops            map[int64]int
}

type sessionUploadBody struct {
	UserID           string    `json:"user_id"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	MapsCompleted    int       `json:"maps_completed"`
	TotalDurationSec int       `json:"total_duration_sec"`
	TotalProfit      float64   `json:"total_profit_calculated"`
	TotalExpenses    float64   `json:"expenses_calculated"`
	ClientVersion    string    `json:"client_version"`
	PresetID         *string   `json:"preset_id"`
	SyncStatus       string    `json:"sync_status"`
}

// RemoteSession is a session row from the backend's history.
type RemoteSession struct {
	ID               string     `json:"id"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at"`
	MapsCompleted    int        `json:"maps_completed"`
	TotalDurationSec int        `json:"total_duration_sec"`
	TotalProfit      *float64   `json:"total_profit_calculated"`
	TotalExpenses    *float64   `json:"expenses_calculated"`
}

// SyncSession uploads a finished session and returns the backend's row
// ID. Per-item drops are uploaded afterwards on a best-effort basis: a
// drop failure is logged, not returned, since the session row already
// exists.
func (c *Client) SyncSession(ctx context.Context, userJWT string, up SessionUpload) (string, error) {
	body := sessionUploadBody{
		UserID:           up.UserID,
		StartedAt:        up.StartedAt,
		EndedAt:          up.EndedAt,
		MapsCompleted:    up.MapsCompleted,
		TotalDurationSec: up.TotalDurationSec,
		TotalProfit:      up.TotalProfit,
		TotalExpenses:    up.TotalExpenses,
		ClientVersion:    up.ClientVersion,
		SyncStatus:       "synced",
	}
	if up.PresetID != "" {
		body.PresetID = &up.PresetID
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/rest/v1/tli_farm_sessions", userJWT, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Prefer", "return=representation")

	var rows []struct {
		ID string `json:"id"`
	}
	if err := c.do(req, &rows); err != nil {
		return "", err
	}
	if len(rows) == 0 || rows[0].ID == "" {
		return "", fmt.Errorf("session sync: response carried no row id")
	}
	remoteID := rows[0].ID

	if len(up.Drops) > 0 {
		if err := c.syncSessionDrops(ctx, userJWT, remoteID, up.Drops); err != nil {
			log.Printf("[remote] drop sync for session %s failed: %v", remoteID, err)
		}
	}
	return remoteID, nil
}

func (c *Client) syncSessionDrops(ctx context.Context, userJWT, sessionID string, drops map[int64]int) error {
	type dropRow struct {
		SessionID string `json:"session_id"`
		GameID    int64  `json:"game_id"`
		Quantity  int    `json:"quantity"`
	}
	rows := make([]dropRow, 0, len(drops))
	for gameID, qty := range drops {
		rows = append(rows, dropRow{SessionID: sessionID, GameID: gameID, Quantity: qty})
	}
	return c.postJSON(ctx, "/rest/v1/tli_session_drops", userJWT, rows, nil)
}

// FetchSessionHistory reads the caller's synced sessions, newest
// first.
func (c *Client) FetchSessionHistory(ctx context.Context, userJWT string, limit int) ([]RemoteSession, error) {
	path := fmt.Sprintf(
		"/rest/v1/tli_farm_sessions?select=id,started_at,ended_at,maps_completed,total_duration_sec,total_profit_calculated,expenses_calculated&order=started_at.desc&limit=%d",
		limit,
	)
	var rows []RemoteSession
	if err := c.getJSON(ctx, path, userJWT, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
