package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	historyVersion = 1

	// historyLimit caps how many finished sessions are kept per user.
	historyLimit = 100
)

// SessionRecord is one finished session in the local history.
type SessionRecord struct {
	ID               string    `json:"id"`
	StartedAt        time.Time `json:"startedAt"`
	EndedAt          time.Time `json:"endedAt"`
	MapsCompleted    int       `json:"mapsCompleted"`
	TotalDurationSec int       `json:"totalDurationSec"`
	TotalProfit      float64   `json:"totalProfit"`
	TotalExpenses    float64   `json:"totalExpenses"`
	TotalIncome      float64   `json:"totalIncome"`
	// RemoteID is the backend's row ID once the record has been synced.
	RemoteID string `json:"remoteId,omitempty"`
}

type historyFile struct {
	Version  int             `json:"version"`
	Sessions []SessionRecord `json:"sessions"`
}

// historyPath returns the per-user history file. The user ID is
// reduced to filename-safe characters before it goes into the name.
func (s *Store) historyPath(userID string) string {
	var safe strings.Builder
	for _, r := range userID {
		if r == '-' || r == '_' ||
			(r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			safe.WriteRune(r)
		}
	}
	return filepath.Join(s.dir, fmt.Sprintf("sessions_%s.json", safe.String()))
}

// LoadHistory reads a user's session history, newest first. A missing
// file yields an empty history.
func (s *Store) LoadHistory(userID string) ([]SessionRecord, error) {
	data, err := os.ReadFile(s.historyPath(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return []SessionRecord{}, nil
		}
		return nil, fmt.Errorf("reading history: %w", err)
	}

	var f historyFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing history: %w", err)
	}
	if f.Sessions == nil {
		f.Sessions = []SessionRecord{}
	}
	return f.Sessions, nil
}

func (s *Store) saveHistory(userID string, records []SessionRecord) error {
	return s.atomicWrite(s.historyPath(userID), historyFile{Version: historyVersion, Sessions: records})
}

// AppendHistory prepends a finished session to the user's history and
// trims it to the newest historyLimit records.
func (s *Store) AppendHistory(userID string, rec SessionRecord) error {
	records, err := s.LoadHistory(userID)
	if err != nil {
		return err
	}
	records = append([]SessionRecord{rec}, records...)
	if len(records) > historyLimit {
		records = records[:historyLimit]
	}
	return s.saveHistory(userID, records)
}

// DeleteHistoryRecord removes the record with the given ID from the
// user's history. It reports whether a record was removed; deleting an
// unknown ID is not an error.
func (s *Store) DeleteHistoryRecord(userID, recordID string) (bool, error) {
	records, err := s.LoadHistory(userID)
	if err != nil {
		return false, err
	}
	for i, rec := range records {
		if rec.ID == recordID {
			records = append(records[:i], records[i+1:]...)
			if err := s.saveHistory(userID, records); err != nil {
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}
