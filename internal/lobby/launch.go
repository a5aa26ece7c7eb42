package lobby

import (
	"encoding/json"
	"fmt"
	"time"
)

// LaunchRecord is a point-in-time copy of a session taken when it launched.
type LaunchRecord struct {
	SessionID   string
	LeaderName  string
	Single      bool
	PlayerCount int
	GroupCount  int
	State       []byte
	LaunchedAt  time.Time
}

// LaunchRecord captures the session for archiving.
//
// Precondition: caller holds the session lock and the session is launched.
// Postcondition: Returns a record whose State is the JSON session document.
func (s *Session) LaunchRecord(at time.Time) (LaunchRecord, error) {
	state, err := json.Marshal(s)
	if err != nil {
		return LaunchRecord{}, fmt.Errorf("snapshotting session %s: %w", s.ID, err)
	}
	rec := LaunchRecord{
		SessionID:   s.ID,
		Single:      s.Single,
		PlayerCount: len(s.PlayerNames()),
		GroupCount:  len(s.Groups),
		State:       state,
		LaunchedAt:  at,
	}
	if s.Leader != nil {
		rec.LeaderName = s.Leader.Name
	}
	return rec, nil
}
