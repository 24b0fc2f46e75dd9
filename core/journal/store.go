// Package journal persists the charging events published on the bus so that
// sessions can be reviewed and charted afterwards.
package journal

import (
	"context"
	"encoding/json"
	"time"
)

// Record kinds.
const (
	KindStatus  = "status"
	KindCommand = "command"
	KindSafety  = "safety"
	KindSession = "session"
	KindTrip    = "trip"
	KindStats   = "stats"
)

// Record is one journal entry. Payload holds the kind specific JSON document.
type Record struct {
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into out.
func (r Record) Decode(out any) error {
	return json.Unmarshal(r.Payload, out)
}

// Query defines filters for retrieving records. Zero fields match everything.
type Query struct {
	Start     time.Time
	End       time.Time
	SessionID string
	Kind      string
}

func (q Query) matches(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.SessionID != "" && r.SessionID != q.SessionID {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	return true
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards records.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error         { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                  { return nil }
