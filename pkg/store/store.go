// Package store defines the document-store boundary of the pipeline and its
// MongoDB implementation. The producer and scheduler only see the Store
// interface; tests substitute fakes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jihwankim/telesim/pkg/event"
)

// ErrDuplicate reports a unique-constraint violation on repair insert.
// It is an expected outcome, not a failure: the (runId, incidentId) index is
// the at-most-once fence for repairs.
var ErrDuplicate = errors.New("duplicate repair record")

// RunDescriptor is the one-per-run record persisted at start and closed at
// stop.
type RunDescriptor struct {
	RunID       string     `bson:"runId" json:"runId"`
	StartedAt   time.Time  `bson:"startedAt" json:"startedAt"`
	EndedAt     *time.Time `bson:"endedAt,omitempty" json:"endedAt,omitempty"`
	Rate        int        `bson:"rate" json:"rate"`
	Batch       int        `bson:"batch" json:"batch"`
	Shards      int        `bson:"shards" json:"shards"`
	Spread      float64    `bson:"spread" json:"spread"`
	Seed        int64      `bson:"seed" json:"seed"`
	CatalogSize int        `bson:"catalogSize" json:"catalogSize"`
	Note        string     `bson:"note,omitempty" json:"note,omitempty"`
}

// IncidentRef is the projection of an incident the repair scheduler samples:
// identifier, timestamp and the issue payload, nothing else.
type IncidentRef struct {
	ID        string      `bson:"_id" json:"id"`
	Timestamp time.Time   `bson:"timestamp" json:"timestamp"`
	Issue     event.Issue `bson:"issue" json:"issue"`
}

// RepairEvent is one persisted repair record.
type RepairEvent struct {
	Kind          string    `bson:"kind" json:"kind"`
	Timestamp     time.Time `bson:"timestamp" json:"timestamp"`
	DecidedAt     time.Time `bson:"decidedAt" json:"decidedAt"`
	RunID         string    `bson:"runId" json:"runId"`
	IncidentID    string    `bson:"incidentId" json:"incidentId"`
	Category      string    `bson:"category" json:"category"`
	Policy        string    `bson:"policy" json:"policy"`
	PolicyVersion string    `bson:"policyVersion" json:"policyVersion"`
	Reason        string    `bson:"reason" json:"reason"`
	Key           string    `bson:"key" json:"key"`
}

// Store is the persistence boundary used by the run controller, the producer
// pool and the repair scheduler.
type Store interface {
	// EnsureIndexes creates the collection indexes, including the unique
	// (runId, incidentId) index on repairs.
	EnsureIndexes(ctx context.Context) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// OpenRun persists a fresh run descriptor.
	OpenRun(ctx context.Context, run RunDescriptor) error

	// CloseRun stamps endedAt on the run descriptor.
	CloseRun(ctx context.Context, runID string, endedAt time.Time) error

	// InsertIncidents bulk-inserts one batch of incident events.
	InsertIncidents(ctx context.Context, events []event.IncidentEvent) error

	// RecentIncidents returns up to limit incidents of the run with
	// timestamp >= since, newest first, projected to IncidentRef.
	RecentIncidents(ctx context.Context, runID string, since time.Time, limit int64) ([]IncidentRef, error)

	// InsertRepair persists one repair record, returning ErrDuplicate when
	// the (runId, incidentId) unique index rejects it.
	InsertRepair(ctx context.Context, repair RepairEvent) error

	// CountRepairs counts repair records for the run.
	CountRepairs(ctx context.Context, runID string) (int64, error)

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}
