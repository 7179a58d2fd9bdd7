// Package storetest provides an in-memory Store for tests, including the
// unique (runId, incidentId) constraint on repairs.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jihwankim/telesim/pkg/event"
	"github.com/jihwankim/telesim/pkg/store"
)

// Store is an in-memory store.Store. Error fields, when set, are returned
// by the corresponding operation so tests can exercise failure paths.
type Store struct {
	mu         sync.Mutex
	incidents  []stored
	repairs    []store.RepairEvent
	runs       map[string]store.RunDescriptor
	repairKeys map[string]bool
	nextID     int

	InsertIncidentsErr error
	RecentErr          error
	InsertRepairErr    error
	OpenRunErr         error
	CloseRunErr        error
}

type stored struct {
	id string
	ev event.IncidentEvent
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		runs:       make(map[string]store.RunDescriptor),
		repairKeys: make(map[string]bool),
	}
}

func (s *Store) EnsureIndexes(context.Context) error { return nil }
func (s *Store) Ping(context.Context) error          { return nil }
func (s *Store) Close(context.Context) error         { return nil }

func (s *Store) OpenRun(_ context.Context, run store.RunDescriptor) error {
	if s.OpenRunErr != nil {
		return s.OpenRunErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.RunID] = run
	return nil
}

func (s *Store) CloseRun(_ context.Context, runID string, endedAt time.Time) error {
	if s.CloseRunErr != nil {
		return s.CloseRunErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("run %s not found", runID)
	}
	run.EndedAt = &endedAt
	s.runs[runID] = run
	return nil
}

func (s *Store) InsertIncidents(_ context.Context, events []event.IncidentEvent) error {
	if s.InsertIncidentsErr != nil {
		return s.InsertIncidentsErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		s.nextID++
		s.incidents = append(s.incidents, stored{id: fmt.Sprintf("inc-%06d", s.nextID), ev: ev})
	}
	return nil
}

func (s *Store) RecentIncidents(_ context.Context, runID string, since time.Time, limit int64) ([]store.IncidentRef, error) {
	if s.RecentErr != nil {
		return nil, s.RecentErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var refs []store.IncidentRef
	for _, in := range s.incidents {
		if in.ev.RunID != runID || in.ev.Timestamp.Before(since) {
			continue
		}
		refs = append(refs, store.IncidentRef{
			ID:        in.id,
			Timestamp: in.ev.Timestamp,
			Issue:     in.ev.Issue,
		})
	}
	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].Timestamp.After(refs[j].Timestamp)
	})
	if int64(len(refs)) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func (s *Store) InsertRepair(_ context.Context, repair store.RepairEvent) error {
	if s.InsertRepairErr != nil {
		return s.InsertRepairErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := repair.RunID + "|" + repair.IncidentID
	if s.repairKeys[key] {
		return store.ErrDuplicate
	}
	s.repairKeys[key] = true
	s.repairs = append(s.repairs, repair)
	return nil
}

func (s *Store) CountRepairs(_ context.Context, runID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, r := range s.repairs {
		if r.RunID == runID {
			n++
		}
	}
	return n, nil
}

// Incidents returns a copy of the stored incident events.
func (s *Store) Incidents() []event.IncidentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.IncidentEvent, len(s.incidents))
	for i, in := range s.incidents {
		out[i] = in.ev
	}
	return out
}

// IncidentCount returns the number of stored incidents.
func (s *Store) IncidentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.incidents)
}

// Repairs returns a copy of the stored repair records.
func (s *Store) Repairs() []store.RepairEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.RepairEvent, len(s.repairs))
	copy(out, s.repairs)
	return out
}

// Run returns the stored descriptor for runID.
func (s *Store) Run(runID string) (store.RunDescriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	return run, ok
}

// SeedIncident inserts one incident with an explicit id, bypassing the
// producer path.
func (s *Store) SeedIncident(id, runID string, ts time.Time, issue event.Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents = append(s.incidents, stored{id: id, ev: event.IncidentEvent{
		Kind:      "incident",
		Timestamp: ts,
		Issue:     issue,
		RunID:     runID,
	}})
}
