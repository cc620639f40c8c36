// Package trips keeps an in-memory history of monitoring sessions and the
// alerts raised during them.
package trips

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oszuidwest/drowsiguard/internal/types"
)

// DefaultCapacity is the number of trips kept before the oldest is dropped.
const DefaultCapacity = 50

// ErrNotFound is returned when a trip ID is unknown.
var ErrNotFound = errors.New("trip not found")

// Trip is one monitoring session as seen by the driver.
type Trip struct {
	ID               string             `json:"id"`
	SessionID        string             `json:"session_id"`
	StartTime        time.Time          `json:"start_time"`
	EndTime          *time.Time         `json:"end_time,omitempty"`
	Alerts           []types.Alert      `json:"alerts"`
	AverageAlertness int                `json:"averageAlertness"`
	Stats            types.SessionStats `json:"stats"`

	alertnessSum   int64
	alertnessCount int64
}

// Duration returns the trip length, up to now while the trip is running.
func (t *Trip) Duration(now time.Time) time.Duration {
	if t.EndTime != nil {
		return t.EndTime.Sub(t.StartTime)
	}
	return now.Sub(t.StartTime)
}

// Summary is the list view of a trip.
type Summary struct {
	ID               string     `json:"id"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	AlertCount       int        `json:"alert_count"`
	AverageAlertness int        `json:"averageAlertness"`
}

// Store holds the most recent trips. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	trips    []*Trip // oldest first
	capacity int
}

// NewStore creates a store that keeps at most capacity trips.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity}
}

// Begin starts a new trip for a monitoring session and returns its ID.
func (s *Store) Begin(sessionID string, start time.Time) string {
	t := &Trip{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		StartTime: start,
		Alerts:    []types.Alert{},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.trips = append(s.trips, t)
	if len(s.trips) > s.capacity {
		s.trips = slices.Delete(s.trips, 0, len(s.trips)-s.capacity)
	}
	return t.ID
}

// find returns the trip with id. Caller must hold s.mu.
func (s *Store) find(id string) *Trip {
	for i := len(s.trips) - 1; i >= 0; i-- {
		if s.trips[i].ID == id {
			return s.trips[i]
		}
	}
	return nil
}

// AddAlert records an alert on a trip and returns it with its assigned ID.
func (s *Store) AddAlert(tripID string, at time.Time, severity types.AlertSeverity, alertType types.AlertType, confidence int) (types.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.find(tripID)
	if t == nil {
		return types.Alert{}, ErrNotFound
	}
	a := types.Alert{
		ID:         uuid.NewString(),
		Timestamp:  at,
		Severity:   severity,
		Confidence: confidence,
		Type:       alertType,
	}
	t.Alerts = append(t.Alerts, a)
	return a, nil
}

// RecordAlertness folds one successful tick's confidence into the trip average.
func (s *Store) RecordAlertness(tripID string, confidence int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.find(tripID)
	if t == nil {
		return
	}
	t.alertnessSum += int64(confidence)
	t.alertnessCount++
	t.AverageAlertness = int((t.alertnessSum + t.alertnessCount/2) / t.alertnessCount)
}

// End closes a trip and stores the final session stats.
func (s *Store) End(tripID string, end time.Time, stats types.SessionStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.find(tripID)
	if t == nil {
		return ErrNotFound
	}
	t.EndTime = &end
	t.Stats = stats
	return nil
}

// Get returns a copy of one trip.
func (s *Store) Get(id string) (Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t := s.find(id)
	if t == nil {
		return Trip{}, ErrNotFound
	}
	cp := *t
	cp.Alerts = slices.Clone(t.Alerts)
	return cp, nil
}

// List returns trip summaries, newest first.
func (s *Store) List() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.trips))
	for i := len(s.trips) - 1; i >= 0; i-- {
		t := s.trips[i]
		out = append(out, Summary{
			ID:               t.ID,
			StartTime:        t.StartTime,
			EndTime:          t.EndTime,
			AlertCount:       len(t.Alerts),
			AverageAlertness: t.AverageAlertness,
		})
	}
	return out
}
