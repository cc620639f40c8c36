package trips

import (
	"errors"
	"testing"
	"time"

	"github.com/oszuidwest/drowsiguard/internal/types"
)

var t0 = time.Date(2026, 5, 4, 7, 0, 0, 0, time.UTC)

func TestStore_TripLifecycle(t *testing.T) {
	s := NewStore(0)
	id := s.Begin("session-1", t0)

	if _, err := s.AddAlert(id, t0.Add(time.Minute), types.SeverityCritical, types.AlertDrowsiness, 30); err != nil {
		t.Fatalf("AddAlert() error = %v", err)
	}
	for _, c := range []int{94, 75, 60} {
		s.RecordAlertness(id, c)
	}
	stats := types.SessionStats{Ticks: 3, Escalations: 1}
	if err := s.End(id, t0.Add(10*time.Minute), stats); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	trip, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(trip.Alerts) != 1 || trip.Alerts[0].Severity != types.SeverityCritical || trip.Alerts[0].ID == "" {
		t.Errorf("Alerts = %+v", trip.Alerts)
	}
	if trip.AverageAlertness != 76 {
		t.Errorf("AverageAlertness = %d, want 76", trip.AverageAlertness)
	}
	if trip.EndTime == nil || trip.Duration(time.Time{}) != 10*time.Minute {
		t.Errorf("Duration = %v, want 10m", trip.Duration(time.Time{}))
	}
	if trip.Stats != stats {
		t.Errorf("Stats = %+v, want %+v", trip.Stats, stats)
	}
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := NewStore(0)
	id := s.Begin("session-1", t0)
	if _, err := s.AddAlert(id, t0, types.SeverityLow, types.AlertYawn, 75); err != nil {
		t.Fatal(err)
	}

	trip, _ := s.Get(id)
	trip.Alerts[0].Severity = types.SeverityCritical

	again, _ := s.Get(id)
	if again.Alerts[0].Severity != types.SeverityLow {
		t.Error("mutating a returned trip changed the store")
	}
}

func TestStore_CapacityDropsOldest(t *testing.T) {
	s := NewStore(3)
	var ids []string
	for i := range 5 {
		ids = append(ids, s.Begin("s", t0.Add(time.Duration(i)*time.Hour)))
	}

	list := s.List()
	if len(list) != 3 {
		t.Fatalf("List() len = %d, want 3", len(list))
	}
	if list[0].ID != ids[4] || list[2].ID != ids[2] {
		t.Errorf("List() not newest first: %v", list)
	}
	if _, err := s.Get(ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(dropped) error = %v, want ErrNotFound", err)
	}
}

func TestStore_UnknownTrip(t *testing.T) {
	s := NewStore(0)
	if _, err := s.AddAlert("nope", t0, types.SeverityLow, types.AlertYawn, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("AddAlert() error = %v", err)
	}
	if err := s.End("nope", t0, types.SessionStats{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("End() error = %v", err)
	}
	s.RecordAlertness("nope", 50) // no panic
}
