package eventlog

import (
	"testing"
	"time"
)

func TestLogger_ReadLastNewestFirstWithPaging(t *testing.T) {
	l := NewLogger(10)
	base := time.Date(2026, time.March, 14, 8, 0, 0, 0, time.UTC)
	for i := range 5 {
		l.Log(&Event{Timestamp: base.Add(time.Duration(i) * time.Second), Type: SessionStarted, Message: string(rune('a' + i))})
	}

	page, more := l.ReadLast(2, 0, FilterAll)
	if len(page) != 2 || page[0].Message != "e" || page[1].Message != "d" || !more {
		t.Fatalf("first page = %+v more=%v", page, more)
	}
	page, more = l.ReadLast(2, 4, FilterAll)
	if len(page) != 1 || page[0].Message != "a" || more {
		t.Fatalf("last page = %+v more=%v", page, more)
	}
	page, more = l.ReadLast(5, 0, FilterAll)
	if len(page) != 5 || more {
		t.Errorf("exact page: len=%d more=%v", len(page), more)
	}
}

func TestLogger_RingOverwritesOldest(t *testing.T) {
	l := NewLogger(3)
	for i := range 5 {
		l.Log(&Event{Type: Escalated, Message: string(rune('a' + i))})
	}
	page, _ := l.ReadLast(10, 0, FilterAll)
	if len(page) != 3 {
		t.Fatalf("len = %d, want 3", len(page))
	}
	if page[0].Message != "e" || page[2].Message != "c" {
		t.Errorf("page = %+v", page)
	}
}

func TestLogger_ReadLastFilter(t *testing.T) {
	l := NewLogger(0)
	l.LogSession(SessionStarted, "s1", "t1", "", "", 0)
	l.LogAlert(AlarmStarted, "s1", &AlertDetails{Cause: "head_nod"})
	l.LogInference(InferenceFailing, "s1", 3, "timeout")
	l.LogAlert(Escalated, "s1", &AlertDetails{Cause: "head_nod"})
	l.LogClip(ClipSaved, &ClipDetails{ClipID: "c1", Frames: 10})

	tests := []struct {
		filter TypeFilter
		want   int
	}{
		{FilterAll, 5},
		{FilterSession, 1},
		{FilterAlert, 2},
		{FilterInference, 1},
		{FilterCamera, 0},
		{FilterClip, 1},
	}
	for _, tt := range tests {
		page, _ := l.ReadLast(MaxReadLimit, 0, tt.filter)
		if len(page) != tt.want {
			t.Errorf("filter %q: len = %d, want %d", tt.filter, len(page), tt.want)
		}
	}

	if ValidFilter("bogus") {
		t.Error("unknown filter must be invalid")
	}
}

func TestLogger_ReadLastLimits(t *testing.T) {
	l := NewLogger(MaxReadLimit + 100)
	for range MaxReadLimit + 50 {
		l.Log(&Event{Type: WarningPlayed})
	}
	page, more := l.ReadLast(MaxReadLimit+50, 0, FilterAll)
	if len(page) != MaxReadLimit || !more {
		t.Errorf("len = %d more=%v, want capped at %d", len(page), more, MaxReadLimit)
	}
	if page, _ := l.ReadLast(0, 0, FilterAll); len(page) != 0 {
		t.Error("n=0 must return nothing")
	}
	if page[0].Timestamp.IsZero() {
		t.Error("zero timestamps must be filled in")
	}
}
