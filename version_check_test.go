package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestIsNewerVersion(t *testing.T) {
	tests := []struct {
		latest, current string
		want            bool
	}{
		{"1.2.0", "1.1.9", true},
		{"v1.10.0", "1.9.0", true},
		{"1.1.0", "1.1.0", false},
		{"1.0.0", "1.1.0", false},
		{"garbage", "1.0.0", false},
	}
	for _, tt := range tests {
		if got := isNewerVersion(tt.latest, tt.current); got != tt.want {
			t.Errorf("isNewerVersion(%q, %q) = %v, want %v", tt.latest, tt.current, got, tt.want)
		}
	}
}

func TestVersionCheck_UsesETag(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("If-None-Match") == `"abc"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"abc"`)
		_, _ = w.Write([]byte(`{"tag_name":"v2.3.4"}`))
	}))
	defer ts.Close()

	vc := newVersionChecker(ts.URL)
	if err := vc.check(context.Background()); err != nil {
		t.Fatalf("first check: %v", err)
	}
	if got := vc.Info().Latest; got != "2.3.4" {
		t.Fatalf("Latest = %q, want 2.3.4", got)
	}
	if err := vc.check(context.Background()); err != nil {
		t.Fatalf("second check: %v", err)
	}
	if got := vc.Info().Latest; got != "2.3.4" {
		t.Errorf("Latest after 304 = %q, want 2.3.4", got)
	}
	if calls.Load() != 2 {
		t.Errorf("server calls = %d, want 2", calls.Load())
	}
}

func TestVersionCheck_Statuses(t *testing.T) {
	tests := []struct {
		name  string
		code  int
		body  string
		retry bool
	}{
		{"no releases", http.StatusNotFound, "", false},
		{"rate limited", http.StatusTooManyRequests, "", true},
		{"server error", http.StatusBadGateway, "", true},
		{"prerelease ignored", http.StatusOK, `{"tag_name":"v9.0.0","prerelease":true}`, false},
		{"missing tag", http.StatusOK, `{}`, true},
		{"bad json", http.StatusOK, `{`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			vc := newVersionChecker(ts.URL)
			err := vc.check(context.Background())
			if got := errors.Is(err, errRetryLater); got != tt.retry {
				t.Errorf("retry = %v (err %v), want %v", got, err, tt.retry)
			}
			if vc.Info().Latest != "" {
				t.Errorf("Latest = %q, want empty", vc.Info().Latest)
			}
		})
	}
}

func TestVersionChecker_StopIsIdempotent(t *testing.T) {
	vc := newVersionChecker("http://127.0.0.1:0")
	vc.Stop()
	vc.Stop()
	if vc.wait(versionCheckInterval) {
		t.Error("wait returned true after Stop")
	}
}
