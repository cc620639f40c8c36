package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"

	"github.com/oszuidwest/drowsiguard/internal/types"
	"github.com/oszuidwest/drowsiguard/internal/util"
)

const (
	githubRepo           = "oszuidwest/drowsiguard"
	releasesURL          = "https://api.github.com/repos/" + githubRepo + "/releases/latest"
	versionCheckInterval = 24 * time.Hour
	versionCheckDelay    = 30 * time.Second // First check runs after startup settles
	versionCheckTimeout  = 30 * time.Second
	versionMaxRetries    = 3
	versionRetryDelay    = 1 * time.Minute
)

// errRetryLater marks a failed check that should be retried.
var errRetryLater = errors.New("release check failed, retry later")

// VersionChecker polls the latest release and reports whether an update is
// available. It is safe for concurrent use.
type VersionChecker struct {
	url    string
	client *http.Client

	mu     sync.RWMutex
	latest string
	etag   string // Sent as If-None-Match so unchanged releases cost a 304

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewVersionChecker returns a VersionChecker polling the release API in the background.
func NewVersionChecker() *VersionChecker {
	vc := newVersionChecker(releasesURL)
	go vc.run()
	return vc
}

func newVersionChecker(url string) *VersionChecker {
	return &VersionChecker{
		url:    url,
		client: &http.Client{Timeout: versionCheckTimeout},
		stopCh: make(chan struct{}),
	}
}

// Stop ends background polling. It is safe to call more than once.
func (vc *VersionChecker) Stop() {
	vc.stopOnce.Do(func() { close(vc.stopCh) })
}

// wait sleeps for d and reports false if the checker was stopped meanwhile.
func (vc *VersionChecker) wait(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-vc.stopCh:
		return false
	}
}

func (vc *VersionChecker) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in version checker", "panic", r)
		}
	}()

	if !vc.wait(versionCheckDelay) {
		return
	}
	for {
		vc.checkWithRetry()
		if !vc.wait(versionCheckInterval) {
			return
		}
	}
}

func (vc *VersionChecker) checkWithRetry() {
	for attempt := 1; attempt <= versionMaxRetries; attempt++ {
		err := vc.check(context.Background())
		if err == nil {
			return
		}
		slog.Debug("version check failed", "attempt", attempt, "error", err)
		if attempt == versionMaxRetries || !vc.wait(versionRetryDelay) {
			return
		}
	}
}

// githubRelease is the subset of the release API response we read.
type githubRelease struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// check fetches the latest release once. Only rate limits, server errors and
// unreadable responses are worth retrying.
func (vc *VersionChecker) check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, vc.url, http.NoBody)
	if err != nil {
		return util.WrapError("create release request", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "drowsiguard/"+Version)

	vc.mu.RLock()
	if vc.etag != "" {
		req.Header.Set("If-None-Match", vc.etag)
	}
	vc.mu.RUnlock()

	resp, err := vc.client.Do(req)
	if err != nil {
		return errors.Join(errRetryLater, err)
	}
	defer util.SafeCloseFunc(resp.Body, "release response")()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotModified, resp.StatusCode == http.StatusNotFound:
		// Unchanged, or no releases yet.
		return nil
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return errRetryLater
	default:
		return nil
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return errors.Join(errRetryLater, err)
	}
	if release.Draft || release.Prerelease {
		return nil
	}
	if release.TagName == "" {
		return errRetryLater
	}

	vc.mu.Lock()
	vc.latest = normalizeVersion(release.TagName)
	if etag := resp.Header.Get("ETag"); etag != "" {
		vc.etag = etag
	}
	vc.mu.Unlock()
	return nil
}

// Info returns the current version info for status pushes.
func (vc *VersionChecker) Info() types.VersionInfo {
	vc.mu.RLock()
	latest := vc.latest
	vc.mu.RUnlock()

	current := normalizeVersion(Version)
	info := types.VersionInfo{
		Current:   current,
		Latest:    latest,
		Commit:    Commit,
		BuildTime: util.FormatHumanTime(BuildTime),
	}
	if latest != "" && current != "dev" && current != "unknown" {
		info.UpdateAvail = isNewerVersion(latest, current)
	}
	return info
}

func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// isNewerVersion reports whether latest is a higher semver than current.
func isNewerVersion(latest, current string) bool {
	return semver.Compare("v"+normalizeVersion(latest), "v"+normalizeVersion(current)) > 0
}
