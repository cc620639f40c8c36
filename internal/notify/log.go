package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/oszuidwest/drowsiguard/internal/types"
	"github.com/oszuidwest/drowsiguard/internal/util"
)

// LogEntry is one line in the escalation log file.
type LogEntry struct {
	Timestamp         string  `json:"timestamp"`
	Event             string  `json:"event"`
	SessionID         string  `json:"session_id,omitempty"`
	Cause             string  `json:"cause,omitempty"`
	RiskLevel         string  `json:"risk_level,omitempty"`
	Confidence        int     `json:"confidence,omitempty"`
	EyeClosedDuration float64 `json:"eye_closed_duration,omitempty"`
	ClipID            string  `json:"clip_id,omitempty"`
}

// LogEscalation records an escalation.
func LogEscalation(logPath string, esc *types.Escalation, clipID string) error {
	return appendLogEntry(logPath, &LogEntry{
		Timestamp:         esc.Timestamp.UTC().Format(time.RFC3339),
		Event:             "escalation",
		SessionID:         esc.SessionID,
		Cause:             string(esc.Cause),
		RiskLevel:         string(esc.Assessment.RiskLevel),
		Confidence:        esc.Assessment.Confidence,
		EyeClosedDuration: esc.Assessment.EyeClosedDuration,
		ClipID:            clipID,
	})
}

// WriteTestLog writes a test log entry.
func WriteTestLog(logPath string) error {
	if logPath == "" {
		return fmt.Errorf("log file path not configured")
	}

	return appendLogEntry(logPath, &LogEntry{
		Timestamp: timestampUTC(),
		Event:     "test",
	})
}

// appendLogEntry appends a log entry to the file.
func appendLogEntry(logPath string, entry *LogEntry) error {
	if !util.IsConfigured(logPath) {
		return nil
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return util.WrapError("marshal log entry", err)
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return util.WrapError("create log directory", err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return util.WrapError("open log file", err)
	}
	defer util.SafeCloseFunc(f, "log file")()

	if _, err := f.Write(append(jsonData, '\n')); err != nil {
		return util.WrapError("write log entry", err)
	}

	return nil
}

// LogAcknowledged records that the driver acknowledged an escalation.
func LogAcknowledged(logPath, sessionID string) error {
	return appendLogEntry(logPath, &LogEntry{
		Timestamp: timestampUTC(),
		Event:     "acknowledged",
		SessionID: sessionID,
	})
}

// ReadLog returns the last maxEntries entries of the log file, newest first.
// A missing file yields no entries.
func ReadLog(logPath string, maxEntries int) ([]LogEntry, error) {
	data, err := os.ReadFile(logPath)
	if errors.Is(err, fs.ErrNotExist) {
		return []LogEntry{}, nil
	}
	if err != nil {
		return nil, util.WrapError("read log file", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	start := max(0, len(lines)-maxEntries)
	lines = lines[start:]

	entries := make([]LogEntry, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			slog.Warn("failed to parse log entry", "line", line, "error", err)
			continue
		}
		entries = append(entries, entry)
	}

	// Reverse to show newest first
	slices.Reverse(entries)

	return entries, nil
}
