package util

import (
	"fmt"
	"regexp"
	"time"
)

// DatePattern matches YYYY-MM-DD in file and object names.
var DatePattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)

// ExtractDateFromName extracts the first YYYY-MM-DD in name as a local date.
func ExtractDateFromName(name string) (time.Time, bool) {
	matches := DatePattern.FindStringSubmatch(name)
	if len(matches) < 2 {
		return time.Time{}, false
	}

	date, err := time.ParseInLocation(time.DateOnly, matches[1], time.Local)
	if err != nil {
		return time.Time{}, false
	}

	return date, true
}

// clipStampFormat is the layout embedded in clip directory names.
const clipStampFormat = "2006-01-02-15-04-05"

// ClipStamp formats t for use in a clip name.
func ClipStamp(t time.Time) string {
	return t.Format(clipStampFormat)
}

// humanTimeFormat is the layout for human-readable timestamps with timezone.
const humanTimeFormat = "2 Jan 2006 15:04:05 MST"

// HumanTime formats t as a human-readable local time.
func HumanTime(t time.Time) string {
	return t.Local().Format(humanTimeFormat)
}

// FormatHumanTime converts an RFC3339 timestamp to human-readable local time format.
func FormatHumanTime(rfc3339 string) string {
	if rfc3339 == "" || rfc3339 == "unknown" {
		return "unknown"
	}
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return rfc3339
	}
	return HumanTime(t)
}

// FormatDuration formats a duration as a short human-readable string.
// Examples: "1.5s", "2m 34s", "1h 23m"
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	totalSeconds := int64(d / time.Second)
	minutes := totalSeconds / 60
	seconds := totalSeconds % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := minutes / 60
	minutes %= 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
