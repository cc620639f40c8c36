package drowsiness

import "time"

// Thresholds holds the timing parameters of the debouncer and the escalation controller.
type Thresholds struct {
	AsleepAlarmAfter    time.Duration // Sustained head-nod before the alarm
	YawnWindow          time.Duration // Trailing window for yawn edges
	YawnWarnCount       int           // Yawns in the window that trigger a warning
	WarningCooldown     time.Duration // Minimum gap between yawn warnings
	EyeClosedWarnAfter  time.Duration // Sustained closure before the warning tone
	BlinkMaxClosed      time.Duration // Longest closure still counted as a blink
	BlinkWindow         time.Duration // Trailing window for blinks
	SevereEscalateAfter time.Duration // Continuous severe risk before escalation
}

// DefaultThresholds returns the stock timing parameters.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AsleepAlarmAfter:    1500 * time.Millisecond,
		YawnWindow:          60 * time.Second,
		YawnWarnCount:       5,
		WarningCooldown:     15 * time.Second,
		EyeClosedWarnAfter:  30 * time.Second,
		BlinkMaxClosed:      600 * time.Millisecond,
		BlinkWindow:         60 * time.Second,
		SevereEscalateAfter: 1500 * time.Millisecond,
	}
}
