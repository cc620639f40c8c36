package drowsiness

import (
	"time"

	"github.com/oszuidwest/drowsiguard/internal/types"
)

// Rule identifies which classifier branch produced a result.
type Rule string

const (
	RuleHeadNodActive  Rule = "head_nod_active"
	RuleHeadNodRepeat  Rule = "head_nod_repeat"
	RuleEyesClosedLong Rule = "eyes_closed_long"
	RuleEyesClosed     Rule = "eyes_closed"
	RuleSecondary      Rule = "secondary_indicator"
	RuleNone           Rule = "none"
)

// Classifier thresholds. Duration thresholds dominate instantaneous flags and
// head-nod outranks everything.
const (
	severeEyeClosed   = 2 * time.Second
	moderateEyeClosed = 1 * time.Second
	repeatedHeadNods  = 3
)

// Classification is the risk level and confidence for one tick.
type Classification struct {
	Level      types.RiskLevel
	Confidence int
	Rule       Rule
}

// HeadNodCause reports whether a head-nod rule produced the result.
func (c Classification) HeadNodCause() bool {
	return c.Rule == RuleHeadNodActive || c.Rule == RuleHeadNodRepeat
}

// Classify maps debounced signals to a risk level. The first matching rule wins.
func Classify(eyeClosed time.Duration, raw types.DetectionFrame, consecutiveHeadNods int, headNodActive bool) Classification {
	switch {
	case headNodActive:
		return Classification{types.RiskSevere, 30, RuleHeadNodActive}
	case consecutiveHeadNods >= repeatedHeadNods:
		return Classification{types.RiskSevere, 30, RuleHeadNodRepeat}
	case eyeClosed >= severeEyeClosed:
		return Classification{types.RiskSevere, 40, RuleEyesClosedLong}
	case eyeClosed >= moderateEyeClosed:
		return Classification{types.RiskModerate, 60, RuleEyesClosed}
	case raw.Yawn || raw.Tired || raw.EyesClosed || raw.HeadNod:
		return Classification{types.RiskMild, 75, RuleSecondary}
	default:
		return Classification{types.RiskSafe, 94, RuleNone}
	}
}

// Assess builds the published assessment from a debouncer update and its classification.
func Assess(u Update, raw types.DetectionFrame, c Classification) types.RiskAssessment {
	return types.RiskAssessment{
		BlinkRate:         u.Signals.BlinkRate,
		EyeClosedDuration: u.Signals.EyeClosedDuration.Seconds(),
		YawnDetected:      raw.Yawn,
		HeadNodDetected:   raw.HeadNod,
		Confidence:        c.Confidence,
		RiskLevel:         c.Level,
	}
}
