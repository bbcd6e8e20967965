package behavior

import (
	"time"

	"github.com/teslashibe/screen-guide/pkg/priority"
)

// ScrollPattern classifies scroll velocity variance.
type ScrollPattern string

// Scroll patterns.
const (
	ScrollSmooth    ScrollPattern = "smooth"
	ScrollUncertain ScrollPattern = "uncertain"
	ScrollJerky     ScrollPattern = "jerky"
)

// Pattern is the tracker's rolling behavioral summary.
type Pattern struct {
	HesitationCount  int           `json:"hesitation_count"`
	ErraticMovement  float64       `json:"erratic_movement"`
	RepeatAttempts   int           `json:"repeat_attempts"`
	AvgClickAccuracy float64       `json:"avg_click_accuracy"`
	ScrollPattern    ScrollPattern `json:"scroll_pattern"`
	ConfidenceLevel  float64       `json:"confidence_level"`
}

// NewPattern returns the pattern of a fresh session.
func NewPattern() Pattern {
	return Pattern{ScrollPattern: ScrollSmooth, ConfidenceLevel: 1}
}

// Confidence computes how sure of themselves the user appears, in [0,1].
func Confidence(p Pattern) float64 {
	c := 1.0
	c -= float64(p.HesitationCount) * 0.05
	c -= p.ErraticMovement * 0.2
	c -= float64(p.RepeatAttempts) * 0.1
	return clamp01(c)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Confusion indicator messages.
const (
	IndicatorExcessiveHesitation = "Excessive hesitation (cursor not moving)"
	IndicatorSomeHesitation      = "Some hesitation detected"
	IndicatorErraticMovement     = "Erratic mouse movement"
	IndicatorRepeatedAttempts    = "Multiple repeated attempts on same target"
	IndicatorJerkyScrolling      = "Jerky scrolling pattern"
)

// Suggested interventions by severity.
const (
	InterventionStepByStep = "Show step-by-step guidance immediately"
	InterventionOfferHelp  = "Offer proactive help"
	InterventionHighlight  = "Highlight next action"
	InterventionMonitor    = "Continue monitoring"
)

// Confusion thresholds.
const (
	hesitationHigh     = 5   // more than this many hesitations is high
	hesitationMedium   = 2   // more than this many is medium
	erraticHigh        = 0.7 // erratic score above this is high
	repeatCritical     = 5   // this many repeats or more is critical
	needsHelpHesitate  = 2
	needsHelpRepeats   = 3
	composeHotspotMaxX = 300
	composeHotspotMaxY = 200
)

// ConfusionSignal is the tracker's confusion verdict.
type ConfusionSignal struct {
	Detected              bool           `json:"detected"`
	Severity              priority.Level `json:"severity"`
	Indicators            []string       `json:"indicators"`
	SuggestedIntervention string         `json:"suggested_intervention"`
}

// Intervention maps a severity to the suggested response.
func Intervention(severity priority.Level) string {
	switch severity {
	case priority.Critical:
		return InterventionStepByStep
	case priority.High:
		return InterventionOfferHelp
	case priority.Medium:
		return InterventionHighlight
	default:
		return InterventionMonitor
	}
}

// ConfusionFor maps a pattern snapshot to a confusion signal. It is pure:
// equal patterns always yield equal signals.
func ConfusionFor(p Pattern) ConfusionSignal {
	indicators := []string{}
	severity := priority.Low
	raise := func(l priority.Level) {
		if l > severity {
			severity = l
		}
	}

	switch {
	case p.HesitationCount > hesitationHigh:
		indicators = append(indicators, IndicatorExcessiveHesitation)
		raise(priority.High)
	case p.HesitationCount > hesitationMedium:
		indicators = append(indicators, IndicatorSomeHesitation)
		raise(priority.Medium)
	}
	if p.ErraticMovement > erraticHigh {
		indicators = append(indicators, IndicatorErraticMovement)
		raise(priority.High)
	}
	if p.RepeatAttempts >= repeatCritical {
		indicators = append(indicators, IndicatorRepeatedAttempts)
		raise(priority.Critical)
	}
	if p.ScrollPattern == ScrollJerky {
		indicators = append(indicators, IndicatorJerkyScrolling)
	}

	return ConfusionSignal{
		Detected:              len(indicators) > 0,
		Severity:              severity,
		Indicators:            indicators,
		SuggestedIntervention: Intervention(severity),
	}
}

// IntentAction is a predicted next user action.
type IntentAction string

// Predicted actions.
const (
	ActionComposeEmail IntentAction = "compose_email"
	ActionReadEmail    IntentAction = "read_email"
	ActionReply        IntentAction = "reply"
	ActionAttachFile   IntentAction = "attach_file"
	ActionSearch       IntentAction = "search"
	ActionSettings     IntentAction = "settings"
	ActionConfused     IntentAction = "confused"
	ActionNeedsHelp    IntentAction = "needs_help"
)

// IntentPrediction is a point-in-time guess of what the user is trying to do.
type IntentPrediction struct {
	Action     IntentAction `json:"action"`
	Confidence float64      `json:"confidence"`
	Reasoning  string       `json:"reasoning"`
	Timestamp  time.Time    `json:"timestamp"`
}

// IntentFor applies the heuristic rules to a pattern and heatmap hotspot.
func IntentFor(p Pattern, hotX, hotY float64, hasHotspot bool) IntentPrediction {
	if hasHotspot && hotY < composeHotspotMaxY && hotX < composeHotspotMaxX {
		return IntentPrediction{
			Action:     ActionComposeEmail,
			Confidence: 0.75,
			Reasoning:  "Pointer dwelling near top-left, where compose usually is",
		}
	}
	if p.HesitationCount > needsHelpHesitate || p.RepeatAttempts > needsHelpRepeats {
		return IntentPrediction{
			Action:     ActionNeedsHelp,
			Confidence: 0.85,
			Reasoning:  "Multiple hesitations or repeated attempts detected",
		}
	}
	return IntentPrediction{
		Action:     ActionConfused,
		Confidence: 0.5,
		Reasoning:  "Unclear behavioral pattern",
	}
}
