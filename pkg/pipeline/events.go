package pipeline

import (
	"time"

	"github.com/teslashibe/screen-guide/pkg/behavior"
	"github.com/teslashibe/screen-guide/pkg/overlay"
	"github.com/teslashibe/screen-guide/pkg/protocol"
)

// EventKind identifies a guidance event.
type EventKind string

const (
	EventNeedsHelp       EventKind = "needs_help"
	EventSuggestedAction EventKind = "suggested_action"
	EventTargetAdded     EventKind = "target_added"
)

// Event is raised by the tick for the guidance collaborators.
type Event struct {
	Kind      EventKind                  `json:"kind"`
	Time      time.Time                  `json:"time"`
	SessionID string                     `json:"session_id,omitempty"`
	Confusion *behavior.ConfusionSignal  `json:"confusion,omitempty"`
	Intent    *behavior.IntentPrediction `json:"intent,omitempty"`
	Target    *overlay.Target            `json:"target,omitempty"`
}

// Message converts the event to its wire form.
func (e Event) Message() (*protocol.Message, error) {
	switch e.Kind {
	case EventNeedsHelp:
		return protocol.NewNeedsHelpMessage(protocol.NeedsHelpData{
			SessionID:    e.SessionID,
			Severity:     e.Confusion.Severity,
			Indicators:   e.Confusion.Indicators,
			Intervention: e.Confusion.SuggestedIntervention,
		})
	case EventSuggestedAction:
		return protocol.NewSuggestedActionMessage(protocol.SuggestedActionData{
			SessionID:  e.SessionID,
			Action:     string(e.Intent.Action),
			Confidence: e.Intent.Confidence,
			Reasoning:  e.Intent.Reasoning,
		})
	default:
		return protocol.NewTargetsMessage([]protocol.TargetData{TargetData(*e.Target)})
	}
}

// TargetData converts an overlay target to its wire form.
func TargetData(t overlay.Target) protocol.TargetData {
	return protocol.TargetData{
		X:          t.X,
		Y:          t.Y,
		Width:      t.Width,
		Height:     t.Height,
		Label:      t.Label,
		Confidence: t.Confidence,
		Priority:   t.Priority,
	}
}
