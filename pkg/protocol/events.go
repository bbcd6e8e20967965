package protocol

import (
	"github.com/teslashibe/screen-guide/pkg/priority"
)

// =============================================================================
// Guide → client
// =============================================================================

// NeedsHelpData is raised on critical confusion.
type NeedsHelpData struct {
	SessionID    string         `json:"session_id,omitempty"`
	Severity     priority.Level `json:"severity"`
	Indicators   []string       `json:"indicators"`
	Intervention string         `json:"intervention"`
}

// SuggestedActionData is raised when the predicted intent is confident.
type SuggestedActionData struct {
	SessionID  string  `json:"session_id,omitempty"`
	Action     string  `json:"action"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// TargetData is one overlay target.
type TargetData struct {
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Width      float64        `json:"width"`
	Height     float64        `json:"height"`
	Label      string         `json:"label"`
	Confidence float64        `json:"confidence"`
	Priority   priority.Level `json:"priority"`
}

// TargetsData carries the active target list.
type TargetsData struct {
	Targets []TargetData `json:"targets"`
}

// =============================================================================
// Client → guide
// =============================================================================

// InputData is one raw interaction event. Kind is move, click or scroll.
type InputData struct {
	Kind   string  `json:"kind"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	DeltaY float64 `json:"delta_y,omitempty"`
	TS     int64   `json:"ts,omitempty"` // Unix milliseconds, 0 = now
}

// QualityData requests a capture quality preset.
type QualityData struct {
	Quality string `json:"quality"` // low, medium, high
}

// =============================================================================
// Bidirectional
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}

// =============================================================================
// Constructors
// =============================================================================

// NewNeedsHelpMessage creates a needs-help event
func NewNeedsHelpMessage(d NeedsHelpData) (*Message, error) {
	if d.Indicators == nil {
		d.Indicators = []string{}
	}
	return NewMessage(TypeNeedsHelp, d)
}

// NewSuggestedActionMessage creates a suggested-action event
func NewSuggestedActionMessage(d SuggestedActionData) (*Message, error) {
	return NewMessage(TypeSuggestedAction, d)
}

// NewTargetsMessage creates a target list message
func NewTargetsMessage(targets []TargetData) (*Message, error) {
	if targets == nil {
		targets = []TargetData{}
	}
	return NewMessage(TypeTargets, TargetsData{Targets: targets})
}

// NewPongMessage answers a ping
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Accessors
// =============================================================================

// GetNeedsHelpData extracts needs-help data from a message
func (m *Message) GetNeedsHelpData() (*NeedsHelpData, error) {
	var data NeedsHelpData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetSuggestedActionData extracts suggested-action data from a message
func (m *Message) GetSuggestedActionData() (*SuggestedActionData, error) {
	var data SuggestedActionData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetTargetsData extracts the target list from a message
func (m *Message) GetTargetsData() (*TargetsData, error) {
	var data TargetsData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetInputData extracts an input event from a message
func (m *Message) GetInputData() (*InputData, error) {
	var data InputData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetQualityData extracts a quality request from a message
func (m *Message) GetQualityData() (*QualityData, error) {
	var data QualityData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
