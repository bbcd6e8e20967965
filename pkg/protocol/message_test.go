package protocol

import (
	"strings"
	"testing"

	"github.com/teslashibe/screen-guide/pkg/priority"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    any
		wantErr bool
	}{
		{
			name:    "needs help",
			msgType: TypeNeedsHelp,
			data:    NeedsHelpData{Severity: priority.Critical},
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
		},
		{
			name:    "invalid priority fails to marshal",
			msgType: TypeNeedsHelp,
			data:    NeedsHelpData{Severity: priority.Level(9)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("Type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("timestamp should be set")
			}
			if msg.ID == "" {
				t.Error("ID should be set")
			}
		})
	}
}

func TestMessageIDsAreUnique(t *testing.T) {
	a, _ := NewMessage(TypePing, nil)
	b, _ := NewMessage(TypePing, nil)
	if a.ID == b.ID {
		t.Errorf("duplicate IDs %q", a.ID)
	}
}

func TestNeedsHelpWire(t *testing.T) {
	msg, err := NewNeedsHelpMessage(NeedsHelpData{
		Severity:     priority.Critical,
		Intervention: "Show step-by-step guidance immediately",
	})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := msg.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"type":"needs_help"`, `"severity":"critical"`, `"indicators":[]`} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("encoded message %s missing %s", raw, want)
		}
	}

	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatal(err)
	}
	d, err := parsed.GetNeedsHelpData()
	if err != nil {
		t.Fatal(err)
	}
	if d.Severity != priority.Critical || parsed.ID != msg.ID {
		t.Errorf("parsed = %+v / %s", d, parsed.ID)
	}
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    InputData
		wantErr bool
	}{
		{
			name: "click",
			raw:  `{"type":"input","data":{"kind":"click","x":10,"y":20}}`,
			want: InputData{Kind: "click", X: 10, Y: 20},
		},
		{
			name: "scroll",
			raw:  `{"type":"input","data":{"kind":"scroll","delta_y":-120,"ts":1700000000000}}`,
			want: InputData{Kind: "scroll", DeltaY: -120, TS: 1700000000000},
		},
		{name: "not json", raw: `{`, wantErr: true},
		{name: "no type", raw: `{"data":{}}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			got, err := msg.GetInputData()
			if err != nil {
				t.Fatal(err)
			}
			if *got != tt.want {
				t.Errorf("GetInputData() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestTargetsMessageNeverNull(t *testing.T) {
	msg, err := NewTargetsMessage(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(msg.Data) != `{"targets":[]}` {
		t.Errorf("Data = %s", msg.Data)
	}
}

func TestPongLatency(t *testing.T) {
	msg, _ := NewPongMessage("p1", 1000, 1025)
	var d PongData
	if err := msg.ParseData(&d); err != nil {
		t.Fatal(err)
	}
	if d.LatencyMs != 25 || d.ID != "p1" {
		t.Errorf("pong = %+v", d)
	}
}
