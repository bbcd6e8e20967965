package edge

import (
	"context"
	"math"
	"testing"
)

func TestKeywordAnalyzer(t *testing.T) {
	tests := []struct {
		name          string
		text          string
		wantSentiment Sentiment
		wantIntent    TextIntent
		wantUrgency   float64
	}{
		{
			name:          "empty",
			text:          "",
			wantSentiment: SentimentNeutral,
			wantIntent:    IntentUnknown,
		},
		{
			name:          "compose",
			text:          "Compose",
			wantSentiment: SentimentNeutral,
			wantIntent:    IntentCompose,
		},
		{
			name:          "new message beats messages",
			text:          "New Message | Messages",
			wantSentiment: SentimentNeutral,
			wantIntent:    IntentCompose,
		},
		{
			name:          "inbox",
			text:          "Inbox (3)",
			wantSentiment: SentimentNeutral,
			wantIntent:    IntentRead,
		},
		{
			name:          "search",
			text:          "Search mail",
			wantSentiment: SentimentNeutral,
			wantIntent:    IntentSearch,
		},
		{
			name:          "scam text",
			text:          "URGENT: your account is suspended. Verify immediately, click here now!",
			wantSentiment: SentimentUrgent,
			wantIntent:    IntentUnknown,
			wantUrgency:   1,
		},
		{
			name:          "ocr noise still scores",
			text:          "Please verlfy your account, it was suspnded",
			wantSentiment: SentimentNeutral,
			wantIntent:    IntentUnknown,
			wantUrgency:   2.0 / 6.0,
		},
		{
			name:          "half urgent is not urgent",
			text:          "urgent: verify now",
			wantSentiment: SentimentNeutral,
			wantIntent:    IntentUnknown,
			wantUrgency:   0.5,
		},
		{
			name:          "positive",
			text:          "Thanks, payment confirmed",
			wantSentiment: SentimentPositive,
			wantIntent:    IntentUnknown,
		},
	}

	k := NewKeywordAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := k.Infer(context.Background(), tt.text)
			if err != nil {
				t.Fatalf("Infer() error = %v", err)
			}
			if got.Sentiment != tt.wantSentiment {
				t.Errorf("Sentiment = %s, want %s", got.Sentiment, tt.wantSentiment)
			}
			if got.Intent != tt.wantIntent {
				t.Errorf("Intent = %s, want %s", got.Intent, tt.wantIntent)
			}
			if math.Abs(got.UrgencyScore-tt.wantUrgency) > 1e-9 {
				t.Errorf("UrgencyScore = %v, want %v", got.UrgencyScore, tt.wantUrgency)
			}
			if got.Entities == nil {
				t.Error("Entities is nil")
			}
		})
	}
}

func TestKeywordAnalyzerEntities(t *testing.T) {
	k := NewKeywordAnalyzer()
	got, err := k.Infer(context.Background(), "Send $1,200.00 to help@bank-secure.com or visit https://bank-secure.example/login")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{
		"$1,200.00":                         true,
		"help@bank-secure.com":              true,
		"https://bank-secure.example/login": true,
	}
	if len(got.Entities) != len(want) {
		t.Fatalf("Entities = %v", got.Entities)
	}
	for _, e := range got.Entities {
		if !want[e] {
			t.Errorf("unexpected entity %q", e)
		}
	}
}

func TestKeywordAnalyzerFuzzyOff(t *testing.T) {
	k := &KeywordAnalyzer{}
	got, _ := k.Infer(context.Background(), "verlfy")
	if got.UrgencyScore != 0 {
		t.Errorf("UrgencyScore = %v with fuzzy matching disabled", got.UrgencyScore)
	}
}
