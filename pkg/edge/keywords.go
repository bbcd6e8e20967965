package edge

import (
	"context"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"
)

// UrgencyKeywords are the phrases scored by the keyword analyzer.
var UrgencyKeywords = []string{"urgent", "immediately", "now", "click here", "verify", "suspended"}

var (
	intentKeywords = []struct {
		intent   TextIntent
		keywords []string
	}{
		{IntentCompose, []string{"compose", "new message", "write", "reply"}},
		{IntentRead, []string{"inbox", "messages", "unread", "open"}},
		{IntentSearch, []string{"search", "find", "look up"}},
		{IntentNavigate, []string{"back", "home", "menu", "settings", "next"}},
	}

	negativeKeywords = []string{"error", "failed", "declined", "denied", "locked", "suspended", "problem"}
	positiveKeywords = []string{"thank", "thanks", "success", "welcome", "confirmed", "done"}

	entityPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}|[$€£]\s?\d[\d,]*(?:\.\d{2})?)`)
	wordPattern   = regexp.MustCompile(`[a-z0-9']+`)
)

// KeywordAnalyzer scores visible text with keyword heuristics. Single-word
// urgency keywords of five or more letters also match misspellings within
// MaxEditDistance, which catches OCR noise like "verlfy" or "urgnt".
type KeywordAnalyzer struct {
	MaxEditDistance int
}

// NewKeywordAnalyzer creates a keyword analyzer tolerating one edit.
func NewKeywordAnalyzer() *KeywordAnalyzer {
	return &KeywordAnalyzer{MaxEditDistance: 1}
}

// Name returns "keywords".
func (k *KeywordAnalyzer) Name() string { return "keywords" }

// Infer analyzes text.
func (k *KeywordAnalyzer) Infer(ctx context.Context, text string) (TextAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return TextAnalysis{}, err
	}
	lower := strings.ToLower(text)
	words := wordPattern.FindAllString(lower, -1)

	hits := 0
	for _, kw := range UrgencyKeywords {
		if k.matches(lower, words, kw, true) {
			hits++
		}
	}
	urgency := float64(hits) / float64(len(UrgencyKeywords))

	intent := IntentUnknown
	for _, group := range intentKeywords {
		if k.matchesAny(lower, words, group.keywords) {
			intent = group.intent
			break
		}
	}

	sentiment := SentimentNeutral
	switch {
	case urgency > 0.5:
		sentiment = SentimentUrgent
	case k.matchesAny(lower, words, negativeKeywords):
		sentiment = SentimentNegative
	case k.matchesAny(lower, words, positiveKeywords):
		sentiment = SentimentPositive
	}

	entities := entityPattern.FindAllString(text, -1)
	if entities == nil {
		entities = []string{}
	}

	return TextAnalysis{
		Sentiment:    sentiment,
		Entities:     entities,
		Intent:       intent,
		UrgencyScore: urgency,
	}, nil
}

// Close is a no-op.
func (k *KeywordAnalyzer) Close() error { return nil }

func (k *KeywordAnalyzer) matchesAny(lower string, words []string, keywords []string) bool {
	for _, kw := range keywords {
		if k.matches(lower, words, kw, false) {
			return true
		}
	}
	return false
}

// matches checks multi-word keywords as phrases and single words per token.
// Only urgency keywords are matched fuzzily.
func (k *KeywordAnalyzer) matches(lower string, words []string, kw string, fuzzy bool) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(lower, kw)
	}
	for _, w := range words {
		if w == kw {
			return true
		}
		if fuzzy && k.MaxEditDistance > 0 && len(kw) >= 5 && abs(len(w)-len(kw)) <= k.MaxEditDistance {
			if levenshtein.ComputeDistance(w, kw) <= k.MaxEditDistance {
				return true
			}
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

var _ TextAnalyzer = (*KeywordAnalyzer)(nil)
