package edge

import (
	"time"

	"github.com/teslashibe/screen-guide/pkg/priority"
)

// ElementType is the kind of UI element a detector found.
type ElementType string

// UI element kinds.
const (
	ElementButton   ElementType = "button"
	ElementInput    ElementType = "input"
	ElementLink     ElementType = "link"
	ElementMenu     ElementType = "menu"
	ElementCheckbox ElementType = "checkbox"
	ElementText     ElementType = "text"
	ElementImage    ElementType = "image"
)

// ElementTypes lists the kinds in detector class order.
var ElementTypes = []ElementType{
	ElementButton, ElementInput, ElementLink, ElementMenu,
	ElementCheckbox, ElementText, ElementImage,
}

// BoundingBox is a screen-space rectangle in pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the center point of the box.
func (b BoundingBox) Center() (x, y float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Contains reports whether the point lies inside the box.
func (b BoundingBox) Contains(x, y float64) bool {
	return x >= b.X && x <= b.X+b.Width && y >= b.Y && y <= b.Y+b.Height
}

// Element is one detected UI element.
type Element struct {
	Type       ElementType    `json:"type"`
	Box        BoundingBox    `json:"bounding_box"`
	Confidence float64        `json:"confidence"`
	Label      string         `json:"label"`
	Priority   priority.Level `json:"priority"`
}

// Category is a page content class.
type Category string

// Content categories.
const (
	CategoryEmail    Category = "email"
	CategoryBank     Category = "bank"
	CategoryShopping Category = "shopping"
	CategorySocial   Category = "social"
	CategoryNews     Category = "news"
	CategoryScam     Category = "scam"
	CategoryUnknown  Category = "unknown"
)

// Categories lists the classes in classifier output order.
var Categories = []Category{
	CategoryEmail, CategoryBank, CategoryShopping, CategorySocial,
	CategoryNews, CategoryScam, CategoryUnknown,
}

// ContentClassification is the classifier's verdict for a frame.
type ContentClassification struct {
	Category    Category `json:"category"`
	Confidence  float64  `json:"confidence"`
	Subcategory string   `json:"subcategory,omitempty"`
}

// Sentiment of visible text.
type Sentiment string

// Sentiments.
const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
	SentimentUrgent   Sentiment = "urgent"
)

// TextIntent is what visible text suggests the user is doing.
type TextIntent string

// Text intents.
const (
	IntentCompose  TextIntent = "compose"
	IntentRead     TextIntent = "read"
	IntentSearch   TextIntent = "search"
	IntentNavigate TextIntent = "navigate"
	IntentUnknown  TextIntent = "unknown"
)

// TextAnalysis is the text model's output.
type TextAnalysis struct {
	Sentiment    Sentiment  `json:"sentiment"`
	Entities     []string   `json:"entities"`
	Intent       TextIntent `json:"intent"`
	UrgencyScore float64    `json:"urgency_score"`
}

// Timings records how long each model took on one frame.
type Timings struct {
	Detection      time.Duration `json:"detection"`
	Classification time.Duration `json:"classification"`
	Text           time.Duration `json:"text"`
	Total          time.Duration `json:"total"`
}

// Analysis is the joined output of all three models for one frame.
type Analysis struct {
	Elements []Element             `json:"elements"`
	Content  ContentClassification `json:"content"`
	Text     TextAnalysis          `json:"text"`
	Timings  Timings               `json:"timings"`
}
