package telemetry

import (
	"context"

	"github.com/shopspring/decimal"
)

// Record is the flat per-turn metric payload forwarded to the APM backend.
// Time fields are milliseconds to match the dashboard queries.
type Record struct {
	ConversationID string
	TurnID         string
	Model          string
	DelayStrategy  string

	ResponseTimeMs int64
	LlmOnlyTimeMs  int64
	TotalDelayMs   int64
	PreDelayMs     int64
	PostDelayMs    int64

	PromptTokens     int
	CompletionTokens int
	TotalTokens      int

	Temperature      float64
	TopP             float64
	EstimatedCostUsd decimal.Decimal

	Failed bool
}

// Sink durably records metrics out of band. Implementations are best-effort:
// recording must never fail or block the user-visible flow.
type Sink interface {
	Record(ctx context.Context, record Record)
}
