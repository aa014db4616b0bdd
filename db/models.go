package db

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Conversation struct {
	gorm.Model
	Key   string `gorm:"type:varchar(36);uniqueIndex"`
	Title string `gorm:"type:varchar(256)"`
	Turns []Turn
}

// One user prompt and its assistant response, with the timing breakdown and
// usage captured for the dashboards.
type Turn struct {
	gorm.Model
	ConversationID uint   `gorm:"index"`
	Key            string `gorm:"type:varchar(36);uniqueIndex"`
	Seq            int
	Prompt         string `gorm:"type:text"`
	Response       string `gorm:"type:text"`
	ModelId        string `gorm:"type:varchar(128)"`

	DelayStrategy  string `gorm:"type:varchar(16)"`
	ResponseTimeMs int64
	LlmOnlyTimeMs  int64
	TotalDelayMs   int64
	PreDelayMs     int64
	PostDelayMs    int64

	PromptTokens     int
	CompletionTokens int
	Temperature      float64
	TopP             float64
	EstimatedCostUsd decimal.Decimal `gorm:"type:decimal(20,6)"`

	Failed       bool
	Conversation *Conversation
}
