package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/EPecherkin/sloth-chat/config"
	"github.com/EPecherkin/sloth-chat/db"
	"github.com/EPecherkin/sloth-chat/deps"
	"github.com/EPecherkin/sloth-chat/logger"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	"gorm.io/gorm"
)

type transcriptTurn struct {
	Seq              int       `json:"seq"`
	At               time.Time `json:"at"`
	Prompt           string    `json:"prompt"`
	Response         string    `json:"response"`
	ModelId          string    `json:"model_id"`
	DelayStrategy    string    `json:"delay_strategy,omitempty"`
	ResponseTimeMs   int64     `json:"response_time_ms"`
	LlmOnlyTimeMs    int64     `json:"llm_only_time_ms"`
	TotalDelayMs     int64     `json:"total_delay_ms"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	EstimatedCostUsd string    `json:"estimated_cost_usd"`
	Failed           bool      `json:"failed"`
}

type transcript struct {
	Key        string           `json:"key"`
	Title      string           `json:"title"`
	CreatedAt  time.Time        `json:"created_at"`
	ExportedAt time.Time        `json:"exported_at"`
	Turns      []transcriptTurn `json:"turns"`
}

// Conversation writes the transcript of one conversation as JSON to the
// configured bucket and returns the blob key.
func Conversation(ctx context.Context, d deps.Deps, key string) (string, error) {
	lgr := d.Logger.With(logger.CALLER, "export").With(logger.CONVERSATION, key)

	var conversation db.Conversation
	err := d.DBC.
		Preload("Turns", func(dbc *gorm.DB) *gorm.DB { return dbc.Order("seq") }).
		Where(db.Conversation{Key: key}).
		First(&conversation).Error
	if err != nil {
		return "", fmt.Errorf("loading conversation: %w", errors.WithStack(err))
	}

	payload := transcript{
		Key:        conversation.Key,
		Title:      conversation.Title,
		CreatedAt:  conversation.CreatedAt,
		ExportedAt: time.Now().UTC(),
		Turns: lo.Map(conversation.Turns, func(turn db.Turn, _ int) transcriptTurn {
			return transcriptTurn{
				Seq:              turn.Seq,
				At:               turn.CreatedAt,
				Prompt:           turn.Prompt,
				Response:         turn.Response,
				ModelId:          turn.ModelId,
				DelayStrategy:    turn.DelayStrategy,
				ResponseTimeMs:   turn.ResponseTimeMs,
				LlmOnlyTimeMs:    turn.LlmOnlyTimeMs,
				TotalDelayMs:     turn.TotalDelayMs,
				PromptTokens:     turn.PromptTokens,
				CompletionTokens: turn.CompletionTokens,
				EstimatedCostUsd: turn.EstimatedCostUsd.String(),
				Failed:           turn.Failed,
			}
		}),
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling transcript: %w", errors.WithStack(err))
	}

	bucketUrl := config.ExportBucketUrl()
	if path, ok := strings.CutPrefix(bucketUrl, "file://"); ok {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return "", fmt.Errorf("creating export dir: %w", errors.WithStack(err))
		}
	}

	bucket, err := blob.OpenBucket(ctx, bucketUrl)
	if err != nil {
		return "", fmt.Errorf("opening export bucket: %w", errors.WithStack(err))
	}
	defer bucket.Close()

	blobKey := fmt.Sprintf("%s-%s.json", conversation.Key, time.Now().UTC().Format("20060102T150405Z"))
	if err := bucket.WriteAll(ctx, blobKey, data, nil); err != nil {
		return "", fmt.Errorf("writing transcript blob: %w", errors.WithStack(err))
	}

	lgr.With("blob_key", blobKey).Info("transcript exported")
	return blobKey, nil
}
