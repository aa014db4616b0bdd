package chatter

import (
	"context"
	"fmt"
	"strings"

	"github.com/EPecherkin/sloth-chat/config"
	"github.com/EPecherkin/sloth-chat/db"
	"github.com/EPecherkin/sloth-chat/deps"
	"github.com/EPecherkin/sloth-chat/llm"
	"github.com/EPecherkin/sloth-chat/logger"
	"github.com/EPecherkin/sloth-chat/telemetry"
	"github.com/EPecherkin/sloth-chat/timing"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const maxOutputTokens = 1000

// Chatter handles chat turns: optional delay injection around the inference
// call, timing breakdown, persistence, and the telemetry record. Frontends
// (HTTP API, telegram) own the sessions and call HandleTurn.
type Chatter struct {
	acct *timing.Accountant
	deps deps.Deps
}

func NewChatter(d deps.Deps) *Chatter {
	d.Logger = d.Logger.With(logger.CALLER, "chatter")
	d.Logger.Debug("Creating chatter")
	return &Chatter{acct: timing.NewAccountant(d.Engine, d.Logger), deps: d}
}

type TurnResult struct {
	TurnID    string
	Response  *llm.Response
	Breakdown timing.Breakdown
	Record    telemetry.Record
}

// HandleTurn runs one chat turn. The inference call's failure is fatal for
// the turn and propagated; delay failures are not. The telemetry record is
// emitted either way, flagged Failed on a call error.
func (chatter *Chatter) HandleTurn(ctx context.Context, session *Session, userText string) (*TurnResult, error) {
	turnID := uuid.NewString()
	lgr := chatter.deps.Logger.With(logger.CONVERSATION, session.ConversationID).With(logger.TURN, turnID)

	if strings.TrimSpace(userText) == "" {
		return nil, errors.New("empty user message")
	}
	lgr.Debug("starting turn")

	// One turn of a conversation at a time; concurrent calls on the same
	// session queue up here.
	session.mu.Lock()
	defer session.mu.Unlock()

	request := llm.Request{
		Model:        config.ModelId(),
		Prompt:       userText,
		SystemPrompt: session.preset.Combined(),
		History:      session.history,
		Temperature:  session.preset.Temperature,
		TopP:         session.preset.TopP,
		MaxTokens:    maxOutputTokens,
	}

	var response *llm.Response
	breakdown, callErr := chatter.acct.Execute(ctx, func(ctx context.Context) error {
		completed, err := chatter.deps.LLMC.Complete(ctx, request)
		if err != nil {
			return err
		}
		response = completed
		return nil
	}, session.delay.preRequest(), session.delay.postRequest())

	record := buildRecord(session, turnID, request, response, breakdown, callErr != nil)
	chatter.deps.Sink.Record(ctx, record)

	if err := chatter.persistTurn(session, turnID, userText, response, record); err != nil {
		lgr.With(logger.ERROR, err).Error("failed to persist turn")
	}

	if callErr != nil {
		lgr.With(logger.ERROR, callErr).Error("llm call failed")
		return nil, fmt.Errorf("completing chat turn: %w", callErr)
	}

	session.remember(userText, response.Text)

	lgr.With("total", breakdown.Total).With("llm_only", breakdown.CallOnly).Debug("finished turn")
	return &TurnResult{TurnID: turnID, Response: response, Breakdown: breakdown, Record: record}, nil
}

func buildRecord(session *Session, turnID string, request llm.Request, response *llm.Response, breakdown timing.Breakdown, failed bool) telemetry.Record {
	record := telemetry.Record{
		ConversationID: session.ConversationID,
		TurnID:         turnID,
		Model:          request.Model,
		DelayStrategy:  session.delay.Strategy.String(),
		ResponseTimeMs: breakdown.Total.Milliseconds(),
		LlmOnlyTimeMs:  breakdown.CallOnly.Milliseconds(),
		TotalDelayMs:   breakdown.TotalDelay().Milliseconds(),
		PreDelayMs:     breakdown.PreDelayDuration().Milliseconds(),
		PostDelayMs:    breakdown.PostDelayDuration().Milliseconds(),
		Temperature:    request.Temperature,
		TopP:           request.TopP,
		Failed:         failed,
	}
	if !session.delay.Enabled {
		record.DelayStrategy = ""
	}
	if response != nil {
		record.PromptTokens = response.InputTokens
		record.CompletionTokens = response.OutputTokens
		record.TotalTokens = response.TotalTokens()
		record.EstimatedCostUsd = telemetry.EstimateCost(request.Model, response.InputTokens, response.OutputTokens)
	}
	return record
}

func (chatter *Chatter) persistTurn(session *Session, turnID string, userText string, response *llm.Response, record telemetry.Record) error {
	var conversation db.Conversation
	err := chatter.deps.DBC.
		Where(db.Conversation{Key: session.ConversationID}).
		Attrs(db.Conversation{Title: title(userText)}).
		FirstOrCreate(&conversation).Error
	if err != nil {
		return fmt.Errorf("finding or creating conversation: %w", errors.WithStack(err))
	}

	turn := db.Turn{
		ConversationID:   conversation.ID,
		Key:              turnID,
		Seq:              session.nextSeq(),
		Prompt:           userText,
		ModelId:          record.Model,
		DelayStrategy:    record.DelayStrategy,
		ResponseTimeMs:   record.ResponseTimeMs,
		LlmOnlyTimeMs:    record.LlmOnlyTimeMs,
		TotalDelayMs:     record.TotalDelayMs,
		PreDelayMs:       record.PreDelayMs,
		PostDelayMs:      record.PostDelayMs,
		PromptTokens:     record.PromptTokens,
		CompletionTokens: record.CompletionTokens,
		Temperature:      record.Temperature,
		TopP:             record.TopP,
		EstimatedCostUsd: record.EstimatedCostUsd,
		Failed:           record.Failed,
	}
	if response != nil {
		turn.Response = response.Text
	}
	if err := chatter.deps.DBC.Create(&turn).Error; err != nil {
		return fmt.Errorf("saving turn: %w", errors.WithStack(err))
	}
	return nil
}

func title(userText string) string {
	text := strings.TrimSpace(userText)
	if len(text) > 64 {
		text = text[:64]
	}
	return text
}
