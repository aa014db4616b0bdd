package api

import (
	"math"
	"net/http"
	"time"

	"github.com/EPecherkin/sloth-chat/chatter"
	"github.com/EPecherkin/sloth-chat/db"
	"github.com/EPecherkin/sloth-chat/delay"
	"github.com/EPecherkin/sloth-chat/export"
	"github.com/EPecherkin/sloth-chat/logger"
	"github.com/EPecherkin/sloth-chat/prompts"
	"github.com/EPecherkin/sloth-chat/timing"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

var errBadSeconds = errors.Errorf("delay seconds must be within [%.1f, %.1f]", minDelaySeconds, maxDelaySeconds)

type chatPayload struct {
	ConversationID string        `json:"conversation_id"`
	Prompt         string        `json:"prompt" binding:"required"`
	Preset         string        `json:"preset"`
	Delay          *delayPayload `json:"delay"`
}

type timingPayload struct {
	ResponseTimeMs int64    `json:"response_time_ms"`
	LlmOnlyTimeMs  int64    `json:"llm_only_time_ms"`
	TotalDelayMs   int64    `json:"total_delay_ms"`
	PreDelayMs     int64    `json:"before_llm_delay_ms"`
	PostDelayMs    int64    `json:"after_llm_delay_ms"`
	EfficiencyPct  *float64 `json:"efficiency_pct,omitempty"`
}

func timingFromBreakdown(breakdown timing.Breakdown) timingPayload {
	payload := timingPayload{
		ResponseTimeMs: breakdown.Total.Milliseconds(),
		LlmOnlyTimeMs:  breakdown.CallOnly.Milliseconds(),
		TotalDelayMs:   breakdown.TotalDelay().Milliseconds(),
		PreDelayMs:     breakdown.PreDelayDuration().Milliseconds(),
		PostDelayMs:    breakdown.PostDelayDuration().Milliseconds(),
	}
	if ratio, ok := breakdown.Efficiency(); ok {
		pct := ratio * 100
		payload.EfficiencyPct = &pct
	}
	return payload
}

func delayWarnings(breakdown timing.Breakdown) []string {
	var warnings []string
	if breakdown.PreDelay != nil && breakdown.PreDelay.Err != nil {
		warnings = append(warnings, "before llm: "+breakdown.PreDelay.Err.Error())
	}
	if breakdown.PostDelay != nil && breakdown.PostDelay.Err != nil {
		warnings = append(warnings, "after llm: "+breakdown.PostDelay.Err.Error())
	}
	return warnings
}

func (api *Api) chat(c *gin.Context) {
	var payload chatPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	preset := prompts.Default()
	if payload.Preset != "" {
		found, ok := prompts.Find(payload.Preset)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown preset: " + payload.Preset})
			return
		}
		preset = found
	}

	var delaySettings chatter.DelaySettings
	if payload.Delay != nil {
		settings, err := payload.Delay.settings()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		delaySettings = settings
	}

	session := api.sessionFor(payload.ConversationID, preset, delaySettings)
	if payload.Preset != "" {
		session.SetPreset(preset)
	}
	if payload.Delay != nil {
		session.SetDelay(delaySettings)
	}

	result, err := api.handler.HandleTurn(c.Request.Context(), session, payload.Prompt)
	if err != nil {
		api.deps.Logger.With(logger.ERROR, err).Error("chat turn failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "conversation_id": session.ConversationID})
		return
	}

	response := gin.H{
		"conversation_id":   session.ConversationID,
		"turn_id":           result.TurnID,
		"response":          result.Response.Text,
		"prompt_tokens":     result.Response.InputTokens,
		"completion_tokens": result.Response.OutputTokens,
		"total_tokens":      result.Response.TotalTokens(),
		"timing":            timingFromBreakdown(result.Breakdown),
	}
	if warnings := delayWarnings(result.Breakdown); len(warnings) > 0 {
		response["delay_warnings"] = warnings
	}
	c.JSON(http.StatusOK, response)
}

func (api *Api) presets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"presets": prompts.All()})
}

type strategyPayload struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

func (api *Api) strategies(c *gin.Context) {
	strategies := lo.Map(delay.Strategies(), func(strategy delay.Strategy, _ int) strategyPayload {
		return strategyPayload{Name: strategy.String(), Label: strategy.Label()}
	})
	c.JSON(http.StatusOK, gin.H{"strategies": strategies})
}

type turnPayload struct {
	Seq              int     `json:"seq"`
	Prompt           string  `json:"prompt"`
	Response         string  `json:"response"`
	ModelId          string  `json:"model_id"`
	DelayStrategy    string  `json:"delay_strategy,omitempty"`
	ResponseTimeMs   int64   `json:"response_time_ms"`
	LlmOnlyTimeMs    int64   `json:"llm_only_time_ms"`
	TotalDelayMs     int64   `json:"total_delay_ms"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	Temperature      float64 `json:"temperature"`
	TopP             float64 `json:"top_p"`
	EstimatedCostUsd string  `json:"estimated_cost_usd"`
	Failed           bool    `json:"failed"`
}

func (api *Api) conversation(c *gin.Context) {
	key := c.Param("key")

	var conversation db.Conversation
	err := api.deps.DBC.
		Preload("Turns", func(dbc *gorm.DB) *gorm.DB { return dbc.Order("seq") }).
		Where(db.Conversation{Key: key}).
		First(&conversation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	if err != nil {
		api.deps.Logger.With(logger.ERROR, errors.WithStack(err)).Error("loading conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	turns := lo.Map(conversation.Turns, func(turn db.Turn, _ int) turnPayload {
		return turnPayload{
			Seq:              turn.Seq,
			Prompt:           turn.Prompt,
			Response:         turn.Response,
			ModelId:          turn.ModelId,
			DelayStrategy:    turn.DelayStrategy,
			ResponseTimeMs:   turn.ResponseTimeMs,
			LlmOnlyTimeMs:    turn.LlmOnlyTimeMs,
			TotalDelayMs:     turn.TotalDelayMs,
			PromptTokens:     turn.PromptTokens,
			CompletionTokens: turn.CompletionTokens,
			Temperature:      turn.Temperature,
			TopP:             turn.TopP,
			EstimatedCostUsd: turn.EstimatedCostUsd.String(),
			Failed:           turn.Failed,
		}
	})

	c.JSON(http.StatusOK, gin.H{
		"key":        conversation.Key,
		"title":      conversation.Title,
		"created_at": conversation.CreatedAt,
		"turns":      turns,
	})
}

func (api *Api) exportConversation(c *gin.Context) {
	key := c.Param("key")

	blobKey, err := export.Conversation(c.Request.Context(), api.deps, key)
	if err != nil {
		api.deps.Logger.With(logger.ERROR, err).Error("exporting conversation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export conversation"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"blob_key": blobKey})
}

type benchmarkPayload struct {
	Strategy string  `json:"strategy" binding:"required"`
	Seconds  float64 `json:"seconds" binding:"required"`
}

func (api *Api) benchmark(c *gin.Context) {
	var payload benchmarkPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	strategy, err := delay.ParseStrategy(payload.Strategy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if payload.Seconds < minDelaySeconds || payload.Seconds > maxDelaySeconds {
		c.JSON(http.StatusBadRequest, gin.H{"error": errBadSeconds.Error()})
		return
	}

	outcome := api.deps.Engine.Run(c.Request.Context(), delay.Request{
		Strategy: strategy,
		Target:   time.Duration(payload.Seconds * float64(time.Second)),
	})

	response := gin.H{
		"strategy":          strategy.String(),
		"label":             strategy.Label(),
		"requested_seconds": outcome.Requested.Seconds(),
		"actual_seconds":    outcome.Actual.Seconds(),
	}
	if outcome.Actual > 0 {
		accuracy := outcome.Requested.Seconds() / outcome.Actual.Seconds() * 100
		accuracy = math.Round(accuracy*10) / 10
		response["accuracy_pct"] = accuracy
		switch {
		case accuracy < accuracyWarnBelowPct:
			response["verdict"] = "low accuracy, the host may be under load"
		case accuracy > accuracyGreatPct:
			response["verdict"] = "very accurate"
		default:
			response["verdict"] = "accurate"
		}
	}
	if outcome.Err != nil {
		response["error"] = outcome.Err.Error()
	}
	c.JSON(http.StatusOK, response)
}
