package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/EPecherkin/sloth-chat/chatter"
	"github.com/EPecherkin/sloth-chat/delay"
	"github.com/EPecherkin/sloth-chat/deps"
	"github.com/EPecherkin/sloth-chat/logger"
	"github.com/EPecherkin/sloth-chat/prompts"
	"github.com/gin-gonic/gin"
)

// Bounds for user-facing delay duration input.
const (
	minDelaySeconds = 0.5
	maxDelaySeconds = 10.0

	accuracyWarnBelowPct = 90.0
	accuracyGreatPct     = 98.0
)

// TurnHandler is what the API needs from the chatter.
type TurnHandler interface {
	HandleTurn(ctx context.Context, session *chatter.Session, userText string) (*chatter.TurnResult, error)
}

type Api struct {
	handler TurnHandler
	deps    deps.Deps

	mu       sync.Mutex
	sessions map[string]*chatter.Session
}

func NewApi(handler TurnHandler, d deps.Deps) *Api {
	d.Logger = d.Logger.With(logger.CALLER, "api")
	d.Logger.Debug("Creating api")
	return &Api{handler: handler, deps: d, sessions: make(map[string]*chatter.Session)}
}

func (api *Api) Register(router *gin.Engine) {
	router.GET("/healthz", api.health)

	group := router.Group("/api")
	group.POST("/chat", api.chat)
	group.GET("/presets", api.presets)
	group.GET("/strategies", api.strategies)
	group.GET("/conversations/:key", api.conversation)
	group.POST("/conversations/:key/export", api.exportConversation)
	group.POST("/delay/benchmark", api.benchmark)
}

func (api *Api) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type delayPayload struct {
	Enabled   bool    `json:"enabled"`
	Strategy  string  `json:"strategy"`
	Seconds   float64 `json:"seconds"`
	BeforeLlm bool    `json:"before_llm"`
	AfterLlm  bool    `json:"after_llm"`
}

func (payload delayPayload) settings() (chatter.DelaySettings, error) {
	settings := chatter.DelaySettings{
		Enabled:   payload.Enabled,
		BeforeLlm: payload.BeforeLlm,
		AfterLlm:  payload.AfterLlm,
	}
	if !payload.Enabled {
		return settings, nil
	}

	strategy, err := delay.ParseStrategy(payload.Strategy)
	if err != nil {
		return chatter.DelaySettings{}, err
	}
	settings.Strategy = strategy

	if payload.Seconds < minDelaySeconds || payload.Seconds > maxDelaySeconds {
		return chatter.DelaySettings{}, errBadSeconds
	}
	settings.Target = time.Duration(payload.Seconds * float64(time.Second))
	return settings, nil
}

func (api *Api) sessionFor(conversationID string, preset prompts.Preset, delaySettings chatter.DelaySettings) *chatter.Session {
	api.mu.Lock()
	defer api.mu.Unlock()

	if conversationID != "" {
		if session, ok := api.sessions[conversationID]; ok {
			return session
		}
	}
	session := chatter.NewSession(preset, delaySettings)
	if conversationID != "" {
		// Unknown id, e.g. after a restart. Keep the client's id so new
		// turns land on the same conversation key.
		session.ConversationID = conversationID
	}
	api.sessions[session.ConversationID] = session
	return session
}
