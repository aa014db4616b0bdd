package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/EPecherkin/sloth-chat/chatter"
	"github.com/EPecherkin/sloth-chat/db"
	"github.com/EPecherkin/sloth-chat/delay"
	"github.com/EPecherkin/sloth-chat/deps"
	"github.com/EPecherkin/sloth-chat/llm"
	"github.com/EPecherkin/sloth-chat/logger"
	"github.com/EPecherkin/sloth-chat/timing"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

type fakeHandler struct {
	result *chatter.TurnResult
	err    error

	sessions []*chatter.Session
	texts    []string
}

func (handler *fakeHandler) HandleTurn(_ context.Context, session *chatter.Session, userText string) (*chatter.TurnResult, error) {
	handler.sessions = append(handler.sessions, session)
	handler.texts = append(handler.texts, userText)
	if handler.err != nil {
		return nil, handler.err
	}
	return handler.result, nil
}

func successResult() *chatter.TurnResult {
	return &chatter.TurnResult{
		TurnID:   "turn-1",
		Response: &llm.Response{Text: "pong", InputTokens: 5, OutputTokens: 7},
		Breakdown: timing.Breakdown{
			CallOnly: 400 * time.Millisecond,
			Total:    400 * time.Millisecond,
		},
	}
}

func testRouter(t *testing.T, handler TurnHandler, d deps.Deps) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if d.Logger == nil {
		d.Logger = logger.NewLogger()
	}
	router := gin.New()
	NewApi(handler, d).Register(router)
	return router
}

func postJSON(t *testing.T, router *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshaling request: %v", err)
	}
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	request.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, request)
	return recorder
}

func decode(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response %q: %v", recorder.Body.String(), err)
	}
	return body
}

func TestChat(t *testing.T) {
	handler := &fakeHandler{result: successResult()}
	router := testRouter(t, handler, deps.Deps{})

	recorder := postJSON(t, router, "/api/chat", gin.H{
		"prompt": "hello",
		"delay": gin.H{
			"enabled":    true,
			"strategy":   "sleep",
			"seconds":    1.0,
			"before_llm": true,
		},
	})

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	body := decode(t, recorder)
	if body["response"] != "pong" {
		t.Errorf("response = %v", body["response"])
	}
	if body["conversation_id"] == "" {
		t.Error("conversation_id missing")
	}
	timingBody, ok := body["timing"].(map[string]any)
	if !ok {
		t.Fatalf("timing missing in %v", body)
	}
	if timingBody["response_time_ms"].(float64) != 400 {
		t.Errorf("response_time_ms = %v", timingBody["response_time_ms"])
	}
	if timingBody["efficiency_pct"].(float64) != 100 {
		t.Errorf("efficiency_pct = %v", timingBody["efficiency_pct"])
	}

	if len(handler.sessions) != 1 {
		t.Fatalf("handler called %d times", len(handler.sessions))
	}
	settings := handler.sessions[0].Delay()
	if !settings.Enabled || settings.Strategy != delay.StrategySleep || settings.Target != time.Second {
		t.Errorf("delay settings not applied: %+v", settings)
	}
}

func TestChatReusesSession(t *testing.T) {
	handler := &fakeHandler{result: successResult()}
	router := testRouter(t, handler, deps.Deps{})

	first := decode(t, postJSON(t, router, "/api/chat", gin.H{"prompt": "one"}))
	conversationID := first["conversation_id"].(string)

	postJSON(t, router, "/api/chat", gin.H{"prompt": "two", "conversation_id": conversationID})

	if len(handler.sessions) != 2 {
		t.Fatalf("handler called %d times", len(handler.sessions))
	}
	if handler.sessions[0] != handler.sessions[1] {
		t.Error("same conversation_id should reuse the session")
	}
}

// An id the server does not know, e.g. after a restart, keeps serving under
// the client's id instead of silently starting a renamed conversation.
func TestChatKeepsUnknownConversationID(t *testing.T) {
	handler := &fakeHandler{result: successResult()}
	router := testRouter(t, handler, deps.Deps{})

	body := decode(t, postJSON(t, router, "/api/chat", gin.H{"prompt": "hello", "conversation_id": "conv-from-before"}))
	if body["conversation_id"] != "conv-from-before" {
		t.Errorf("conversation_id = %v, want the client's id", body["conversation_id"])
	}

	postJSON(t, router, "/api/chat", gin.H{"prompt": "again", "conversation_id": "conv-from-before"})
	if len(handler.sessions) != 2 || handler.sessions[0] != handler.sessions[1] {
		t.Error("follow-up turn should reuse the recreated session")
	}
}

func TestChatValidation(t *testing.T) {
	tests := []struct {
		name    string
		payload gin.H
	}{
		{name: "missing prompt", payload: gin.H{}},
		{name: "unknown preset", payload: gin.H{"prompt": "x", "preset": "pirate"}},
		{name: "unknown strategy", payload: gin.H{"prompt": "x", "delay": gin.H{"enabled": true, "strategy": "nap", "seconds": 1.0}}},
		{name: "seconds too large", payload: gin.H{"prompt": "x", "delay": gin.H{"enabled": true, "strategy": "sleep", "seconds": 60.0}}},
		{name: "seconds too small", payload: gin.H{"prompt": "x", "delay": gin.H{"enabled": true, "strategy": "sleep", "seconds": 0.1}}},
	}

	handler := &fakeHandler{result: successResult()}
	router := testRouter(t, handler, deps.Deps{})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := postJSON(t, router, "/api/chat", tt.payload)
			if recorder.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", recorder.Code)
			}
		})
	}
	if len(handler.sessions) != 0 {
		t.Errorf("handler should not be called on validation failures, got %d calls", len(handler.sessions))
	}
}

func TestChatCallFailure(t *testing.T) {
	handler := &fakeHandler{err: errors.New("model endpoint is down")}
	router := testRouter(t, handler, deps.Deps{})

	recorder := postJSON(t, router, "/api/chat", gin.H{"prompt": "hello"})
	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", recorder.Code)
	}
}

func TestStrategiesEndpoint(t *testing.T) {
	router := testRouter(t, &fakeHandler{}, deps.Deps{})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/strategies", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	body := decode(t, recorder)
	strategies := body["strategies"].([]any)
	if len(strategies) != 6 {
		t.Errorf("got %d strategies, want 6", len(strategies))
	}
}

func TestPresetsEndpoint(t *testing.T) {
	router := testRouter(t, &fakeHandler{}, deps.Deps{})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/presets", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	body := decode(t, recorder)
	if presets := body["presets"].([]any); len(presets) < 4 {
		t.Errorf("got %d presets, want at least 4", len(presets))
	}
}

func TestBenchmark(t *testing.T) {
	lgr := logger.NewLogger()
	router := testRouter(t, &fakeHandler{}, deps.Deps{Logger: lgr, Engine: delay.NewEngine(lgr)})

	recorder := postJSON(t, router, "/api/delay/benchmark", gin.H{"strategy": "sleep", "seconds": 0.5})
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	body := decode(t, recorder)
	actual := body["actual_seconds"].(float64)
	if actual < 0.45 || actual > 0.7 {
		t.Errorf("actual_seconds = %f, want ~0.5", actual)
	}
	if _, ok := body["accuracy_pct"]; !ok {
		t.Error("accuracy_pct missing")
	}
	if _, ok := body["verdict"]; !ok {
		t.Error("verdict missing")
	}

	recorder = postJSON(t, router, "/api/delay/benchmark", gin.H{"strategy": "nap", "seconds": 1.0})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("status for unknown strategy = %d, want 400", recorder.Code)
	}
}

func TestConversationEndpoint(t *testing.T) {
	dbc, err := db.NewConnection(filepath.Join(t.TempDir(), "test.sqlite3"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	conversation := db.Conversation{Key: "conv-1", Title: "hello"}
	if err := dbc.Create(&conversation).Error; err != nil {
		t.Fatalf("seeding conversation: %v", err)
	}
	turn := db.Turn{ConversationID: conversation.ID, Key: "turn-1", Seq: 1, Prompt: "hi", Response: "hello there"}
	if err := dbc.Create(&turn).Error; err != nil {
		t.Fatalf("seeding turn: %v", err)
	}

	router := testRouter(t, &fakeHandler{}, deps.Deps{DBC: dbc})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/conversations/conv-1", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	body := decode(t, recorder)
	if body["title"] != "hello" {
		t.Errorf("title = %v", body["title"])
	}
	if turns := body["turns"].([]any); len(turns) != 1 {
		t.Errorf("got %d turns, want 1", len(turns))
	}

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/conversations/nope", nil))
	if recorder.Code != http.StatusNotFound {
		t.Errorf("status for missing conversation = %d, want 404", recorder.Code)
	}
}
