package chatter

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/EPecherkin/sloth-chat/db"
	"github.com/EPecherkin/sloth-chat/delay"
	"github.com/EPecherkin/sloth-chat/deps"
	"github.com/EPecherkin/sloth-chat/llm"
	"github.com/EPecherkin/sloth-chat/logger"
	"github.com/EPecherkin/sloth-chat/prompts"
	"github.com/EPecherkin/sloth-chat/telemetry"
	"github.com/pkg/errors"
)

type fakeClient struct {
	latency  time.Duration
	err      error
	response llm.Response

	mu       sync.Mutex
	requests []llm.Request
}

func (client *fakeClient) Complete(_ context.Context, request llm.Request) (*llm.Response, error) {
	client.mu.Lock()
	client.requests = append(client.requests, request)
	client.mu.Unlock()

	time.Sleep(client.latency)
	if client.err != nil {
		return nil, client.err
	}
	response := client.response
	return &response, nil
}

type captureSink struct {
	mu      sync.Mutex
	records []telemetry.Record
}

func (sink *captureSink) Record(_ context.Context, record telemetry.Record) {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.records = append(sink.records, record)
}

func testChatter(t *testing.T, client llm.Client, sink telemetry.Sink) *Chatter {
	t.Helper()
	lgr := logger.NewLogger()
	dbc, err := db.NewConnection(filepath.Join(t.TempDir(), "test.sqlite3"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	return NewChatter(deps.Deps{
		Logger: lgr,
		DBC:    dbc,
		LLMC:   client,
		Sink:   sink,
		Engine: delay.NewEngine(lgr),
	})
}

func TestHandleTurnWithPreDelay(t *testing.T) {
	client := &fakeClient{
		latency:  100 * time.Millisecond,
		response: llm.Response{Text: "hello there", InputTokens: 10, OutputTokens: 5},
	}
	sink := &captureSink{}
	chatter := testChatter(t, client, sink)

	session := NewSession(prompts.Default(), DelaySettings{
		Enabled:   true,
		Strategy:  delay.StrategySleep,
		Target:    200 * time.Millisecond,
		BeforeLlm: true,
	})

	result, err := chatter.HandleTurn(context.Background(), session, "hi")
	if err != nil {
		t.Fatalf("HandleTurn returned error: %v", err)
	}
	if result.Response.Text != "hello there" {
		t.Errorf("response text = %q", result.Response.Text)
	}

	if len(client.requests) != 1 {
		t.Fatalf("llm client called %d times, want 1", len(client.requests))
	}
	request := client.requests[0]
	preset := session.Preset()
	if request.Temperature != preset.Temperature || request.TopP != preset.TopP {
		t.Error("sampling parameters not taken from the preset")
	}
	if request.SystemPrompt != preset.Combined() {
		t.Error("system prompt not taken from the preset")
	}

	if len(sink.records) != 1 {
		t.Fatalf("sink received %d records, want 1", len(sink.records))
	}
	record := sink.records[0]
	if record.Failed {
		t.Error("record flagged failed for a successful turn")
	}
	if record.PreDelayMs < 180 {
		t.Errorf("pre delay = %dms, want ~200ms", record.PreDelayMs)
	}
	if record.PostDelayMs != 0 {
		t.Errorf("post delay = %dms, want 0", record.PostDelayMs)
	}
	if record.LlmOnlyTimeMs < 90 {
		t.Errorf("llm-only time = %dms, want ~100ms", record.LlmOnlyTimeMs)
	}
	if record.ResponseTimeMs < record.LlmOnlyTimeMs+record.TotalDelayMs {
		t.Errorf("response time %dms below llm %dms + delay %dms", record.ResponseTimeMs, record.LlmOnlyTimeMs, record.TotalDelayMs)
	}
	if record.TotalTokens != 15 {
		t.Errorf("total tokens = %d, want 15", record.TotalTokens)
	}

	var turn db.Turn
	if err := chatter.deps.DBC.First(&turn, "key = ?", result.TurnID).Error; err != nil {
		t.Fatalf("loading saved turn: %v", err)
	}
	if turn.Response != "hello there" || turn.Failed || turn.Seq != 1 {
		t.Errorf("saved turn = %+v", turn)
	}
}

func TestHandleTurnPropagatesCallError(t *testing.T) {
	callErr := errors.New("model endpoint is down")
	client := &fakeClient{err: callErr}
	sink := &captureSink{}
	chatter := testChatter(t, client, sink)

	session := NewSession(prompts.Default(), DelaySettings{})

	result, err := chatter.HandleTurn(context.Background(), session, "hi")
	if !errors.Is(err, callErr) {
		t.Fatalf("HandleTurn error = %v, want the call's error", err)
	}
	if result != nil {
		t.Error("no result expected for a failed turn")
	}

	if len(sink.records) != 1 {
		t.Fatalf("sink received %d records, want 1", len(sink.records))
	}
	if !sink.records[0].Failed {
		t.Error("record for a failed turn must be flagged failed")
	}

	var turn db.Turn
	if err := chatter.deps.DBC.First(&turn, "failed = ?", true).Error; err != nil {
		t.Fatalf("loading saved turn: %v", err)
	}
	if turn.Response != "" {
		t.Error("no assistant message should be recorded for a failed turn")
	}
}

func TestHandleTurnRejectsEmptyMessage(t *testing.T) {
	client := &fakeClient{}
	sink := &captureSink{}
	chatter := testChatter(t, client, sink)

	session := NewSession(prompts.Default(), DelaySettings{})
	if _, err := chatter.HandleTurn(context.Background(), session, "  \n"); err == nil {
		t.Fatal("expected error for empty message")
	}
	if len(client.requests) != 0 {
		t.Error("llm should not be called for an empty message")
	}
	if len(sink.records) != 0 {
		t.Error("no telemetry should be emitted for a rejected message")
	}
}

func TestHandleTurnCarriesHistory(t *testing.T) {
	client := &fakeClient{response: llm.Response{Text: "the answer"}}
	sink := &captureSink{}
	chatter := testChatter(t, client, sink)

	session := NewSession(prompts.Default(), DelaySettings{})
	if _, err := chatter.HandleTurn(context.Background(), session, "first question"); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	if _, err := chatter.HandleTurn(context.Background(), session, "second question"); err != nil {
		t.Fatalf("second turn: %v", err)
	}

	if len(client.requests) != 2 {
		t.Fatalf("llm client called %d times, want 2", len(client.requests))
	}
	if len(client.requests[0].History) != 0 {
		t.Errorf("first request carried %d history messages, want 0", len(client.requests[0].History))
	}
	history := client.requests[1].History
	if len(history) != 2 {
		t.Fatalf("second request carried %d history messages, want 2", len(history))
	}
	if history[0].Role != llm.RoleUser || history[0].Text != "first question" {
		t.Errorf("history[0] = %+v", history[0])
	}
	if history[1].Role != llm.RoleAssistant || history[1].Text != "the answer" {
		t.Errorf("history[1] = %+v", history[1])
	}
}

// Turns on one session must serialize: no races on the history or turn
// counter, no duplicate conversation rows from overlapping writes.
func TestHandleTurnConcurrentSameSession(t *testing.T) {
	const turns = 8

	client := &fakeClient{latency: 10 * time.Millisecond, response: llm.Response{Text: "ok"}}
	sink := &captureSink{}
	chatter := testChatter(t, client, sink)
	session := NewSession(prompts.Default(), DelaySettings{})

	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := chatter.HandleTurn(context.Background(), session, "same conversation"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent turn failed: %v", err)
	}

	var conversations []db.Conversation
	if err := chatter.deps.DBC.Find(&conversations).Error; err != nil {
		t.Fatalf("loading conversations: %v", err)
	}
	if len(conversations) != 1 {
		t.Fatalf("got %d conversations, want 1", len(conversations))
	}

	var turnsSaved []db.Turn
	if err := chatter.deps.DBC.Order("seq").Find(&turnsSaved).Error; err != nil {
		t.Fatalf("loading turns: %v", err)
	}
	if len(turnsSaved) != turns {
		t.Fatalf("got %d turns, want %d", len(turnsSaved), turns)
	}
	for i, turn := range turnsSaved {
		if turn.Seq != i+1 {
			t.Errorf("turn %d has seq %d", i, turn.Seq)
		}
	}

	if got := len(client.requests[turns-1].History); got != (turns-1)*2 {
		t.Errorf("last request carried %d history messages, want %d", got, (turns-1)*2)
	}
}

func TestHandleTurnSequencesTurns(t *testing.T) {
	client := &fakeClient{response: llm.Response{Text: "ok"}}
	sink := &captureSink{}
	chatter := testChatter(t, client, sink)

	session := NewSession(prompts.Default(), DelaySettings{})
	for i := 0; i < 3; i++ {
		if _, err := chatter.HandleTurn(context.Background(), session, "again"); err != nil {
			t.Fatalf("turn %d: %v", i, err)
		}
	}

	var conversations []db.Conversation
	if err := chatter.deps.DBC.Find(&conversations).Error; err != nil {
		t.Fatalf("loading conversations: %v", err)
	}
	if len(conversations) != 1 {
		t.Fatalf("got %d conversations, want 1", len(conversations))
	}

	var turns []db.Turn
	if err := chatter.deps.DBC.Order("seq").Find(&turns).Error; err != nil {
		t.Fatalf("loading turns: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("got %d turns, want 3", len(turns))
	}
	for i, turn := range turns {
		if turn.Seq != i+1 {
			t.Errorf("turn %d has seq %d", i, turn.Seq)
		}
		if turn.ConversationID != conversations[0].ID {
			t.Errorf("turn %d not linked to the conversation", i)
		}
	}
}
