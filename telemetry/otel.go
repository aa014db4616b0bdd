package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/EPecherkin/sloth-chat/logger"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// OtelSink emits each turn record as a span with flat attributes. The batch
// span processor exports asynchronously, so Record returns immediately.
type OtelSink struct {
	tracer trace.Tracer
	lgr    *slog.Logger
}

// CreateOtelSink wires a tracer provider with a stdout exporter and returns
// the sink plus a shutdown func that flushes pending spans.
func CreateOtelSink(serviceName string, lgr *slog.Logger) (*OtelSink, func(), error) {
	lgr = lgr.With(logger.CALLER, "otel sink")

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, fmt.Errorf("creating stdout trace exporter: %w", errors.WithStack(err))
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			"",
			attribute.String("service.name", serviceName),
		)),
	)
	otel.SetTracerProvider(provider)

	shutdown := func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			lgr.With(logger.ERROR, errors.WithStack(err)).Warn("shutting down tracer provider")
		}
	}
	return &OtelSink{tracer: otel.Tracer(serviceName), lgr: lgr}, shutdown, nil
}

func (sink *OtelSink) Record(ctx context.Context, record Record) {
	_, span := sink.tracer.Start(ctx, "chat.turn")
	span.SetAttributes(
		attribute.String("conversation.id", record.ConversationID),
		attribute.String("turn.id", record.TurnID),
		attribute.String("model.id", record.Model),
		attribute.String("delay.strategy", record.DelayStrategy),
		attribute.Int64("response_time_ms", record.ResponseTimeMs),
		attribute.Int64("llm_only_time_ms", record.LlmOnlyTimeMs),
		attribute.Int64("total_delay_ms", record.TotalDelayMs),
		attribute.Int64("before_llm_delay_ms", record.PreDelayMs),
		attribute.Int64("after_llm_delay_ms", record.PostDelayMs),
		attribute.Int("prompt_tokens", record.PromptTokens),
		attribute.Int("completion_tokens", record.CompletionTokens),
		attribute.Int("total_tokens", record.TotalTokens),
		attribute.Float64("temperature", record.Temperature),
		attribute.Float64("top_p", record.TopP),
		attribute.String("estimated_cost_usd", record.EstimatedCostUsd.String()),
		attribute.Bool("failed", record.Failed),
	)
	span.End()
}
