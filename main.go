package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/EPecherkin/sloth-chat/api"
	"github.com/EPecherkin/sloth-chat/chatter"
	"github.com/EPecherkin/sloth-chat/config"
	"github.com/EPecherkin/sloth-chat/db"
	"github.com/EPecherkin/sloth-chat/delay"
	"github.com/EPecherkin/sloth-chat/deps"
	"github.com/EPecherkin/sloth-chat/llm"
	"github.com/EPecherkin/sloth-chat/logger"
	"github.com/EPecherkin/sloth-chat/server"
	"github.com/EPecherkin/sloth-chat/telegram"
	"github.com/EPecherkin/sloth-chat/telemetry"
)

func main() {
	defer func() {
		if err := recover(); err != nil {
			fmt.Printf("{\"error\": \"panic in main: %v\"}\n", err)
			os.Exit(1)
		}
	}()

	lgr := logger.NewLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, cleanup, err := initialize(ctx, lgr)
	if err != nil {
		lgr.With(logger.ERROR, err).Error("Initialization failed")
		os.Exit(1)
	}
	defer cleanup()

	mode := "api"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}
	lgr.With("mode", mode).Info("running")

	chat := chatter.NewChatter(d)

	switch mode {
	case "api":
		router := server.NewRouter(api.NewApi(chat, d), d.Logger)
		if err := server.Run(ctx, router, config.ApiPort(), d.Logger); err != nil {
			d.Logger.With(logger.ERROR, err).Error("server failed")
			os.Exit(1)
		}
	case "telegram":
		bot, err := telegram.CreateBot(chat, d)
		if err != nil {
			d.Logger.With(logger.ERROR, err).Error("creating telegram bot failed")
			os.Exit(1)
		}
		if err := bot.Run(ctx); err != nil {
			d.Logger.With(logger.ERROR, err).Error("telegram bot failed")
			os.Exit(1)
		}
	default:
		fmt.Println("unknown mode: " + mode)
		os.Exit(1)
	}
}

func initialize(ctx context.Context, lgr *slog.Logger) (deps.Deps, func(), error) {
	noop := func() {}

	if err := config.Init(); err != nil {
		return deps.Deps{}, noop, fmt.Errorf("initializing config: %w", err)
	}

	dbc, err := db.NewConnection(config.DatabasePath())
	if err != nil {
		return deps.Deps{}, noop, fmt.Errorf("initializing database: %w", err)
	}

	llmClient, err := llm.CreateClient(ctx, lgr)
	if err != nil {
		return deps.Deps{}, noop, fmt.Errorf("initializing llm client: %w", err)
	}

	sink, shutdownTracing, err := telemetry.CreateOtelSink(config.AppName(), lgr)
	if err != nil {
		return deps.Deps{}, noop, fmt.Errorf("initializing telemetry: %w", err)
	}
	queue := telemetry.NewQueue(sink, telemetry.DefaultQueueSize, lgr)

	cleanup := func() {
		queue.Close()
		shutdownTracing()
	}

	return deps.Deps{
		Logger: lgr,
		DBC:    dbc,
		LLMC:   llmClient,
		Sink:   queue,
		Engine: delay.NewEngine(lgr),
	}, cleanup, nil
}
