package telegram

import (
	"context"
	"fmt"
	"sync"

	"github.com/EPecherkin/sloth-chat/chatter"
	"github.com/EPecherkin/sloth-chat/config"
	"github.com/EPecherkin/sloth-chat/deps"
	"github.com/EPecherkin/sloth-chat/logger"
	"github.com/EPecherkin/sloth-chat/prompts"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

const updateTimeout = 60

// Bot is the telegram frontend: one session per telegram chat, with commands
// to switch persona and delay settings.
type Bot struct {
	tgbot   *tgbotapi.BotAPI
	chatter *chatter.Chatter
	deps    deps.Deps

	mu       sync.Mutex
	sessions map[int64]*chatter.Session
}

func CreateBot(chat *chatter.Chatter, d deps.Deps) (*Bot, error) {
	d.Logger = d.Logger.With(logger.CALLER, "telegram bot")
	d.Logger.Debug("Creating telegram bot")

	token := config.TelegramToken()
	if token == "" {
		return nil, errors.New("TELEGRAM_TOKEN is missing")
	}
	tgbot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot client: %w", errors.WithStack(err))
	}
	d.Logger.With(logger.USER, tgbot.Self.UserName).Info("Authorized on account")

	return &Bot{tgbot: tgbot, chatter: chat, deps: d, sessions: make(map[int64]*chatter.Session)}, nil
}

func (bot *Bot) Run(ctx context.Context) error {
	bot.deps.Logger.With("timeout", updateTimeout).Info("listening for updates")

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = updateTimeout
	updates := bot.tgbot.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			bot.tgbot.StopReceivingUpdates()
			bot.deps.Logger.Info("update wait interrupted")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go bot.goHandleUpdate(ctx, update)
		}
	}
}

func (bot *Bot) goHandleUpdate(ctx context.Context, update tgbotapi.Update) {
	lgr := bot.deps.Logger.With(logger.UPDATE, update.UpdateID).With(logger.MESSAGE, update.Message.MessageID)
	defer func() {
		if err := recover(); err != nil {
			lgr.With(logger.ERROR, err).Error("panic handling update")
		}
	}()

	if update.Message.IsCommand() {
		lgr.Debug("handling command")
		if err := bot.handleCommand(ctx, update); err != nil {
			lgr.With(logger.ERROR, err).Error("failed to handle command")
		}
		return
	}

	lgr.Debug("handling message")
	if err := bot.handleMessage(ctx, update); err != nil {
		lgr.With(logger.ERROR, err).Error("failed to handle message")
	}
}

func (bot *Bot) sessionFor(chatID int64) *chatter.Session {
	bot.mu.Lock()
	defer bot.mu.Unlock()

	session, ok := bot.sessions[chatID]
	if !ok {
		delaySettings, err := chatter.DelaySettingsFromConfig()
		if err != nil {
			bot.deps.Logger.With(logger.ERROR, err).Warn("bad delay defaults, starting without delay")
			delaySettings = chatter.DelaySettings{}
		}
		session = chatter.NewSession(prompts.Default(), delaySettings)
		bot.sessions[chatID] = session
	}
	return session
}

func (bot *Bot) resetSession(chatID int64) {
	bot.mu.Lock()
	defer bot.mu.Unlock()
	delete(bot.sessions, chatID)
}

func (bot *Bot) handleMessage(ctx context.Context, update tgbotapi.Update) error {
	message := update.Message
	session := bot.sessionFor(message.Chat.ID)

	result, err := bot.chatter.HandleTurn(ctx, session, message.Text)
	if err != nil {
		reply := tgbotapi.NewMessage(message.Chat.ID, "Sorry, something went wrong with that one.")
		if _, sendErr := bot.tgbot.Send(reply); sendErr != nil {
			return fmt.Errorf("sending failure reply: %w", errors.WithStack(sendErr))
		}
		return fmt.Errorf("handling turn: %w", err)
	}

	text := result.Response.Text
	if session.Delay().Enabled {
		text += "\n\n" + timingSummary(result)
	}
	reply := tgbotapi.NewMessage(message.Chat.ID, text)
	if _, err := bot.tgbot.Send(reply); err != nil {
		return fmt.Errorf("sending reply: %w", errors.WithStack(err))
	}
	return nil
}

func timingSummary(result *chatter.TurnResult) string {
	summary := fmt.Sprintf("total %dms | llm %dms | delay %dms",
		result.Record.ResponseTimeMs, result.Record.LlmOnlyTimeMs, result.Record.TotalDelayMs)
	if ratio, ok := result.Breakdown.Efficiency(); ok {
		summary += fmt.Sprintf(" | efficiency %.1f%%", ratio*100)
	}
	return summary
}
