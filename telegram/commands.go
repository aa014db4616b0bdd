package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/EPecherkin/sloth-chat/chatter"
	"github.com/EPecherkin/sloth-chat/delay"
	"github.com/EPecherkin/sloth-chat/prompts"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

const (
	minDelaySeconds = 0.5
	maxDelaySeconds = 10.0
)

func (bot *Bot) handleCommand(ctx context.Context, update tgbotapi.Update) error {
	message := update.Message
	var reply string

	switch message.Command() {
	case "start":
		reply = welcomeText()
	case "reset":
		bot.resetSession(message.Chat.ID)
		reply = "Started a new conversation."
	case "preset":
		reply = bot.handlePresetCommand(message)
	case "delay":
		reply = bot.handleDelayCommand(message)
	default:
		reply = "Unknown command. Try /start, /reset, /preset or /delay."
	}

	if _, err := bot.tgbot.Send(tgbotapi.NewMessage(message.Chat.ID, reply)); err != nil {
		return fmt.Errorf("sending command reply: %w", errors.WithStack(err))
	}
	return nil
}

func welcomeText() string {
	names := lo.Map(prompts.All(), func(preset prompts.Preset, _ int) string { return preset.Name })
	strategies := lo.Map(delay.Strategies(), func(strategy delay.Strategy, _ int) string { return strategy.String() })
	return "Hi! I am a demo chat assistant with configurable synthetic latency.\n" +
		"Presets: " + strings.Join(names, ", ") + " (switch with /preset <name>)\n" +
		"Delay strategies: " + strings.Join(strategies, ", ") + "\n" +
		"Configure with /delay <strategy> <seconds> [before|after|both], disable with /delay off."
}

func (bot *Bot) handlePresetCommand(message *tgbotapi.Message) string {
	name := strings.TrimSpace(message.CommandArguments())
	if name == "" {
		return "Usage: /preset <name>"
	}
	preset, ok := prompts.Find(name)
	if !ok {
		return "Unknown preset: " + name
	}
	session := bot.sessionFor(message.Chat.ID)
	session.SetPreset(preset)
	return fmt.Sprintf("Switched to %q (%s).", preset.Name, preset.Description)
}

func (bot *Bot) handleDelayCommand(message *tgbotapi.Message) string {
	session := bot.sessionFor(message.Chat.ID)
	args := strings.Fields(message.CommandArguments())

	if len(args) == 1 && args[0] == "off" {
		settings := session.Delay()
		settings.Enabled = false
		session.SetDelay(settings)
		return "Delay disabled."
	}
	if len(args) < 2 {
		return "Usage: /delay <strategy> <seconds> [before|after|both], or /delay off"
	}

	strategy, err := delay.ParseStrategy(args[0])
	if err != nil {
		return "Unknown strategy: " + args[0]
	}
	seconds, err := strconv.ParseFloat(args[1], 64)
	if err != nil || seconds < minDelaySeconds || seconds > maxDelaySeconds {
		return fmt.Sprintf("Seconds must be a number within [%.1f, %.1f].", minDelaySeconds, maxDelaySeconds)
	}

	stage := "before"
	if len(args) > 2 {
		stage = args[2]
	}
	settings := chatter.DelaySettings{
		Enabled:  true,
		Strategy: strategy,
		Target:   time.Duration(seconds * float64(time.Second)),
	}
	switch stage {
	case "before":
		settings.BeforeLlm = true
	case "after":
		settings.AfterLlm = true
	case "both":
		settings.BeforeLlm = true
		settings.AfterLlm = true
	default:
		return "Stage must be one of: before, after, both."
	}

	session.SetDelay(settings)
	return fmt.Sprintf("Delay set: %s for %.1fs (%s the llm call).", strategy.Label(), seconds, stage)
}
