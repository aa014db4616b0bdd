package chatter

import (
	"fmt"
	"time"

	"github.com/EPecherkin/sloth-chat/config"
	"github.com/EPecherkin/sloth-chat/delay"
)

// DelaySettings is the injection configuration for a session: which strategy,
// how long, and at which points around the LLM call.
type DelaySettings struct {
	Enabled   bool
	Strategy  delay.Strategy
	Target    time.Duration
	BeforeLlm bool
	AfterLlm  bool
}

func DelaySettingsFromConfig() (DelaySettings, error) {
	strategy, err := delay.ParseStrategy(config.DelayStrategy())
	if err != nil {
		return DelaySettings{}, fmt.Errorf("parsing DELAY_STRATEGY: %w", err)
	}
	return DelaySettings{
		Enabled:   config.DelayEnabled(),
		Strategy:  strategy,
		Target:    time.Duration(config.DelaySeconds() * float64(time.Second)),
		BeforeLlm: config.DelayBeforeLlm(),
		AfterLlm:  config.DelayAfterLlm(),
	}, nil
}

func (settings DelaySettings) preRequest() *delay.Request {
	if !settings.Enabled || !settings.BeforeLlm {
		return nil
	}
	return &delay.Request{Strategy: settings.Strategy, Target: settings.Target}
}

func (settings DelaySettings) postRequest() *delay.Request {
	if !settings.Enabled || !settings.AfterLlm {
		return nil
	}
	return &delay.Request{Strategy: settings.Strategy, Target: settings.Target}
}
