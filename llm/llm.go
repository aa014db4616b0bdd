package llm

import (
	"context"
	"log/slog"

	"github.com/EPecherkin/sloth-chat/config"
	"github.com/EPecherkin/sloth-chat/llm/base"
	"github.com/EPecherkin/sloth-chat/llm/google"
	"github.com/EPecherkin/sloth-chat/llm/openai"
	"github.com/pkg/errors"
)

type Message = base.Message
type Request = base.Request
type Response = base.Response
type Client = base.Client

const RoleUser = base.RoleUser
const RoleAssistant = base.RoleAssistant

// CreateClient builds the inference client for the configured provider.
func CreateClient(ctx context.Context, lgr *slog.Logger) (Client, error) {
	switch config.LlmProvider() {
	case config.ProviderOpenAi:
		return openai.CreateClient(lgr)
	case config.ProviderGemini:
		return google.CreateClient(ctx, lgr)
	}
	return nil, errors.Errorf("unknown LLM provider %q", config.LlmProvider())
}
