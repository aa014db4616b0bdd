package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/EPecherkin/sloth-chat/config"
	"github.com/EPecherkin/sloth-chat/llm/base"
	"github.com/EPecherkin/sloth-chat/logger"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkg/errors"
)

const defaultModel = "gpt-4o-mini"

type Client struct {
	oClient *openai.Client
	lgr     *slog.Logger
}

func CreateClient(lgr *slog.Logger) (base.Client, error) {
	lgr = lgr.With(logger.CALLER, "openai client")
	lgr.Debug("Creating openai client")
	oClient := openai.NewClient(option.WithAPIKey(config.OpenAiApiKey()))
	return &Client{oClient: &oClient, lgr: lgr}, nil
}

func (client *Client) Complete(ctx context.Context, request base.Request) (*base.Response, error) {
	model := request.Model
	if model == "" {
		model = defaultModel
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(request.History)+2)
	messages = append(messages, openai.SystemMessage(request.SystemPrompt))
	for _, message := range request.History {
		switch message.Role {
		case base.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(message.Text))
		default:
			messages = append(messages, openai.UserMessage(message.Text))
		}
	}
	messages = append(messages, openai.UserMessage(request.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(request.Temperature),
		TopP:        openai.Float(request.TopP),
	}
	if request.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxTokens))
	}

	completion, err := client.oClient.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("requesting chat completion: %w", errors.WithStack(err))
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	return &base.Response{
		Text:         completion.Choices[0].Message.Content,
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
	}, nil
}
