package google

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/EPecherkin/sloth-chat/config"
	"github.com/EPecherkin/sloth-chat/llm/base"
	"github.com/EPecherkin/sloth-chat/logger"
	"github.com/pkg/errors"
	"google.golang.org/genai"
)

const defaultModel = "gemini-1.5-flash"

type Client struct {
	gClient *genai.Client
	lgr     *slog.Logger
}

func CreateClient(ctx context.Context, lgr *slog.Logger) (base.Client, error) {
	lgr = lgr.With(logger.CALLER, "gemini client")
	lgr.Debug("Creating gemini client")

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: config.GeminiApiKey(), Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", errors.WithStack(err))
	}
	return &Client{gClient: gClient, lgr: lgr}, nil
}

func (client *Client) Complete(ctx context.Context, request base.Request) (*base.Response, error) {
	model := request.Model
	if model == "" {
		model = defaultModel
	}

	temperature := float32(request.Temperature)
	topP := float32(request.TopP)
	genConfig := &genai.GenerateContentConfig{
		Temperature: &temperature,
		TopP:        &topP,
	}
	if request.SystemPrompt != "" {
		genConfig.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: request.SystemPrompt}}}
	}
	if request.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(request.MaxTokens)
	}

	result, err := client.gClient.Models.GenerateContent(ctx, model, requestContents(request), genConfig)
	if err != nil {
		return nil, fmt.Errorf("generating content: %w", errors.WithStack(err))
	}

	response := &base.Response{Text: result.Text()}
	if result.UsageMetadata != nil {
		response.InputTokens = int(result.UsageMetadata.PromptTokenCount)
		response.OutputTokens = int(result.UsageMetadata.CandidatesTokenCount)
	}
	return response, nil
}

// requestContents lays out the history oldest first with the current prompt
// last, mapping assistant messages to the model role.
func requestContents(request base.Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(request.History)+1)
	for _, message := range request.History {
		var role genai.Role = genai.RoleUser
		if message.Role == base.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(message.Text, role))
	}
	return append(contents, genai.NewContentFromText(request.Prompt, genai.RoleUser))
}
