package gateway

import (
	"context"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/emberchat/emberchat/internal/model"
)

// AnthropicClient is the Anthropic provider.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(apiKey string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, &ConfigurationError{Reason: "Anthropic API key is required"}
	}

	return &AnthropicClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

// Name returns the provider name.
func (c *AnthropicClient) Name() string {
	return "anthropic"
}

// Models returns the models this provider serves.
func (c *AnthropicClient) Models() []ModelInfo {
	var out []ModelInfo
	for _, m := range registry {
		if m.Provider == "anthropic" {
			out = append(out, m)
		}
	}
	return out
}

func anthropicMessages(prior []model.HistoryItem, parts []model.Part) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(prior)+1)
	for _, item := range prior {
		role := anthropic.MessageParamRoleUser
		if item.Role == model.HistoryRoleModel {
			role = anthropic.MessageParamRoleAssistant
		}
		messages = append(messages, anthropic.MessageParam{
			Role: anthropic.F(role),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(historyText(item.Parts)),
				},
			}),
		})
	}
	if text := historyText(parts); text != "" {
		messages = append(messages, anthropic.MessageParam{
			Role: anthropic.F(anthropic.MessageParamRoleUser),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(text),
				},
			}),
		})
	}
	return messages
}

// requestOptions maps the sampling config onto the request. The
// thinking parameter is omitted for models that do not support it.
func requestOptions(modelName string, cfg SamplingConfig) []option.RequestOption {
	var opts []option.RequestOption
	if cfg.SystemInstruction != "" {
		opts = append(opts, option.WithJSONSet("system", cfg.SystemInstruction))
	}
	if cfg.ThinkingBudget > 0 && SupportsThinking(modelName) {
		opts = append(opts, option.WithJSONSet("thinking", map[string]any{
			"type":          "enabled",
			"budget_tokens": thinkingBudgetTokens[ClampThinkingBudget(cfg.ThinkingBudget)],
		}))
	}
	return opts
}

// StreamTurn opens one streaming chat turn.
func (c *AnthropicClient) StreamTurn(ctx context.Context, prior []model.HistoryItem, parts []model.Part, modelName string, cfg SamplingConfig, onDelta DeltaFunc) error {
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	stream := c.client.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(modelName),
		MaxTokens: anthropic.F(int64(maxTokens)),
		Messages:  anthropic.F(anthropicMessages(prior, parts)),
	}, requestOptions(modelName, cfg)...)

	for stream.Next() {
		event := stream.Current()
		if event.Type != anthropic.MessageStreamEventTypeContentBlockDelta {
			continue
		}
		delta, ok := event.Delta.(anthropic.ContentBlockDeltaEventDelta)
		if !ok {
			continue
		}
		if delta.Type != "text_delta" || delta.Text == "" {
			continue
		}
		if err := onDelta(delta.Text); err != nil {
			return err
		}
	}

	if err := stream.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, context.Canceled) {
			err = ctxErr
		}
		return classify(err)
	}
	return nil
}

// Complete sends a one-shot completion.
func (c *AnthropicClient) Complete(ctx context.Context, prompt, modelName string, cfg SamplingConfig) (string, error) {
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.F(modelName),
		MaxTokens: anthropic.F(int64(maxTokens)),
		Messages: anthropic.F([]anthropic.MessageParam{{
			Role: anthropic.F(anthropic.MessageParamRoleUser),
			Content: anthropic.F([]anthropic.ContentBlockParamUnion{
				anthropic.TextBlockParam{
					Type: anthropic.F(anthropic.TextBlockParamTypeText),
					Text: anthropic.F(prompt),
				},
			}),
		}}),
	}, requestOptions(modelName, cfg)...)
	if err != nil {
		return "", classify(err)
	}

	var content string
	for _, block := range resp.Content {
		if block.Type == anthropic.ContentBlockTypeText {
			content += block.Text
		}
	}
	return content, nil
}
