package gateway

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/emberchat/emberchat/internal/model"
)

// OpenAIClient is the OpenAI provider. None of its models advertise
// thinking support, so the budget parameter is always omitted.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, &ConfigurationError{Reason: "OpenAI API key is required"}
	}

	return &OpenAIClient{
		client: openai.NewClient(apiKey),
	}, nil
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return "openai"
}

// Models returns the models this provider serves.
func (c *OpenAIClient) Models() []ModelInfo {
	var out []ModelInfo
	for _, m := range registry {
		if m.Provider == "openai" {
			out = append(out, m)
		}
	}
	return out
}

func openaiMessages(prior []model.HistoryItem, parts []model.Part, systemInstruction string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(prior)+2)
	if systemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemInstruction,
		})
	}
	for _, item := range prior {
		role := openai.ChatMessageRoleUser
		if item.Role == model.HistoryRoleModel {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: historyText(item.Parts),
		})
	}
	if text := historyText(parts); text != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: text,
		})
	}
	return messages
}

// StreamTurn opens one streaming chat turn.
func (c *OpenAIClient) StreamTurn(ctx context.Context, prior []model.HistoryItem, parts []model.Part, modelName string, cfg SamplingConfig, onDelta DeltaFunc) error {
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       modelName,
		Messages:    openaiMessages(prior, parts, cfg.SystemInstruction),
		MaxTokens:   maxTokens,
		Temperature: cfg.Temperature,
		Stream:      true,
	})
	if err != nil {
		return classify(err)
	}
	defer stream.Close()

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return classify(err)
		}

		if len(response.Choices) == 0 {
			continue
		}
		if delta := response.Choices[0].Delta.Content; delta != "" {
			if err := onDelta(delta); err != nil {
				return err
			}
		}
	}
}

// Complete sends a one-shot completion.
func (c *OpenAIClient) Complete(ctx context.Context, prompt, modelName string, cfg SamplingConfig) (string, error) {
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       modelName,
		Messages:    openaiMessages(nil, []model.Part{{Text: prompt}}, cfg.SystemInstruction),
		MaxTokens:   maxTokens,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return "", classify(err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
