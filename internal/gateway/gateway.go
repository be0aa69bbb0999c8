// Package gateway abstracts the generative-language backends behind a
// streaming chat-turn operation and a one-shot completion operation.
package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/emberchat/emberchat/internal/model"
	"github.com/emberchat/emberchat/pkg/logger"
)

// MaxThinkingBudget is the upper bound of the thinking knob.
const MaxThinkingBudget = 5

// thinkingBudgetTokens maps the 0-5 knob to provider token budgets.
var thinkingBudgetTokens = [MaxThinkingBudget + 1]int{0, 1024, 2048, 4096, 8192, 16384}

// DeltaFunc receives one non-empty text fragment, in arrival order.
type DeltaFunc func(delta string) error

// SamplingConfig carries the per-call sampling parameters. Callers
// clamp ThinkingBudget to [0, MaxThinkingBudget] before calling; the
// gateway omits the parameter entirely for models without thinking
// support.
type SamplingConfig struct {
	Temperature       float32
	MaxTokens         int
	ThinkingBudget    int
	SystemInstruction string
}

// Client is the interface for LLM providers.
type Client interface {
	// StreamTurn opens one network stream for a chat turn and invokes
	// onDelta for each text fragment. It terminates normally on stream
	// end and fails with NetworkError or APIError; it never retries.
	StreamTurn(ctx context.Context, prior []model.HistoryItem, parts []model.Part, modelName string, cfg SamplingConfig, onDelta DeltaFunc) error

	// Complete sends a single request/response completion. Used for
	// titles and summaries.
	Complete(ctx context.Context, prompt, modelName string, cfg SamplingConfig) (string, error)

	// Name returns the provider name.
	Name() string

	// Models returns the models this provider serves.
	Models() []ModelInfo
}

// ModelInfo describes one selectable model.
type ModelInfo struct {
	Name             string `json:"name"`
	Provider         string `json:"provider"`
	SupportsThinking bool   `json:"supports_thinking"`
}

var registry = []ModelInfo{
	{Name: "claude-3-5-sonnet-20241022", Provider: "anthropic", SupportsThinking: true},
	{Name: "claude-3-5-haiku-20241022", Provider: "anthropic", SupportsThinking: false},
	{Name: "claude-3-opus-20240229", Provider: "anthropic", SupportsThinking: true},
	{Name: "gpt-4o", Provider: "openai", SupportsThinking: false},
	{Name: "gpt-4o-mini", Provider: "openai", SupportsThinking: false},
}

// SupportsThinking reports whether the model advertises thinking
// support. Unknown models do not.
func SupportsThinking(modelName string) bool {
	for _, m := range registry {
		if m.Name == modelName {
			return m.SupportsThinking
		}
	}
	return false
}

// ClampThinkingBudget clamps a budget into the valid range.
func ClampThinkingBudget(budget int) int {
	if budget < 0 {
		return 0
	}
	if budget > MaxThinkingBudget {
		return MaxThinkingBudget
	}
	return budget
}

const basePersona = "You are a helpful, concise assistant. Answer in plain prose unless the user asks for another format."

// BuildSystemInstruction assembles the system instruction from the
// base persona plus the user's custom style and target language.
func BuildSystemInstruction(customStyle, targetLanguage string) string {
	var b strings.Builder
	b.WriteString(basePersona)
	if s := strings.TrimSpace(customStyle); s != "" {
		b.WriteString("\n\nStyle directions from the user:\n")
		b.WriteString(s)
	}
	if targetLanguage != "" && targetLanguage != "en" {
		b.WriteString("\n\nAlways respond in the language with BCP-47 code ")
		b.WriteString(targetLanguage)
		b.WriteString(".")
	}
	return b.String()
}

// Gateway routes calls to the provider serving the requested model and
// enforces a per-call deadline. It performs no caching and no retries.
type Gateway struct {
	anthropic Client
	openai    Client
	timeout   time.Duration
	logger    *logger.Logger
}

// Options configures gateway construction.
type Options struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
	Timeout         time.Duration
	Logger          *logger.Logger
}

// New creates a gateway from whichever credentials are present. With
// no credential at all it returns a ConfigurationError; the caller
// reports it once and keeps serving stored state.
func New(opts Options) (*Gateway, error) {
	g := &Gateway{
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
	if g.timeout <= 0 {
		g.timeout = 120 * time.Second
	}
	if g.logger == nil {
		g.logger = logger.NewNop()
	}

	if opts.AnthropicAPIKey != "" {
		c, err := NewAnthropicClient(opts.AnthropicAPIKey)
		if err != nil {
			return nil, err
		}
		g.anthropic = c
	}
	if opts.OpenAIAPIKey != "" {
		c, err := NewOpenAIClient(opts.OpenAIAPIKey)
		if err != nil {
			return nil, err
		}
		g.openai = c
	}

	if g.anthropic == nil && g.openai == nil {
		return nil, &ConfigurationError{Reason: "no API credential configured"}
	}
	return g, nil
}

// Models returns every model an available provider serves.
func (g *Gateway) Models() []ModelInfo {
	var out []ModelInfo
	for _, m := range registry {
		if m.Provider == "anthropic" && g.anthropic == nil {
			continue
		}
		if m.Provider == "openai" && g.openai == nil {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Name returns the provider name.
func (g *Gateway) Name() string {
	return "gateway"
}

func (g *Gateway) clientFor(modelName string) (Client, error) {
	if strings.HasPrefix(modelName, "claude") {
		if g.anthropic == nil {
			return nil, &ConfigurationError{Reason: "no Anthropic credential configured"}
		}
		return g.anthropic, nil
	}
	if g.openai == nil {
		return nil, &ConfigurationError{Reason: "no OpenAI credential configured"}
	}
	return g.openai, nil
}

// StreamTurn implements Client by routing to the serving provider.
func (g *Gateway) StreamTurn(ctx context.Context, prior []model.HistoryItem, parts []model.Part, modelName string, cfg SamplingConfig, onDelta DeltaFunc) error {
	client, err := g.clientFor(modelName)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	err = client.StreamTurn(ctx, prior, parts, modelName, cfg, onDelta)
	if err != nil {
		g.logger.Warnw("stream turn failed",
			"model", modelName,
			"provider", client.Name(),
			"elapsed", time.Since(start),
			"error", err,
		)
		return err
	}
	return nil
}

// Complete implements Client by routing to the serving provider.
func (g *Gateway) Complete(ctx context.Context, prompt, modelName string, cfg SamplingConfig) (string, error) {
	client, err := g.clientFor(modelName)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	return client.Complete(ctx, prompt, modelName, cfg)
}

// historyText flattens the text parts of a history item.
func historyText(parts []model.Part) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Text != "" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
