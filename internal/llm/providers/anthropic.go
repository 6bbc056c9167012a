package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/getmira/mira-core/internal/backoff"
	"github.com/getmira/mira-core/internal/llm/toolconv"
	"github.com/getmira/mira-core/pkg/models"
)

// AnthropicProvider adapts github.com/anthropics/anthropic-sdk-go to the
// Provider interface, grounded on teacher internal/agent/providers/anthropic.go's
// convertMessages/convertTools/getModel/wrapError shape, collapsed from the
// teacher's streaming Complete() into one non-streaming Messages.New call
// per call_with_tools (spec §4.3 wants one aggregated response, not a chunk
// channel, so the operation loop can decide whether to keep iterating).
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
	models       []Model
	pricing      map[string]PricingTier
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
	// Pricing maps a model ID to its rate card; models absent from this
	// map cost nothing (useful for local/test doubles), so a deployment
	// is expected to populate it from configuration.
	Pricing map[string]PricingTier
}

// NewAnthropicProvider builds an AnthropicProvider from config.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		models:       defaultAnthropicModels(),
		pricing:      cfg.Pricing,
	}, nil
}

func defaultAnthropicModels() []Model {
	return []Model{
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextSize: 200000, SupportsVision: true},
		{ID: "claude-haiku-4-20250514", Name: "Claude Haiku 4", ContextSize: 200000, SupportsVision: true},
	}
}

func (p *AnthropicProvider) Name() string        { return "anthropic" }
func (p *AnthropicProvider) Models() []Model      { return p.models }
func (p *AnthropicProvider) SupportsTools() bool  { return true }

// CallWithTools implements Provider.
func (p *AnthropicProvider) CallWithTools(ctx context.Context, messages []Message, tools []models.ToolDeclaration, opts CallOptions) (*Response, error) {
	model := p.getModel(opts.Model)

	msgParams, system, err := p.convertMessages(messages)
	if err != nil {
		return nil, err
	}
	toolParams, err := toolconv.ToAnthropicTools(tools)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(p.getMaxTokens(opts.MaxTokens)),
		Messages:  msgParams,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(toolParams) > 0 {
		params.Tools = toolParams
	}

	msg, err := p.callWithRetry(ctx, params, model)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		TokensIn:     msg.Usage.InputTokens,
		TokensOut:    msg.Usage.OutputTokens,
		CachedTokens: msg.Usage.CacheReadInputTokens,
		FinishReason: FinishStop,
	}
	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: json.RawMessage(block.Input),
			})
		}
	}
	resp.Content = text.String()
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = FinishToolCalls
	}
	if string(msg.StopReason) == "max_tokens" {
		resp.FinishReason = FinishLength
	}
	resp.Cost = ComputeCost(p.pricing[model], resp.TokensIn, resp.TokensOut, resp.CachedTokens)
	return resp, nil
}

// convertMessages splits out any system-role message (Anthropic takes the
// system prompt as a separate top-level field) and renders the rest as
// Anthropic content blocks: text, tool_use (assistant-issued calls), and
// tool_result (the router feeding prior results back in).
func (p *AnthropicProvider) convertMessages(messages []Message) ([]anthropic.MessageParam, string, error) {
	var system strings.Builder
	var result []anthropic.MessageParam

	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(msg.Content)
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		for _, tr := range msg.ToolResults {
			content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
		}
		for _, tc := range msg.ToolCalls {
			var input map[string]any
			if err := json.Unmarshal(tc.Arguments, &input); err != nil {
				return nil, "", fmt.Errorf("invalid tool call arguments for %s: %w", tc.Name, err)
			}
			content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
		}

		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, system.String(), nil
}

// callWithRetry makes up to maxRetries attempts in total, retrying only
// a retryable ProviderError (rate limit, timeout, transient server
// error) with exponential backoff, grounded on teacher internal/agent/providers/base.go's
// Retry helper but using the shared internal/backoff policy instead of
// the teacher's linear delay.
func (p *AnthropicProvider) callWithRetry(ctx context.Context, params anthropic.MessageNewParams, model string) (*anthropic.Message, error) {
	policy := backoff.DefaultPolicy()
	policy.InitialMs = float64(p.retryDelay.Milliseconds())

	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		msg, callErr := p.client.Messages.New(ctx, params)
		if callErr == nil {
			return msg, nil
		}
		lastErr = p.wrapError(callErr, model)
		if !IsRetryable(lastErr) || attempt == p.maxRetries {
			return nil, lastErr
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff.ComputeBackoff(policy, attempt)):
		}
	}
	return nil, lastErr
}

func (p *AnthropicProvider) getModel(model string) string {
	if model == "" {
		return p.defaultModel
	}
	return model
}

func (p *AnthropicProvider) getMaxTokens(maxTokens int) int {
	if maxTokens <= 0 {
		return 4096
	}
	return maxTokens
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		pe := NewProviderError("anthropic", model, err)
		return pe.WithStatus(apiErr.StatusCode)
	}
	return NewProviderError("anthropic", model, err)
}
