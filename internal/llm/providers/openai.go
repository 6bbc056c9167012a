package providers

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/getmira/mira-core/internal/backoff"
	"github.com/getmira/mira-core/internal/llm/toolconv"
	"github.com/getmira/mira-core/pkg/models"
)

// OpenAIProvider adapts github.com/sashabaranov/go-openai to Provider,
// grounded on teacher internal/agent/providers/openai.go's
// convertToOpenAIMessages/convertToOpenAITools, collapsed from the
// teacher's streaming ChatCompletionStream onto one non-streaming
// CreateChatCompletion call per call_with_tools (spec §4.3).
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
	models       []Model
	pricing      map[string]PricingTier
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
	Pricing      map[string]PricingTier
}

// NewOpenAIProvider builds an OpenAIProvider from config.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = openai.GPT4o
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		models:       defaultOpenAIModels(),
		pricing:      cfg.Pricing,
	}, nil
}

func defaultOpenAIModels() []Model {
	return []Model{
		{ID: openai.GPT4o, Name: "GPT-4o", ContextSize: 128000, SupportsVision: true},
		{ID: openai.GPT4Turbo, Name: "GPT-4 Turbo", ContextSize: 128000, SupportsVision: true},
		{ID: openai.GPT3Dot5Turbo, Name: "GPT-3.5 Turbo", ContextSize: 16385},
	}
}

func (p *OpenAIProvider) Name() string       { return "openai" }
func (p *OpenAIProvider) Models() []Model    { return p.models }
func (p *OpenAIProvider) SupportsTools() bool { return true }

// CallWithTools implements Provider.
func (p *OpenAIProvider) CallWithTools(ctx context.Context, messages []Message, tools []models.ToolDeclaration, opts CallOptions) (*Response, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: convertOpenAIMessages(messages),
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if oaiTools := toolconv.ToOpenAITools(tools); len(oaiTools) > 0 {
		req.Tools = oaiTools
	}

	completion, err := p.callWithRetry(ctx, req, model)
	if err != nil {
		return nil, err
	}
	if len(completion.Choices) == 0 {
		return nil, NewProviderError("openai", model, errors.New("empty choices in response"))
	}
	choice := completion.Choices[0]

	resp := &Response{
		Content:      choice.Message.Content,
		TokensIn:     int64(completion.Usage.PromptTokens),
		TokensOut:    int64(completion.Usage.CompletionTokens),
		FinishReason: FinishStop,
	}
	if completion.Usage.PromptTokensDetails != nil {
		resp.CachedTokens = int64(completion.Usage.PromptTokensDetails.CachedTokens)
	}
	for _, tc := range choice.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	switch choice.FinishReason {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		resp.FinishReason = FinishToolCalls
	case openai.FinishReasonLength:
		resp.FinishReason = FinishLength
	}
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = FinishToolCalls
	}
	resp.Cost = ComputeCost(p.pricing[model], resp.TokensIn, resp.TokensOut, resp.CachedTokens)
	return resp, nil
}

// convertOpenAIMessages renders the internal Message shape into
// OpenAI's flat chat-message list, splitting tool results into their
// own role:"tool" messages the way OpenAI's API requires.
func convertOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	var result []openai.ChatCompletionMessage
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			result = append(result, oaiMsg)
		case models.RoleTool:
			for _, tr := range msg.ToolResults {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		case models.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.Content,
			})
		default:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		}
	}
	return result
}

func (p *OpenAIProvider) callWithRetry(ctx context.Context, req openai.ChatCompletionRequest, model string) (*openai.ChatCompletionResponse, error) {
	policy := backoff.DefaultPolicy()
	policy.InitialMs = float64(p.retryDelay.Milliseconds())

	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		completion, callErr := p.client.CreateChatCompletion(ctx, req)
		if callErr == nil {
			return &completion, nil
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

func (p *OpenAIProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		pe := NewProviderError("openai", model, err).WithStatus(apiErr.HTTPStatusCode)
		if code, ok := apiErr.Code.(string); ok {
			pe = pe.WithCode(code)
		}
		return pe
	}
	return NewProviderError("openai", model, err)
}
