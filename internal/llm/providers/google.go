package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/getmira/mira-core/internal/backoff"
	"github.com/getmira/mira-core/internal/llm/toolconv"
	"github.com/getmira/mira-core/pkg/models"
)

// GoogleProvider adapts google.golang.org/genai to Provider, grounded on
// teacher internal/agent/providers/google.go's convertMessages/convertTools,
// collapsed from the teacher's GenerateContentStream iterator onto one
// non-streaming Models.GenerateContent call per call_with_tools (spec §4.3).
type GoogleProvider struct {
	client       *genai.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
	models       []Model
	pricing      map[string]PricingTier
}

// GoogleConfig configures a GoogleProvider.
type GoogleConfig struct {
	APIKey       string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
	Pricing      map[string]PricingTier
}

// NewGoogleProvider builds a GoogleProvider from config.
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}

	return &GoogleProvider{
		client:       client,
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		models:       defaultGoogleModels(),
		pricing:      cfg.Pricing,
	}, nil
}

func defaultGoogleModels() []Model {
	return []Model{
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", ContextSize: 1000000, SupportsVision: true},
		{ID: "gemini-2.0-flash-lite", Name: "Gemini 2.0 Flash Lite", ContextSize: 1000000, SupportsVision: true},
		{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", ContextSize: 2000000, SupportsVision: true},
		{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash", ContextSize: 1000000, SupportsVision: true},
	}
}

func (p *GoogleProvider) Name() string       { return "google" }
func (p *GoogleProvider) Models() []Model    { return p.models }
func (p *GoogleProvider) SupportsTools() bool { return true }

// CallWithTools implements Provider.
func (p *GoogleProvider) CallWithTools(ctx context.Context, messages []Message, tools []models.ToolDeclaration, opts CallOptions) (*Response, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}

	contents, system := convertGoogleMessages(messages)

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if geminiTools := toolconv.ToGeminiTools(tools); len(geminiTools) > 0 {
		config.Tools = geminiTools
	}

	result, err := p.callWithRetry(ctx, model, contents, config)
	if err != nil {
		return nil, err
	}

	resp := &Response{FinishReason: FinishStop}
	if result.UsageMetadata != nil {
		resp.TokensIn = int64(result.UsageMetadata.PromptTokenCount)
		resp.TokensOut = int64(result.UsageMetadata.CandidatesTokenCount)
		resp.CachedTokens = int64(result.UsageMetadata.CachedContentTokenCount)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		resp.Cost = ComputeCost(p.pricing[model], resp.TokensIn, resp.TokensOut, resp.CachedTokens)
		return resp, nil
	}

	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			resp.Content += part.Text
		}
		if part.FunctionCall != nil {
			args, marshalErr := json.Marshal(part.FunctionCall.Args)
			if marshalErr != nil {
				return nil, fmt.Errorf("marshal function call args for %s: %w", part.FunctionCall.Name, marshalErr)
			}
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
				ID:        generateGoogleToolCallID(part.FunctionCall.Name),
				Name:      part.FunctionCall.Name,
				Arguments: args,
			})
		}
	}
	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = FinishToolCalls
	} else if string(result.Candidates[0].FinishReason) == "MAX_TOKENS" {
		resp.FinishReason = FinishLength
	}
	resp.Cost = ComputeCost(p.pricing[model], resp.TokensIn, resp.TokensOut, resp.CachedTokens)
	return resp, nil
}

// convertGoogleMessages splits out system messages (Gemini takes system
// instructions as a separate config field) and maps the rest onto
// Gemini's user/model role pair, folding tool calls into FunctionCall
// parts and tool results into FunctionResponse parts on the user side.
func convertGoogleMessages(messages []Message) ([]*genai.Content, string) {
	var system string
	var result []*genai.Content

	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}

		content := &genai.Content{}
		switch msg.Role {
		case models.RoleAssistant:
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser
		}

		if msg.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
		}
		for _, tc := range msg.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal(tc.Arguments, &args); err != nil {
				args = make(map[string]any)
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args},
			})
		}
		for _, tr := range msg.ToolResults {
			var response map[string]any
			if err := json.Unmarshal([]byte(tr.Content), &response); err != nil {
				response = map[string]any{"result": tr.Content, "error": tr.IsError}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{Name: toolNameForCall(tr.ToolCallID, messages), Response: response},
			})
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}
	return result, system
}

func toolNameForCall(toolCallID string, messages []Message) string {
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			if tc.ID == toolCallID {
				return tc.Name
			}
		}
	}
	return ""
}

func generateGoogleToolCallID(name string) string {
	return fmt.Sprintf("%s_%d", name, time.Now().UnixNano())
}

func (p *GoogleProvider) callWithRetry(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	policy := backoff.DefaultPolicy()
	policy.InitialMs = float64(p.retryDelay.Milliseconds())

	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		result, callErr := p.client.Models.GenerateContent(ctx, model, contents, config)
		if callErr == nil {
			return result, nil
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

func (p *GoogleProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return NewProviderError("google", model, err).WithStatus(apiErr.Code)
	}
	return NewProviderError("google", model, err)
}
