package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/getmira/mira-core/internal/backoff"
	"github.com/getmira/mira-core/internal/llm/toolconv"
	"github.com/getmira/mira-core/pkg/models"
)

// BedrockProvider adapts the AWS Bedrock Converse API to Provider,
// grounded on teacher internal/agent/providers/bedrock.go's
// convertMessages/NewBedrockProvider, collapsed from the teacher's
// ConverseStream onto a single non-streaming Converse call per
// call_with_tools (spec §4.3).
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
	region       string
	models       []Model
	pricing      map[string]PricingTier
}

// BedrockConfig configures a BedrockProvider.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
	MaxRetries      int
	RetryDelay      time.Duration
	Pricing         map[string]PricingTier
}

// NewBedrockProvider builds a BedrockProvider from config.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
			)),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		region:       cfg.Region,
		models:       defaultBedrockModels(),
		pricing:      cfg.Pricing,
	}, nil
}

func defaultBedrockModels() []Model {
	return []Model{
		{ID: "anthropic.claude-3-opus-20240229-v1:0", Name: "Claude 3 Opus (Bedrock)", ContextSize: 200000, SupportsVision: true},
		{ID: "anthropic.claude-3-sonnet-20240229-v1:0", Name: "Claude 3 Sonnet (Bedrock)", ContextSize: 200000, SupportsVision: true},
		{ID: "anthropic.claude-3-haiku-20240307-v1:0", Name: "Claude 3 Haiku (Bedrock)", ContextSize: 200000, SupportsVision: true},
		{ID: "meta.llama3-70b-instruct-v1:0", Name: "Llama 3 70B (Bedrock)", ContextSize: 8192},
		{ID: "mistral.mixtral-8x7b-instruct-v0:1", Name: "Mixtral 8x7B (Bedrock)", ContextSize: 32768},
	}
}

func (p *BedrockProvider) Name() string       { return "bedrock" }
func (p *BedrockProvider) Models() []Model    { return p.models }
func (p *BedrockProvider) SupportsTools() bool { return true }

// CallWithTools implements Provider.
func (p *BedrockProvider) CallWithTools(ctx context.Context, messages []Message, tools []models.ToolDeclaration, opts CallOptions) (*Response, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}

	bedrockMessages, system := convertBedrockMessages(messages)

	req := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(model),
		Messages: bedrockMessages,
	}
	if system != "" {
		req.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
	}
	if opts.MaxTokens > 0 {
		maxTokens := opts.MaxTokens
		if maxTokens > math32Max {
			maxTokens = math32Max
		}
		req.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(maxTokens))}
	}
	if toolConfig := toolconv.ToBedrockTools(tools); toolConfig != nil {
		req.ToolConfig = toolConfig
	}

	out, err := p.callWithRetry(ctx, req, model)
	if err != nil {
		return nil, err
	}

	resp := &Response{FinishReason: FinishStop}
	if out.Usage != nil {
		resp.TokensIn = int64(aws.ToInt32(out.Usage.InputTokens))
		resp.TokensOut = int64(aws.ToInt32(out.Usage.OutputTokens))
		if out.Usage.CacheReadInputTokens != nil {
			resp.CachedTokens = int64(aws.ToInt32(out.Usage.CacheReadInputTokens))
		}
	}

	output, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if ok {
		for _, block := range output.Value.Content {
			switch b := block.(type) {
			case *types.ContentBlockMemberText:
				resp.Content += b.Value
			case *types.ContentBlockMemberToolUse:
				var input map[string]any
				if unmarshalErr := b.Value.Input.UnmarshalSmithyDocument(&input); unmarshalErr != nil {
					return nil, fmt.Errorf("decode tool use input for %s: %w", aws.ToString(b.Value.Name), unmarshalErr)
				}
				args, marshalErr := json.Marshal(input)
				if marshalErr != nil {
					return nil, fmt.Errorf("marshal tool use input for %s: %w", aws.ToString(b.Value.Name), marshalErr)
				}
				resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
					ID:        aws.ToString(b.Value.ToolUseId),
					Name:      aws.ToString(b.Value.Name),
					Arguments: json.RawMessage(args),
				})
			}
		}
	}

	if len(resp.ToolCalls) > 0 {
		resp.FinishReason = FinishToolCalls
	} else if out.StopReason == types.StopReasonMaxTokens {
		resp.FinishReason = FinishLength
	}
	resp.Cost = ComputeCost(p.pricing[model], resp.TokensIn, resp.TokensOut, resp.CachedTokens)
	return resp, nil
}

const math32Max = 1<<31 - 1

// convertBedrockMessages splits out system messages (Converse takes them
// as a top-level field) and renders the rest as Bedrock content blocks:
// text, tool-use (assistant-issued calls), and tool-result (fed back in
// on the user side), mirroring the teacher's convertMessages.
func convertBedrockMessages(messages []Message) ([]types.Message, string) {
	var system string
	var result []types.Message

	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}

		var content []types.ContentBlock
		if msg.Content != "" {
			content = append(content, &types.ContentBlockMemberText{Value: msg.Content})
		}
		for _, tr := range msg.ToolResults {
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(tr.ToolCallID),
					Content:   []types.ToolResultContentBlock{&types.ToolResultContentBlockMemberText{Value: tr.Content}},
				},
			})
		}
		for _, tc := range msg.ToolCalls {
			var inputDoc any
			if err := json.Unmarshal(tc.Arguments, &inputDoc); err != nil {
				inputDoc = map[string]any{}
			}
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(inputDoc),
				},
			})
		}

		role := types.ConversationRoleUser
		if msg.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		if len(content) > 0 {
			result = append(result, types.Message{Role: role, Content: content})
		}
	}
	return result, system
}

func (p *BedrockProvider) callWithRetry(ctx context.Context, req *bedrockruntime.ConverseInput, model string) (*bedrockruntime.ConverseOutput, error) {
	policy := backoff.DefaultPolicy()
	policy.InitialMs = float64(p.retryDelay.Milliseconds())

	var lastErr error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		out, callErr := p.client.Converse(ctx, req)
		if callErr == nil {
			return out, nil
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

func (p *BedrockProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return NewProviderError("bedrock", model, err).WithCode(apiErr.ErrorCode())
	}
	return NewProviderError("bedrock", model, err)
}
