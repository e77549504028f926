// Package bedrock adapts the AWS Bedrock Converse/ConverseStream API
// (github.com/aws/aws-sdk-go-v2/service/bedrockruntime) to the
// stream.Backend interface.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/cenkalti/backoff/v4"

	"github.com/massgen-ai/massgen/compress"
	"github.com/massgen-ai/massgen/massgenerr"
	"github.com/massgen-ai/massgen/stream"
)

// RuntimeClient is the subset of the AWS Bedrock runtime client this
// adapter needs.
type RuntimeClient interface {
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Options configures a Client.
type Options struct {
	Runtime     RuntimeClient
	Model       string
	MaxTokens   int
	Temperature float32
	Compressor  *compress.Compressor
	MaxRetries  int
}

// Client implements stream.Backend on top of AWS Bedrock Converse.
type Client struct {
	opts Options

	hookMgr any
}

// New builds a Client from an already-configured Bedrock runtime client.
func New(opts Options) (*Client, error) {
	if opts.Runtime == nil {
		return nil, fmt.Errorf("%w: bedrock runtime client is required", massgenerr.ErrConfiguration)
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("%w: bedrock model identifier is required", massgenerr.ErrConfiguration)
	}
	if opts.Compressor == nil {
		opts.Compressor = compress.New(compress.Options{})
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Client{opts: opts}, nil
}

func (c *Client) SetGeneralHookManager(mgr any) { c.hookMgr = mgr }

// Stream issues a ConverseStream call and adapts the event stream into
// stream.Chunk values.
func (c *Client) Stream(ctx context.Context, messages []stream.Message, tools []stream.ToolSpec, params stream.Params) (<-chan stream.Chunk, error) {
	out := make(chan stream.Chunk, 32)

	if c.opts.Compressor.ShouldCompress(messages, params.ContextWindow) {
		result := c.opts.Compressor.Compress(ctx, messages, params.ContextWindow)
		messages = result.Messages
		go func() {
			for _, s := range result.Statuses {
				out <- s
			}
		}()
	}

	input, err := c.buildInput(messages, tools, params)
	if err != nil {
		close(out)
		return nil, err
	}

	var output *bedrockruntime.ConverseStreamOutput
	op := func() error {
		var opErr error
		output, opErr = c.opts.Runtime.ConverseStream(ctx, input)
		if opErr != nil && !isRetryable(opErr) {
			return backoff.Permanent(opErr)
		}
		return opErr
	}
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.opts.MaxRetries))
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		close(out)
		return nil, &massgenerr.ProviderError{Kind: "provider-transient", Retryable: true, Err: err}
	}

	evStream := output.GetStream()
	if evStream == nil {
		close(out)
		return nil, errors.New("bedrock: stream output missing event stream")
	}

	go runStream(ctx, evStream, out)
	return out, nil
}

func (c *Client) buildInput(messages []stream.Message, tools []stream.ToolSpec, params stream.Params) (*bedrockruntime.ConverseStreamInput, error) {
	msgs, system, err := encodeMessages(messages)
	if err != nil {
		return nil, err
	}

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(c.opts.Model),
		Messages: msgs,
	}
	if len(system) > 0 {
		input.System = system
	}
	if len(tools) > 0 {
		input.ToolConfig = encodeTools(tools)
	}

	var cfg brtypes.InferenceConfiguration
	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.opts.MaxTokens
	}
	if maxTokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(maxTokens))
	}
	temp := c.opts.Temperature
	if params.Temperature != nil {
		temp = float32(*params.Temperature)
	}
	if temp > 0 {
		cfg.Temperature = aws.Float32(temp)
	}
	if cfg.MaxTokens != nil || cfg.Temperature != nil {
		input.InferenceConfig = &cfg
	}
	return input, nil
}

func encodeMessages(messages []stream.Message) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	var conversation []brtypes.Message
	var system []brtypes.SystemContentBlock

	for _, m := range messages {
		switch m.Role {
		case stream.RoleSystem:
			if m.Content != "" {
				system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
			}
		case stream.RoleUser:
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		case stream.RoleAssistant:
			var blocks []brtypes.ContentBlock
			if m.Content != "" {
				blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: m.Content})
			}
			for _, tc := range m.ToolCalls {
				var input any
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						return nil, nil, fmt.Errorf("bedrock: tool call %q arguments: %w", tc.Name, err)
					}
				}
				blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{Value: brtypes.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(&input),
				}})
			}
			if len(blocks) > 0 {
				conversation = append(conversation, brtypes.Message{Role: brtypes.ConversationRoleAssistant, Content: blocks})
			}
		case stream.RoleTool:
			conversation = append(conversation, brtypes.Message{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberToolResult{Value: brtypes.ToolResultBlock{
					ToolUseId: aws.String(m.ToolCallID),
					Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: m.Content}},
				}}},
			})
		}
	}
	if len(conversation) == 0 {
		return nil, nil, errors.New("bedrock: at least one user/assistant message is required")
	}
	return conversation, system, nil
}

func encodeTools(tools []stream.ToolSpec) *brtypes.ToolConfiguration {
	list := make([]brtypes.Tool, 0, len(tools))
	for _, t := range tools {
		schema := any(t.Schema)
		list = append(list, &brtypes.ToolMemberToolSpec{Value: brtypes.ToolSpecification{
			Name:        aws.String(t.Name),
			Description: aws.String(t.Description),
			InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(&schema)},
		}})
	}
	return &brtypes.ToolConfiguration{Tools: list}
}

func isRetryable(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException", "ServiceUnavailableException":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 429 || respErr.HTTPStatusCode() >= 500
	}
	return false
}
