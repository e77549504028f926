// Package anthropic adapts the Anthropic Claude Messages API
// (github.com/anthropics/anthropic-sdk-go) to the stream.Backend
// interface, translating provider-agnostic messages and tool specs into
// Claude's wire shape and Claude's streaming events back into
// stream.Chunk values.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"

	"github.com/massgen-ai/massgen/compress"
	"github.com/massgen-ai/massgen/massgenerr"
	"github.com/massgen-ai/massgen/stream"
)

// MessagesClient is the subset of the Anthropic SDK this adapter needs,
// satisfied by realClient (a wrapper around *sdk.MessageService) or a
// test double.
type MessagesClient interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *anthropicStream
}

// realClient wraps *sdk.MessageService to satisfy MessagesClient without
// leaking ssestream types outside this package.
type realClient struct{ svc *sdk.MessageService }

func (r realClient) NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *anthropicStream {
	return &anthropicStream{raw: r.svc.NewStreaming(ctx, body, opts...)}
}

// Options configures a Client.
type Options struct {
	Model         string
	MaxTokens     int
	Temperature   float64
	Compressor    *compress.Compressor
	MaxRetries    int
}

// Client implements stream.Backend on top of Claude Messages.
type Client struct {
	msg  MessagesClient
	opts Options

	hookMgr any
}

// NewFromAPIKey builds a Client using the default Anthropic HTTP client.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: anthropic api key is required", massgenerr.ErrConfiguration)
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("%w: anthropic model identifier is required", massgenerr.ErrConfiguration)
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	if opts.Compressor == nil {
		opts.Compressor = compress.New(compress.Options{})
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Client{msg: realClient{&ac.Messages}, opts: opts}, nil
}

func (c *Client) SetGeneralHookManager(mgr any) { c.hookMgr = mgr }

// Stream issues a Messages.NewStreaming call and adapts the resulting
// server-sent events into stream.Chunk values.
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

	body, err := c.buildParams(messages, tools, params)
	if err != nil {
		close(out)
		return nil, err
	}

	var st *anthropicStream
	op := func() error {
		st = c.msg.NewStreaming(ctx, *body)
		return st.Err()
	}
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.opts.MaxRetries))
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		close(out)
		return nil, &massgenerr.ProviderError{Kind: "provider-transient", Retryable: true, Err: err}
	}

	go runStream(ctx, st, out)
	return out, nil
}

func (c *Client) buildParams(messages []stream.Message, tools []stream.ToolSpec, params stream.Params) (*sdk.MessageNewParams, error) {
	msgs, system, err := encodeMessages(messages)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, errors.New("anthropic: at least one user/assistant message is required")
	}

	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.opts.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body := sdk.MessageNewParams{
		Model:     sdk.Model(c.opts.Model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if len(system) > 0 {
		body.System = system
	}
	if t := params.Temperature; t != nil {
		body.Temperature = sdk.Float(*t)
	} else if c.opts.Temperature > 0 {
		body.Temperature = sdk.Float(c.opts.Temperature)
	}
	if len(tools) > 0 {
		encoded, err := encodeTools(tools)
		if err != nil {
			return nil, err
		}
		body.Tools = encoded
	}
	return &body, nil
}

func encodeMessages(messages []stream.Message) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	var out []sdk.MessageParam
	var system []sdk.TextBlockParam

	for _, m := range messages {
		switch m.Role {
		case stream.RoleSystem:
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
		case stream.RoleUser:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case stream.RoleAssistant:
			blocks := []sdk.ContentBlockParamUnion{}
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						return nil, nil, fmt.Errorf("anthropic: tool call %q arguments: %w", tc.Name, err)
					}
				}
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, sdk.NewAssistantMessage(blocks...))
			}
		case stream.RoleTool:
			out = append(out, sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return out, system, nil
}

func encodeTools(tools []stream.ToolSpec) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema := sdk.ToolInputSchemaParam{ExtraFields: t.Schema}
		u := sdk.ToolUnionParamOfTool(schema, t.Name)
		if u.OfTool != nil {
			u.OfTool.Description = sdk.String(t.Description)
		}
		out = append(out, u)
	}
	return out, nil
}
