// Package openai adapts the OpenAI Chat Completions API
// (github.com/openai/openai-go) to the stream.Backend interface.
package openai

import (
	"context"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"

	"github.com/cenkalti/backoff/v4"

	"github.com/massgen-ai/massgen/compress"
	"github.com/massgen-ai/massgen/massgenerr"
	"github.com/massgen-ai/massgen/stream"
)

// ChatClient is the subset of the OpenAI SDK this adapter needs.
type ChatClient interface {
	NewStreaming(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[oai.ChatCompletionChunk]
}

type realClient struct{ svc *oai.ChatCompletionService }

func (r realClient) NewStreaming(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[oai.ChatCompletionChunk] {
	return r.svc.NewStreaming(ctx, body, opts...)
}

// Options configures a Client.
type Options struct {
	Model       string
	Temperature float64
	Compressor  *compress.Compressor
	MaxRetries  int
}

// Client implements stream.Backend on top of OpenAI Chat Completions.
type Client struct {
	chat ChatClient
	opts Options

	hookMgr any
}

// NewFromAPIKey builds a Client using the default OpenAI HTTP client.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai api key is required", massgenerr.ErrConfiguration)
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("%w: openai model identifier is required", massgenerr.ErrConfiguration)
	}
	c := oai.NewClient(option.WithAPIKey(apiKey))
	if opts.Compressor == nil {
		opts.Compressor = compress.New(compress.Options{})
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Client{chat: realClient{&c.Chat.Completions}, opts: opts}, nil
}

func (c *Client) SetGeneralHookManager(mgr any) { c.hookMgr = mgr }

// Stream issues a Chat Completions streaming request and adapts the
// resulting chunk events into stream.Chunk values.
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

	var st *ssestream.Stream[oai.ChatCompletionChunk]
	op := func() error {
		st = c.chat.NewStreaming(ctx, *body)
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

func (c *Client) buildParams(messages []stream.Message, tools []stream.ToolSpec, params stream.Params) (*oai.ChatCompletionNewParams, error) {
	msgs, err := encodeMessages(messages)
	if err != nil {
		return nil, err
	}
	body := oai.ChatCompletionNewParams{
		Model:    oai.ChatModel(c.opts.Model),
		Messages: msgs,
	}
	if t := params.Temperature; t != nil {
		body.Temperature = oai.Float(*t)
	} else if c.opts.Temperature > 0 {
		body.Temperature = oai.Float(c.opts.Temperature)
	}
	if params.MaxTokens > 0 {
		body.MaxCompletionTokens = oai.Int(int64(params.MaxTokens))
	}
	if len(tools) > 0 {
		body.Tools = encodeTools(tools)
	}
	return &body, nil
}

func encodeMessages(messages []stream.Message) ([]oai.ChatCompletionMessageParamUnion, error) {
	var out []oai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case stream.RoleSystem:
			out = append(out, oai.SystemMessage(m.Content))
		case stream.RoleUser:
			out = append(out, oai.UserMessage(m.Content))
		case stream.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, oai.AssistantMessage(m.Content))
				continue
			}
			calls := make([]oai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
			for i, tc := range m.ToolCalls {
				calls[i] = oai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: oai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				}
			}
			asst := oai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
			if m.Content != "" {
				asst.Content.OfString = oai.String(m.Content)
			}
			out = append(out, oai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case stream.RoleTool:
			out = append(out, oai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return out, nil
}

func encodeTools(tools []stream.ToolSpec) []oai.ChatCompletionToolParam {
	out := make([]oai.ChatCompletionToolParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, oai.ChatCompletionToolParam{
			Function: oai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: oai.String(t.Description),
				Parameters:  oai.FunctionParameters(t.Schema),
			},
		})
	}
	return out
}
