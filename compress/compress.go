// Package compress implements a reactive compression sub-protocol:
// detecting context-window overflow, summarizing history while keeping a
// verbatim tail, and reporting progress via stream.ChunkCompressionStatus
// chunks.
package compress

import (
	"context"
	"fmt"
	"strings"

	"github.com/massgen-ai/massgen/stream"
)

// Sentinel prefixes a synthetic summary message so it can be detected on
// reload.
const Sentinel = "[[massgen:compressed-history]]"

const (
	// DefaultThreshold is the proactive-compression trigger: compress
	// when estimated tokens >= threshold * context window.
	DefaultThreshold = 0.5
	// DefaultTailKeep is the number of user/assistant pairs kept verbatim.
	DefaultTailKeep = 2
	// DefaultTarget is the post-compression size target, as a fraction of
	// the context window.
	DefaultTarget = 0.2
)

// Estimator estimates the token count of a message list. Adapters may
// supply a provider-specific tokenizer; the default is a crude
// characters/4 heuristic.
type Estimator func(messages []stream.Message) int

// DefaultEstimator estimates roughly 4 characters per token, summed over
// message content and tool-call name and argument text.
func DefaultEstimator(messages []stream.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
		for _, tc := range m.ToolCalls {
			total += len(tc.Name) + len(tc.Arguments)
		}
	}
	return total / 4
}

// Summarizer reduces the messages before the kept tail into one synthetic
// system message. The default implementation is deterministic (no model
// call required): it lists the roles and truncated content of each
// dropped message. Adapters may supply a model-backed summarizer instead.
type Summarizer func(dropped []stream.Message) string

// DefaultSummarizer renders a deterministic textual digest.
func DefaultSummarizer(dropped []stream.Message) string {
	var b strings.Builder
	b.WriteString(Sentinel)
	b.WriteString(" summary of ")
	fmt.Fprintf(&b, "%d prior messages:\n", len(dropped))
	for _, m := range dropped {
		content := m.Content
		if len(content) > 200 {
			content = content[:200] + "…"
		}
		fmt.Fprintf(&b, "- %s: %s\n", m.Role, content)
	}
	return b.String()
}

// Options configures a Compressor.
type Options struct {
	Threshold  float64
	TailKeep   int
	Target     float64
	Estimator  Estimator
	Summarizer Summarizer
}

// WithDefaults fills in zero fields with package defaults.
func (o Options) WithDefaults() Options {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.TailKeep <= 0 {
		o.TailKeep = DefaultTailKeep
	}
	if o.Target <= 0 {
		o.Target = DefaultTarget
	}
	if o.Estimator == nil {
		o.Estimator = DefaultEstimator
	}
	if o.Summarizer == nil {
		o.Summarizer = DefaultSummarizer
	}
	return o
}

// Result is the outcome of a Compress call.
type Result struct {
	Messages []stream.Message
	Kept     int
	Ratio    float64
	Status   stream.CompressionState
	Reason   string
	Statuses []stream.Chunk
}

// Compressor implements the deterministic compression procedure.
type Compressor struct {
	opts Options
}

// New returns a Compressor. Zero-value Options get package defaults.
func New(opts Options) *Compressor {
	return &Compressor{opts: opts.WithDefaults()}
}

// ShouldCompress reports whether the outgoing history should be
// proactively compressed before sending.
func (c *Compressor) ShouldCompress(messages []stream.Message, contextWindow int) bool {
	if contextWindow <= 0 {
		return false
	}
	tokens := c.opts.Estimator(messages)
	return float64(tokens) >= c.opts.Threshold*float64(contextWindow)
}

// Compress runs the deterministic compression procedure: keep the last
// TailKeep user/assistant pairs verbatim, summarize everything before
// them into one synthetic system message, and shrink TailKeep until the
// target is met or it reaches zero.
func (c *Compressor) Compress(_ context.Context, messages []stream.Message, contextWindow int) Result {
	statuses := []stream.Chunk{{Type: stream.ChunkCompressionStatus, CompressionStatus: stream.CompressionCompacting}}

	systemPrefix, rest := splitSystemPrefix(messages)
	keep := c.opts.TailKeep

	for {
		tail := lastPairs(rest, keep)
		dropped := rest[:len(rest)-len(tail)]

		var summary stream.Message
		if len(dropped) > 0 {
			summary = stream.Message{Role: stream.RoleSystem, Content: c.opts.Summarizer(dropped)}
		}

		out := make([]stream.Message, 0, len(systemPrefix)+2+len(tail))
		out = append(out, systemPrefix...)
		if len(dropped) > 0 {
			out = append(out, summary)
		}
		out = append(out, tail...)

		tokens := c.opts.Estimator(out)
		ratio := 0.0
		if contextWindow > 0 {
			ratio = float64(tokens) / float64(contextWindow)
		}

		if ratio <= c.opts.Target || keep == 0 {
			if ratio > c.opts.Target && keep == 0 {
				statuses = append(statuses, stream.Chunk{
					Type:              stream.ChunkCompressionStatus,
					CompressionStatus: stream.CompressionFailed,
					CompressionNote:   "history still exceeds target after dropping all but the system prompt",
				})
				return Result{
					Messages: out,
					Kept:     keep,
					Ratio:    ratio,
					Status:   stream.CompressionFailed,
					Reason:   "compression_failed",
					Statuses: statuses,
				}
			}
			statuses = append(statuses, stream.Chunk{
				Type:              stream.ChunkCompressionStatus,
				CompressionStatus: stream.CompressionCompacted,
				CompressionKept:   keep,
				CompressionRatio:  ratio,
			})
			return Result{
				Messages: out,
				Kept:     keep,
				Ratio:    ratio,
				Status:   stream.CompressionCompacted,
				Statuses: statuses,
			}
		}

		keep--
	}
}

// splitSystemPrefix separates the leading system message (the agent's
// prompt) from the rest of the conversation, since it is never dropped.
func splitSystemPrefix(messages []stream.Message) (prefix, rest []stream.Message) {
	if len(messages) > 0 && messages[0].Role == stream.RoleSystem {
		return messages[:1], messages[1:]
	}
	return nil, messages
}

// lastPairs returns the last n user/assistant pairs (and any trailing
// tool messages attached to them) verbatim, preserving order.
func lastPairs(messages []stream.Message, n int) []stream.Message {
	if n <= 0 {
		return nil
	}
	// Walk backwards counting user messages as pair boundaries.
	pairsSeen := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == stream.RoleUser {
			pairsSeen++
			start = i
			if pairsSeen == n {
				break
			}
		}
	}
	if pairsSeen == 0 {
		return nil
	}
	out := make([]stream.Message, len(messages[start:]))
	copy(out, messages[start:])
	return out
}
