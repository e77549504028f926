// Package broadcast implements the agent-to-agent (and optional
// agent-to-human) question/response bus: rate limiting, deadlock
// avoidance, timeouts, and blocking wait/collect semantics.
package broadcast

import (
	"time"
)

// Status is the closed set of BroadcastRequest lifecycle states. Status
// transitions monotonically: pending -> collecting -> complete|timeout,
// or pending/collecting -> cancelled.
type Status string

const (
	StatusPending    Status = "pending"
	StatusCollecting Status = "collecting"
	StatusComplete   Status = "complete"
	StatusTimeout    Status = "timeout"
	StatusCancelled  Status = "cancelled"
)

// ResponseMode controls how the channel exposes collected responses to
// the sender: Inline lets the sender block on Wait; Background requires
// the sender to poll Status/Responses.
type ResponseMode string

const (
	ResponseModeInline     ResponseMode = "inline"
	ResponseModeBackground ResponseMode = "background"
)

// Mode controls who can respond to broadcasts: Agents excludes the human
// from the recipient count, Human includes a human participant.
type Mode string

const (
	ModeOff    Mode = "off"
	ModeAgents Mode = "agents"
	ModeHuman  Mode = "human"
)

// Request is a question broadcast by one agent to the others.
type Request struct {
	ID             string
	SenderID       string
	Question       string
	CreatedAt      time.Time
	Timeout        time.Duration
	ResponseMode   ResponseMode
	ExpectedCount  int
	ReceivedCount  int
	Status         Status
}

// Response is one collected answer to a Request.
type Response struct {
	RequestID  string
	ResponderID string
	Content    string
	At         time.Time
	IsHuman    bool
}

// StatusSnapshot is the result of Channel.Status.
type StatusSnapshot struct {
	Status      Status
	Received    int
	Expected    int
	WaitingFor  []string
}

// ResponsesSnapshot is the result of Channel.Responses and Channel.Wait.
type ResponsesSnapshot struct {
	Status    Status
	Responses []Response
}

// Config configures a Channel's limits.
type Config struct {
	Mode                  Mode          `yaml:"broadcast"`
	Timeout               time.Duration `yaml:"broadcast_timeout"`
	MaxBroadcastsPerAgent int           `yaml:"max_broadcasts_per_agent"`
}

// WithDefaults fills in zero fields with their operational defaults.
func (c Config) WithDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxBroadcastsPerAgent <= 0 {
		c.MaxBroadcastsPerAgent = 3
	}
	if c.Mode == "" {
		c.Mode = ModeAgents
	}
	return c
}
