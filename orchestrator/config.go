package orchestrator

import "time"

// Config controls the convergence and restart policy of one coordination
// run. Zero values get WithDefaults.
type Config struct {
	MaxNewAnswersPerAgent int           `yaml:"max_new_answers_per_agent"`
	VoteTimeout           time.Duration `yaml:"vote_timeout"`
	MaxRestarts           int           `yaml:"max_restarts"`

	// VotingSensitivity is the fraction of eligible agents (not errored or
	// cancelled) the current vote leader needs to converge: a winner with
	// votes >= VotingSensitivity * |eligible agents|. Defaults to 0.5 so a
	// simple majority converges.
	VotingSensitivity float64 `yaml:"voting_sensitivity"`

	// AnswerNoveltyRequirement is the textual-similarity floor a new_answer
	// candidate must clear against the agent's previous answer. Passed
	// through to the configured NoveltyChecker; the default checker ignores
	// its magnitude and only rejects an exact repeat.
	AnswerNoveltyRequirement float64 `yaml:"answer_novelty_requirement"`
}

// WithDefaults fills in zero fields.
func (c Config) WithDefaults() Config {
	if c.MaxNewAnswersPerAgent <= 0 {
		c.MaxNewAnswersPerAgent = 3
	}
	if c.VoteTimeout <= 0 {
		c.VoteTimeout = 120 * time.Second
	}
	if c.MaxRestarts <= 0 {
		c.MaxRestarts = 5
	}
	if c.VotingSensitivity <= 0 {
		c.VotingSensitivity = 0.5
	}
	return c
}
