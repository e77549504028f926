package orchestrator

import "github.com/massgen-ai/massgen/agent"

// convergenceResult is the outcome of tallying every live agent's vote.
type convergenceResult struct {
	// converged is true once every eligible agent has either voted or
	// completed and the leading target clears the voting-sensitivity
	// threshold.
	converged bool
	winnerID  string
	// tied lists the agent IDs sharing the highest vote count when the
	// tally was computed but the leader didn't clear the threshold;
	// non-empty only in that case. A genuine tie in vote count among
	// otherwise-convergent agents is always resolved by the deterministic
	// tie-break in breakTie, so it never surfaces here.
	tied []string
}

// checkConvergence tallies votes across states. Agents that errored or
// were cancelled are excluded from the denominator entirely: they can
// neither block nor decide convergence. Every remaining agent must have
// cast a vote or reached StatusCompleted before convergence is even
// considered. votingSensitivity is Config.VotingSensitivity.
func checkConvergence(states map[string]agent.State, votingSensitivity float64) convergenceResult {
	votes := make(map[string]int)
	eligible := 0

	for _, st := range states {
		if st.Status == agent.StatusError || st.Status == agent.StatusCanceled {
			continue
		}
		eligible++
		switch {
		case st.Vote != nil:
			votes[st.Vote.TargetID]++
		case st.Status != agent.StatusCompleted:
			// Still in flight with no vote cast: convergence can't be
			// decided yet.
			return convergenceResult{}
		}
	}

	if eligible == 0 || len(votes) == 0 {
		return convergenceResult{}
	}

	best := 0
	for _, n := range votes {
		if n > best {
			best = n
		}
	}
	var winners []string
	for id, n := range votes {
		if n == best {
			winners = append(winners, id)
		}
	}

	winner := winners[0]
	if len(winners) > 1 {
		winner = breakTie(winners, states)
	}

	if float64(best) < votingSensitivity*float64(eligible) {
		return convergenceResult{tied: winners}
	}
	return convergenceResult{converged: true, winnerID: winner}
}

// breakTie applies spec's deterministic selection tie-break over targets
// sharing the highest vote count: most recent current_answer.at first,
// then lexicographic agent id.
func breakTie(winners []string, states map[string]agent.State) string {
	best := winners[0]
	for _, id := range winners[1:] {
		switch {
		case states[id].AnswerAt > states[best].AnswerAt:
			best = id
		case states[id].AnswerAt == states[best].AnswerAt && id < best:
			best = id
		}
	}
	return best
}
