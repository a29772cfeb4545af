package chat

import (
	"fmt"
	"slices"
)

// TransitionGraph maps a speaker to the agents allowed to speak after it
type TransitionGraph map[string][]string

// nodes returns every agent name the graph mentions
func (g TransitionGraph) nodes() map[string]bool {
	nodes := make(map[string]bool)
	for from, to := range g {
		nodes[from] = true
		for _, n := range to {
			nodes[n] = true
		}
	}
	return nodes
}

// Validate checks that the graph only names participants
func (g TransitionGraph) Validate(agents []Agent) error {
	for name := range g.nodes() {
		if findAgent(agents, name) == nil {
			return fmt.Errorf("transition graph references unknown agent '%s'", name)
		}
	}
	return nil
}

// Allowed filters candidates to those reachable from last. A last speaker
// the graph does not mention leaves every candidate eligible; a mentioned
// speaker without outgoing edges is a sink.
func (g TransitionGraph) Allowed(last string, candidates []Agent) ([]Agent, error) {
	if len(g) == 0 || !g.nodes()[last] {
		return candidates, nil
	}
	next := g[last]
	if len(next) == 0 {
		return nil, fmt.Errorf("%w: '%s'", ErrSinkSpeaker, last)
	}
	var out []Agent
	for _, a := range candidates {
		if slices.Contains(next, a.Name()) {
			out = append(out, a)
		}
	}
	return out, nil
}
