package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// CompletionFunc asks the selection model to continue an exchange
type CompletionFunc func(ctx context.Context, msgs []Message) (string, error)

const (
	// DefaultSelectMessage is the system message of the selection exchange
	DefaultSelectMessage = `You are in a role play game. The following roles are available:
{roles}.
{plan}
Read the following conversation.
Then select the next role from {agentlist} to play. Only return the role.`

	// DefaultSelectPrompt can be used as SelectPrompt to seed the exchange
	// with an instruction instead of the conversation tail
	DefaultSelectPrompt = `Read the above conversation. Then select the next role from {agentlist} to play. Only return the role.`

	// SelectorName is the speaker of selection model replies in the
	// exchange passed to CompletionFunc
	SelectorName  = "speaker_selector"
	validatorName = "speaker_validator"
)

// autoSelect runs a bounded two-party exchange between a validator and the
// selection model. Each invalid answer is answered with a corrective prompt
// until the attempt budget runs out, then the next candidate in roster
// order is chosen.
func (s *Selector) autoSelect(ctx context.Context, last Agent, messages []Message, candidates []Agent) (Agent, error) {
	maxAttempts := 1 + s.maxRetries
	maxTurns := 2 * max(1, maxAttempts)

	system := Message{Role: RoleSystem, Name: validatorName, Content: s.render(s.selectMessage, candidates)}
	var exchange []Message
	if s.selectPrompt != "" {
		if n := len(messages); n > 0 {
			exchange = append(exchange, messages[n-1])
		}
		exchange = append(exchange, Message{Role: RoleUser, Name: validatorName, Content: s.render(s.selectPrompt, candidates)})
	} else {
		exchange = append(exchange, messages...)
	}

	turns := 0
	for attempt := 1; attempt <= maxAttempts && turns < maxTurns; attempt++ {
		reply, err := s.complete(ctx, append([]Message{system}, exchange...))
		if err != nil {
			return nil, fmt.Errorf("speaker selection: %w", err)
		}
		turns++
		exchange = append(exchange, Message{Role: RoleAssistant, Name: SelectorName, Content: reply})

		mentioned := mentionedAgents(reply, candidates)
		if len(mentioned) == 1 {
			s.logger.Debug("auto selected speaker", "speaker", mentioned[0].Name(), "attempt", attempt)
			return mentioned[0], nil
		}
		s.logger.Debug("invalid speaker selection", "reply", reply, "mentioned", len(mentioned), "attempt", attempt)

		turns++
		exchange = append(exchange, Message{Role: RoleUser, Name: validatorName, Content: corrective(mentioned, candidates)})
	}

	next := s.nextAgent(last, candidates)
	s.logger.Info("speaker selection exhausted, using round robin", "attempts", maxAttempts, "speaker", next.Name())
	return next, nil
}

func (s *Selector) render(tmpl string, candidates []Agent) string {
	return strings.NewReplacer(
		"{roles}", participantRoles(candidates),
		"{agentlist}", fmt.Sprintf("%v", agentNames(candidates)),
		"{plan}", s.plan,
	).Replace(tmpl)
}

func corrective(mentioned []Agent, candidates []Agent) string {
	names := strings.Join(agentNames(candidates), ", ")
	if len(mentioned) > 1 {
		return fmt.Sprintf("You provided more than one name in your text, please return just the name of the next speaker. Valid names are: %s. Respond with ONLY the name of the speaker and DO NOT provide a reason.", names)
	}
	return fmt.Sprintf("You didn't choose a speaker. Valid names are: %s. Respond with ONLY the name of the speaker and DO NOT provide a reason.", names)
}

// participantRoles renders "name: description" lines
func participantRoles(agents []Agent) string {
	lines := make([]string, 0, len(agents))
	for _, a := range agents {
		lines = append(lines, fmt.Sprintf("%s: %s", a.Name(), strings.TrimSpace(a.Description())))
	}
	return strings.Join(lines, "\n")
}

// mentionedAgents returns the candidates named in text. Names match
// case-insensitively on word boundaries, and underscores may be written
// as spaces.
func mentionedAgents(text string, candidates []Agent) []Agent {
	var out []Agent
	for _, a := range candidates {
		if mentions(text, a.Name()) {
			out = append(out, a)
		}
	}
	return out
}

func mentions(text, name string) bool {
	variants := []string{name}
	if spaced := strings.ReplaceAll(name, "_", " "); spaced != name {
		variants = append(variants, spaced)
	}
	for _, v := range variants {
		re := regexp.MustCompile(`(?i)(^|\W)` + regexp.QuoteMeta(v) + `(\W|$)`)
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
