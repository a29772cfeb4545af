package chat_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"devcrew/chat"
)

var _ = Describe("Selector", func() {
	var (
		ctx     context.Context
		a, b, c *fakeAgent
		model   *scriptedModel
		history []chat.Message
	)

	state := func(last chat.Agent) *chat.ChatState {
		return &chat.ChatState{Messages: history, LastSpeaker: last, Round: 1, MaxRounds: 10}
	}

	BeforeEach(func() {
		ctx = context.Background()
		a, b, c = newAgent("planner"), newAgent("coder"), newAgent("tester")
		model = &scriptedModel{answers: []string{"coder"}}
		history = []chat.Message{text("planner", "let us start")}
	})

	newSelector := func(opts chat.SelectorOptions) *chat.Selector {
		if opts.Agents == nil {
			opts.Agents = agents(a, b, c)
		}
		if opts.Complete == nil {
			opts.Complete = model.complete
		}
		s, err := chat.NewSelector(opts)
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	It("rejects groups with fewer than two agents", func() {
		_, err := chat.NewSelector(chat.SelectorOptions{Agents: agents(a), Complete: model.complete})
		Expect(errors.Is(err, chat.ErrTooFewAgents)).To(BeTrue())
	})

	It("requires a selection model for auto selection", func() {
		_, err := chat.NewSelector(chat.SelectorOptions{Agents: agents(a, b)})
		Expect(err).To(MatchError(ContainSubstring("selection model")))
	})

	Describe("auto selection", func() {
		It("returns the single named agent with the full log", func() {
			sel, err := newSelector(chat.SelectorOptions{}).Select(ctx, a, state(a))
			Expect(err).NotTo(HaveOccurred())
			Expect(sel.Agent).To(BeIdenticalTo(b))
			Expect(sel.Messages).To(Equal(history))
			Expect(model.calls).To(HaveLen(1))
			Expect(model.calls[0][0].Role).To(Equal(chat.RoleSystem))
			Expect(model.calls[0][0].Content).To(ContainSubstring("coder: coder does coder things"))
		})

		It("requeries at most 1+max_retries times, then falls back to round robin", func() {
			model.answers = []string{"nobody in particular"}
			sel, err := newSelector(chat.SelectorOptions{MaxRetries: 2}).Select(ctx, a, state(a))
			Expect(err).NotTo(HaveOccurred())
			Expect(model.calls).To(HaveLen(3))
			Expect(sel.Agent).To(BeIdenticalTo(b))

			last := model.calls[2]
			Expect(last[len(last)-1].Content).To(ContainSubstring("You didn't choose a speaker"))
		})

		It("treats ambiguous answers as invalid", func() {
			model.answers = []string{"coder or tester", "tester"}
			sel, err := newSelector(chat.SelectorOptions{MaxRetries: 1}).Select(ctx, a, state(a))
			Expect(err).NotTo(HaveOccurred())
			Expect(sel.Agent).To(BeIdenticalTo(c))
			Expect(model.calls).To(HaveLen(2))
			second := model.calls[1]
			Expect(second[len(second)-1].Content).To(ContainSubstring("more than one name"))
		})

		It("falls back within the current eligible list", func() {
			model.answers = []string{"???"}
			graph := chat.TransitionGraph{"planner": {"coder", "tester"}, "coder": {"planner"}, "tester": {"planner"}}
			sel, err := newSelector(chat.SelectorOptions{Graph: graph}).Select(ctx, c, state(c))
			Expect(err).NotTo(HaveOccurred())
			Expect(sel.Agent).To(BeIdenticalTo(a))
			Expect(model.calls).To(BeEmpty())

			sel, err = newSelector(chat.SelectorOptions{Graph: graph}).Select(ctx, a, state(a))
			Expect(err).NotTo(HaveOccurred())
			Expect(model.calls).To(HaveLen(1))
			Expect([]chat.Agent{b, c}).To(ContainElement(sel.Agent))
		})

		It("matches names on word boundaries and with spaces for underscores", func() {
			unit := newAgent("unit_tester")
			tester := newAgent("tester_agent")
			model.answers = []string{"I pick Unit Tester."}
			sel, err := newSelector(chat.SelectorOptions{Agents: agents(unit, tester)}).Select(ctx, nil, state(nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(sel.Agent).To(BeIdenticalTo(unit))
		})

		It("seeds the exchange with the selection prompt when configured", func() {
			s := newSelector(chat.SelectorOptions{SelectPrompt: chat.DefaultSelectPrompt, Plan: "1. plan\n2. code"})
			_, err := s.Select(ctx, a, state(a))
			Expect(err).NotTo(HaveOccurred())
			call := model.calls[0]
			Expect(call).To(HaveLen(3))
			Expect(call[0].Content).To(ContainSubstring("1. plan"))
			Expect(call[1].Content).To(Equal("let us start"))
			Expect(call[2].Content).To(ContainSubstring("[planner coder tester]"))
		})
	})

	Describe("eligibility", func() {
		It("skips the model when the graph leaves a single candidate", func() {
			graph := chat.TransitionGraph{"planner": {"coder"}, "coder": {"tester"}, "tester": {"planner"}}
			sel, err := newSelector(chat.SelectorOptions{Graph: graph}).Select(ctx, a, state(a))
			Expect(err).NotTo(HaveOccurred())
			Expect(sel.Agent).To(BeIdenticalTo(b))
			Expect(model.calls).To(BeEmpty())
		})

		It("considers every agent when the last speaker is not in the graph", func() {
			graph := chat.TransitionGraph{"coder": {"tester"}, "tester": {"coder"}}
			s := newSelector(chat.SelectorOptions{Graph: graph})
			st := state(a)
			_, err := s.Select(ctx, a, st)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Eligible).To(HaveLen(3))
		})

		It("reports sink speakers", func() {
			graph := chat.TransitionGraph{"planner": {"coder"}}
			_, err := newSelector(chat.SelectorOptions{Graph: graph}).Select(ctx, b, state(b))
			Expect(errors.Is(err, chat.ErrSinkSpeaker)).To(BeTrue())
		})

		It("removes the last speaker when repeats are disallowed", func() {
			s := newSelector(chat.SelectorOptions{Agents: agents(a, b), Repeat: chat.RepeatPolicy{Disallow: true}})
			sel, err := s.Select(ctx, a, state(a))
			Expect(err).NotTo(HaveOccurred())
			Expect(sel.Agent).To(BeIdenticalTo(b))
			Expect(model.calls).To(BeEmpty())
		})

		It("honors the repeat exclusion set", func() {
			s := newSelector(chat.SelectorOptions{Agents: agents(a, b), Repeat: chat.RepeatPolicy{Exclude: []string{"coder"}}})
			sel, err := s.Select(ctx, b, state(b))
			Expect(err).NotTo(HaveOccurred())
			Expect(sel.Agent).To(BeIdenticalTo(a))
		})

		It("routes pending tool calls to the capable agent", func() {
			c.kind = chat.KindHumanProxy
			c.caps = chat.Capabilities{CanExecute: true, Tools: []string{"ask_user"}}
			history = append(history, chat.Message{Role: chat.RoleAssistant, Name: "coder", ToolCall: &chat.ToolCall{Name: "ask_user", Arguments: `{"question":"which port?"}`}})

			sel, err := newSelector(chat.SelectorOptions{}).Select(ctx, b, state(b))
			Expect(err).NotTo(HaveOccurred())
			Expect(sel.Agent).To(BeIdenticalTo(c))
			Expect(model.calls).To(BeEmpty())
		})

		It("fails when nobody can execute a pending tool call", func() {
			history = append(history, chat.Message{Role: chat.RoleAssistant, Name: "coder", ToolCall: &chat.ToolCall{Name: "deploy"}})
			_, err := newSelector(chat.SelectorOptions{}).Select(ctx, b, state(b))
			Expect(errors.Is(err, chat.ErrNoCapableAgent)).To(BeTrue())
		})
	})

	Describe("custom selection", func() {
		custom := func(sel chat.Selection, err error) chat.SelectFunc {
			return func(context.Context, chat.Agent, *chat.ChatState) (chat.Selection, error) {
				return sel, err
			}
		}

		It("returns exactly the chosen agent and messages", func() {
			summary := []chat.Message{text("planner", "summary only")}
			s := newSelector(chat.SelectorOptions{Custom: custom(chat.Selection{Agent: c, Messages: summary, ClearLog: true}, nil)})
			sel, err := s.Select(ctx, a, state(a))
			Expect(err).NotTo(HaveOccurred())
			Expect(sel.Agent).To(BeIdenticalTo(c))
			Expect(sel.Messages).To(Equal(summary))
			Expect(sel.ClearLog).To(BeTrue())
			Expect(model.calls).To(BeEmpty())
		})

		It("signals the end of the chat for an empty selection", func() {
			s := newSelector(chat.SelectorOptions{Custom: custom(chat.Selection{}, nil)})
			_, err := s.Select(ctx, a, state(a))
			Expect(err).To(MatchError(chat.ErrNoEligibleSpeaker))
		})

		It("rejects an agent without a message slice", func() {
			s := newSelector(chat.SelectorOptions{Custom: custom(chat.Selection{Agent: b}, nil)})
			_, err := s.Select(ctx, a, state(a))
			Expect(errors.Is(err, chat.ErrMissingMessages)).To(BeTrue())
		})

		It("rejects agents outside the group", func() {
			s := newSelector(chat.SelectorOptions{Custom: custom(chat.Selection{Agent: newAgent("stranger"), Messages: history}, nil)})
			_, err := s.Select(ctx, a, state(a))
			Expect(errors.Is(err, chat.ErrUnknownAgent)).To(BeTrue())
		})

		It("defers to a built-in strategy", func() {
			s := newSelector(chat.SelectorOptions{Custom: custom(chat.Selection{Strategy: chat.StrategyRoundRobin}, nil)})
			sel, err := s.Select(ctx, c, state(c))
			Expect(err).NotTo(HaveOccurred())
			Expect(sel.Agent).To(BeIdenticalTo(a))
			Expect(sel.Messages).To(Equal(history))
		})

		It("sees the eligible pool", func() {
			var seen []chat.Agent
			s := newSelector(chat.SelectorOptions{
				Repeat: chat.RepeatPolicy{Disallow: true},
				Custom: func(_ context.Context, _ chat.Agent, st *chat.ChatState) (chat.Selection, error) {
					seen = st.Eligible
					return chat.Selection{Agent: st.Eligible[0], Messages: st.Messages}, nil
				},
			})
			sel, err := s.Select(ctx, a, state(a))
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(Equal([]chat.Agent{b, c}))
			Expect(sel.Agent).To(BeIdenticalTo(b))
		})
	})

	Describe("built-in strategies", func() {
		It("rotates in roster order", func() {
			s := newSelector(chat.SelectorOptions{Method: chat.StrategyRoundRobin})
			sel, err := s.Select(ctx, c, state(c))
			Expect(err).NotTo(HaveOccurred())
			Expect(sel.Agent).To(BeIdenticalTo(a))
		})

		It("uses the injected random source", func() {
			s := newSelector(chat.SelectorOptions{Method: chat.StrategyRandom, Intn: func(n int) int { return n - 1 }})
			sel, err := s.Select(ctx, a, state(a))
			Expect(err).NotTo(HaveOccurred())
			Expect(sel.Agent).To(BeIdenticalTo(c))
		})

		It("asks the operator in manual mode", func() {
			answers := []string{"7", "2"}
			asker := chat.AskFunc(func(context.Context, string) (string, error) {
				answer := answers[0]
				answers = answers[1:]
				return answer, nil
			})
			s := newSelector(chat.SelectorOptions{Method: chat.StrategyManual, Asker: asker})
			sel, err := s.Select(ctx, a, state(a))
			Expect(err).NotTo(HaveOccurred())
			Expect(sel.Agent).To(BeIdenticalTo(b))
		})

		It("falls back to round robin after three invalid manual answers", func() {
			asked := 0
			asker := chat.AskFunc(func(context.Context, string) (string, error) {
				asked++
				return "somebody", nil
			})
			s := newSelector(chat.SelectorOptions{Method: chat.StrategyManual, Asker: asker})
			sel, err := s.Select(ctx, b, state(b))
			Expect(err).NotTo(HaveOccurred())
			Expect(asked).To(Equal(3))
			Expect(sel.Agent).To(BeIdenticalTo(c))
		})

		It("trims what the speaker sees when a visible tail is set", func() {
			history = []chat.Message{text("planner", "task"), text("coder", "1"), text("tester", "2"), text("coder", "3")}
			s := newSelector(chat.SelectorOptions{Method: chat.StrategyRoundRobin, VisibleTail: 1})
			sel, err := s.Select(ctx, b, state(b))
			Expect(err).NotTo(HaveOccurred())
			Expect(sel.Messages).To(Equal([]chat.Message{history[0], history[3]}))
		})
	})
})
