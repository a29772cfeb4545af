package chat_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"devcrew/chat"
	"devcrew/llm"
	"devcrew/streamers"
)

type recordingChatHandler struct {
	streamers.Nop
	selected []string
	cleared  []int
	finished string
}

func (h *recordingChatHandler) SpeakerSelected(_ int, speaker string, _ int) {
	h.selected = append(h.selected, speaker)
}

func (h *recordingChatHandler) HistoryCleared(kept int) {
	h.cleared = append(h.cleared, kept)
}

func (h *recordingChatHandler) ChatFinished(state string, _ int) {
	h.finished = state
}

var _ = Describe("Runner", func() {
	var (
		ctx     context.Context
		a, b    *fakeAgent
		handler *recordingChatHandler
	)

	BeforeEach(func() {
		ctx = context.Background()
		a, b = newAgent("a"), newAgent("b")
		handler = &recordingChatHandler{}
	})

	newRunner := func(cfg chat.Config) *chat.Runner {
		if cfg.Agents == nil {
			cfg.Agents = agents(a, b)
		}
		if cfg.Selection.Method == "" && cfg.Selection.Custom == nil {
			cfg.Selection.Method = chat.StrategyRoundRobin
		}
		cfg.Handler = handler
		r, err := chat.NewRunner(cfg)
		Expect(err).NotTo(HaveOccurred())
		return r
	}

	It("rejects a chat with one agent", func() {
		_, err := chat.NewRunner(chat.Config{Agents: agents(a)})
		Expect(errors.Is(err, chat.ErrTooFewAgents)).To(BeTrue())
	})

	It("stops in the round where the termination marker appears", func() {
		b.replies = []string{"one"}
		a.replies = []string{"done\nTERMINATE"}

		res, err := newRunner(chat.Config{MaxRounds: 10}).Run(ctx, a, text("a", "start"), chat.RunOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.State).To(Equal(chat.StateTerminated))
		Expect(res.Rounds).To(Equal(3))
		Expect(res.Messages).To(HaveLen(3))
		Expect(res.LastMessage.Name).To(Equal("a"))
		Expect(handler.selected).To(Equal([]string{"b", "a"}))
		Expect(handler.finished).To(Equal("terminated"))
	})

	It("never exceeds the round budget", func() {
		res, err := newRunner(chat.Config{MaxRounds: 4}).Run(ctx, a, text("a", "start"), chat.RunOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.State).To(Equal(chat.StateExhausted))
		Expect(res.Rounds).To(Equal(4))
		Expect(res.Messages).To(HaveLen(4))
		Expect(a.generations() + b.generations()).To(Equal(3))
	})

	It("ends when an agent has nothing to say", func() {
		b.generate = func(context.Context, []chat.Message) (*chat.Message, error) { return nil, nil }
		res, err := newRunner(chat.Config{}).Run(ctx, a, text("a", "start"), chat.RunOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.State).To(Equal(chat.StateTerminated))
		Expect(res.Rounds).To(Equal(1))
	})

	It("ends gracefully when the custom selector finds no speaker", func() {
		r := newRunner(chat.Config{Selection: chat.SelectorOptions{
			Custom: func(context.Context, chat.Agent, *chat.ChatState) (chat.Selection, error) {
				return chat.Selection{}, nil
			},
		}})
		res, err := r.Run(ctx, a, text("a", "start"), chat.RunOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.State).To(Equal(chat.StateTerminated))
	})

	It("propagates selection errors", func() {
		boom := errors.New("selector broke")
		r := newRunner(chat.Config{Selection: chat.SelectorOptions{
			Custom: func(context.Context, chat.Agent, *chat.ChatState) (chat.Selection, error) {
				return chat.Selection{}, boom
			},
		}})
		res, err := r.Run(ctx, a, text("a", "start"), chat.RunOptions{})
		Expect(err).To(MatchError(boom))
		Expect(res.State).To(Equal(chat.StateRunning))
	})

	It("broadcasts every message to everyone but its speaker", func() {
		c := newAgent("c")
		a.replies = []string{"TERMINATE"}
		_, err := newRunner(chat.Config{Agents: agents(a, b, c)}).Run(ctx, a, text("a", "start"), chat.RunOptions{})
		Expect(err).NotTo(HaveOccurred())

		// a -> b -> c -> a(TERMINATE)
		Expect(a.received).To(HaveLen(2))
		Expect(b.received).To(HaveLen(3))
		Expect(c.received).To(HaveLen(3))
	})

	It("only broadcasts the first round under a custom selector", func() {
		turn := 0
		r := newRunner(chat.Config{MaxRounds: 4, Selection: chat.SelectorOptions{
			Custom: func(_ context.Context, last chat.Agent, st *chat.ChatState) (chat.Selection, error) {
				turn++
				next := chat.Agent(b)
				if last.Name() == "b" {
					next = a
				}
				return chat.Selection{Agent: next, Messages: st.Messages[len(st.Messages)-1:]}, nil
			},
		}})
		_, err := r.Run(ctx, a, text("a", "start"), chat.RunOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(turn).To(Equal(3))
		Expect(a.received).To(BeEmpty())
		Expect(b.received).To(HaveLen(1))
		Expect(b.seen[0]).To(HaveLen(1))
	})

	It("clears the log when a selection asks for it", func() {
		r := newRunner(chat.Config{MaxRounds: 3, Selection: chat.SelectorOptions{
			Custom: func(_ context.Context, last chat.Agent, st *chat.ChatState) (chat.Selection, error) {
				return chat.Selection{Agent: b, Messages: []chat.Message{}, ClearLog: true}, nil
			},
		}})
		res, err := r.Run(ctx, a, text("a", "start"), chat.RunOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Messages).To(HaveLen(1))
		Expect(res.Messages[0].Name).To(Equal("b"))
	})

	It("truncates history on CLEAR HISTORY and strips the marker", func() {
		b.replies = []string{"one", "CLEAR HISTORY 1\nnoted"}
		a.replies = []string{"two", "TERMINATE"}

		res, err := newRunner(chat.Config{EnableClearHistory: true}).Run(ctx, a, text("a", "start"), chat.RunOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(handler.cleared).To(Equal([]int{1}))

		var contents []string
		for _, m := range res.Messages {
			contents = append(contents, m.Content)
		}
		Expect(contents).To(Equal([]string{"two", "noted", "TERMINATE"}))
		Expect(b.received).To(HaveLen(2))
	})

	It("leaves CLEAR HISTORY alone unless enabled", func() {
		b.replies = []string{"CLEAR HISTORY"}
		a.replies = []string{"TERMINATE"}
		res, err := newRunner(chat.Config{}).Run(ctx, a, text("a", "start"), chat.RunOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Messages).To(HaveLen(3))
		Expect(handler.cleared).To(BeEmpty())
	})

	It("introduces participants once", func() {
		a.replies = []string{"TERMINATE"}
		_, err := newRunner(chat.Config{SendIntroductions: true}).Run(ctx, a, text("a", "start"), chat.RunOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.received[0].Content).To(ContainSubstring("b: b does b things"))
		Expect(b.received[0].Role).To(Equal(chat.RoleSystem))
	})

	It("swaps the run cache in and restores the previous one", func() {
		own := llm.NewMemoryCache()
		shared := llm.NewMemoryCache()
		cached := &cachingAgent{fakeAgent: newAgent("b", "TERMINATE"), cache: own}

		r := newRunner(chat.Config{Agents: []chat.Agent{a, cached}})
		_, err := r.Run(ctx, a, text("a", "start"), chat.RunOptions{Cache: shared})
		Expect(err).NotTo(HaveOccurred())
		Expect(cached.usedCache).To(BeIdenticalTo(shared))
		Expect(cached.cache).To(BeIdenticalTo(own))
	})

	Describe("interrupts", func() {
		It("hands control to the admin", func() {
			admin := newAgent("admin", "taking over\nTERMINATE")
			interrupts := make(chan struct{}, 1)
			interrupts <- struct{}{}

			r := newRunner(chat.Config{Agents: agents(a, b, admin), Admin: "admin"})
			res, err := r.Run(ctx, a, text("a", "start"), chat.RunOptions{Stepper: chat.SyncStepper{Interrupts: interrupts}})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.State).To(Equal(chat.StateTerminated))
			Expect(res.Messages[1].Name).To(Equal("admin"))
			Expect(admin.seen[0]).To(HaveLen(1))
			Expect(b.generations()).To(BeZero())
		})

		It("propagates without an admin", func() {
			interrupts := make(chan struct{}, 1)
			interrupts <- struct{}{}

			res, err := newRunner(chat.Config{Admin: "nobody"}).Run(ctx, a, text("a", "start"), chat.RunOptions{Stepper: chat.SyncStepper{Interrupts: interrupts}})
			Expect(errors.Is(err, chat.ErrInterrupted)).To(BeTrue())
			Expect(res.State).To(Equal(chat.StateInterrupted))
			Expect(res.Rounds).To(Equal(1))
		})

		It("keeps a reply that finished before the interrupt was seen", func() {
			admin := newAgent("admin", "TERMINATE")
			interrupts := make(chan struct{}, 1)
			b.generate = func(context.Context, []chat.Message) (*chat.Message, error) {
				interrupts <- struct{}{}
				return &chat.Message{Role: chat.RoleAssistant, Name: "b", Content: "b reply"}, nil
			}

			r := newRunner(chat.Config{Agents: agents(a, b, admin), Admin: "admin"})
			res, err := r.Run(ctx, a, text("a", "start"), chat.RunOptions{Stepper: chat.SyncStepper{Interrupts: interrupts}})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Messages).To(HaveLen(3))
			Expect(res.Messages[1].Content).To(Equal("b reply"))
			Expect(res.Messages[2].Name).To(Equal("admin"))
		})

		It("preempts a blocked generation in the async form", func() {
			admin := newAgent("admin", "TERMINATE")
			started := make(chan struct{})
			cancelled := make(chan struct{})
			b.generate = func(ctx context.Context, _ []chat.Message) (*chat.Message, error) {
				close(started)
				<-ctx.Done()
				close(cancelled)
				return nil, ctx.Err()
			}

			interrupts := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				<-started
				interrupts <- struct{}{}
			}()

			r := newRunner(chat.Config{Agents: agents(a, b, admin), Admin: "admin"})
			res, err := r.Run(ctx, a, text("a", "start"), chat.RunOptions{Stepper: chat.AsyncStepper{Interrupts: interrupts}})
			Expect(err).NotTo(HaveOccurred())
			Expect(cancelled).To(BeClosed())
			Expect(res.State).To(Equal(chat.StateTerminated))
			Expect(res.LastMessage.Name).To(Equal("admin"))
		})

		It("keeps the same turn order in both forms", func() {
			order := func(stepper chat.Stepper) []string {
				x, y, z := newAgent("x"), newAgent("y"), newAgent("z")
				r, err := chat.NewRunner(chat.Config{
					Agents:    agents(x, y, z),
					MaxRounds: 6,
					Selection: chat.SelectorOptions{Method: chat.StrategyRoundRobin},
				})
				Expect(err).NotTo(HaveOccurred())
				res, err := r.Run(ctx, x, text("x", "go"), chat.RunOptions{Stepper: stepper})
				Expect(err).NotTo(HaveOccurred())
				var names []string
				for _, m := range res.Messages {
					names = append(names, m.Name)
				}
				return names
			}
			Expect(order(chat.SyncStepper{})).To(Equal([]string{"x", "y", "z", "x", "y", "z"}))
			Expect(order(chat.AsyncStepper{})).To(Equal(order(chat.SyncStepper{})))
		})

		It("reports cancellation as an interrupted run", func() {
			cctx, cancel := context.WithCancel(ctx)
			b.generate = func(ctx context.Context, _ []chat.Message) (*chat.Message, error) {
				cancel()
				return nil, ctx.Err()
			}
			res, err := newRunner(chat.Config{}).Run(cctx, a, text("a", "start"), chat.RunOptions{Stepper: chat.AsyncStepper{}})
			Expect(err).To(HaveOccurred())
			Expect(res.State).To(Equal(chat.StateInterrupted))
		})
	})
})
