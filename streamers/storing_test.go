package streamers_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"devcrew/store"
	"devcrew/streamers"
)

type countingHandler struct {
	streamers.Nop
	messages int
	finished string
	commands int
	batches  []bool
}

func (c *countingHandler) MessageAppended(int, string, string, string) { c.messages++ }
func (c *countingHandler) ChatFinished(state string, _ int)            { c.finished = state }
func (c *countingHandler) CommandFinished(string, string, bool, string, string) {
	c.commands++
}
func (c *countingHandler) BatchFinished(success bool) { c.batches = append(c.batches, success) }

var _ = Describe("StoringChatHandler", func() {
	var (
		bundle *store.Bundle
		inner  *countingHandler
		h      *streamers.StoringChatHandler
	)

	BeforeEach(func() {
		bundle = store.NewMemoryBundle()
		inner = &countingHandler{}
		h = streamers.NewStoringChatHandler(inner, bundle.Chats, nil)
	})

	It("persists the run and its messages", func() {
		h.ChatStarted("build", []string{"proxy", "coder"})
		h.MessageAppended(1, "proxy", "user", "start")
		h.MessageAppended(2, "coder", "assistant", "TERMINATE")
		h.ChatFinished("terminated", 2)

		Expect(h.RunID()).NotTo(BeEmpty())
		run, err := bundle.Chats.GetRun(h.RunID())
		Expect(err).NotTo(HaveOccurred())
		Expect(run.Status).To(Equal(store.StatusCompleted))
		Expect(run.State).To(Equal("terminated"))
		Expect(run.Rounds).To(Equal(2))

		msgs, err := bundle.Chats.GetMessages(h.RunID())
		Expect(err).NotTo(HaveOccurred())
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[1].Content).To(Equal("TERMINATE"))

		Expect(inner.messages).To(Equal(2))
		Expect(inner.finished).To(Equal("terminated"))
	})

	It("records the last error on the run", func() {
		h.ChatStarted("build", []string{"a", "b"})
		h.Error(errors.New("model unavailable"))
		h.ChatFinished("interrupted", 1)

		run, err := bundle.Chats.GetRun(h.RunID())
		Expect(err).NotTo(HaveOccurred())
		Expect(run.Status).To(Equal(store.StatusFailed))
		Expect(*run.Error).To(Equal("model unavailable"))
	})

	It("still delegates when no run was started", func() {
		h.MessageAppended(1, "a", "user", "hi")
		Expect(inner.messages).To(Equal(1))
	})
})

var _ = Describe("StoringExecutionHandler", func() {
	It("records each batch linked to the current run", func() {
		bundle := store.NewMemoryBundle()
		chats := streamers.NewStoringChatHandler(nil, bundle.Chats, nil)
		inner := &countingHandler{}
		h := streamers.NewStoringExecutionHandler(inner, bundle.Executions, chats.RunID, nil)

		chats.ChatStarted("build", []string{"a", "b"})
		h.BatchStarted("all", 2)
		h.CommandFinished("setup", "mkdir app", true, "", "")
		h.CommandFinished("setup", "false", false, "", "exit status 1")
		h.CommandSkipped("deps", "npm i", "group 'setup' failed")
		h.BatchFinished(false)
		first := h.ExecutionID()

		h.BatchStarted("all", 1)
		h.CommandFinished("fix", "true", true, "", "")
		h.BatchFinished(true)

		infos, err := bundle.Executions.ListExecutions(chats.RunID())
		Expect(err).NotTo(HaveOccurred())
		Expect(infos).To(HaveLen(2))
		Expect(infos[0].ID).To(Equal(first))
		Expect(infos[0].Status).To(Equal(store.StatusFailed))
		Expect(infos[1].Status).To(Equal(store.StatusCompleted))

		recs, err := bundle.Executions.GetCommands(first)
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(HaveLen(3))
		Expect(recs[1].Status).To(Equal(store.CommandFailed))
		Expect(recs[1].Error).To(Equal("exit status 1"))
		Expect(recs[2].Status).To(Equal(store.CommandSkipped))

		Expect(inner.commands).To(Equal(3))
		Expect(inner.batches).To(Equal([]bool{false, true}))
	})
})

type stageRecorder struct {
	started   []string
	completed []string
}

func (s *stageRecorder) StageStarted(stage string, _, _ int)   { s.started = append(s.started, stage) }
func (s *stageRecorder) StageCompleted(stage string, _ string) { s.completed = append(s.completed, stage) }

var _ = Describe("Multi", func() {
	It("forwards each event to the handlers that accept it", func() {
		chatA := &countingHandler{}
		chatB := &countingHandler{}
		stages := &stageRecorder{}
		m := streamers.NewMulti(chatA, nil, stages, chatB)

		m.MessageAppended(1, "a", "user", "hi")
		m.CommandFinished("g", "ls", true, "", "")
		m.StageStarted("TemplateAgent", 0, 2)
		m.StageCompleted("TemplateAgent", "done")

		Expect(chatA.messages).To(Equal(1))
		Expect(chatB.messages).To(Equal(1))
		Expect(chatA.commands).To(Equal(1))
		Expect(stages.started).To(Equal([]string{"TemplateAgent"}))
		Expect(stages.completed).To(Equal([]string{"TemplateAgent"}))
	})
})
