package agent_test

import (
	"context"
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"devcrew/agent"
	"devcrew/aitools"
	"devcrew/chat"
	"devcrew/command"
	"devcrew/llm"
)

var _ = Describe("ModelAgent", func() {
	var (
		provider *fakeProvider
		session  *llm.Session
		recorder *chunkRecorder
		events   *eventRecorder
		ctx      context.Context
	)

	BeforeEach(func() {
		provider = &fakeProvider{}
		session = llm.NewSession(provider, "test-model")
		recorder = &chunkRecorder{}
		events = &eventRecorder{}
		ctx = context.Background()
	})

	newAgent := func(stream bool, tools ...aitools.Tool) *agent.ModelAgent {
		a, err := agent.NewModelAgent(agent.ModelOptions{
			Name:         "coder",
			Description:  "Writes the code",
			SystemPrompt: "Prefer Go.",
			Session:      session,
			Tools:        tools,
			Stream:       stream,
			Handler:      recorder,
			Events:       events,
		})
		Expect(err).NotTo(HaveOccurred())
		return a
	}

	It("requires a name and a session", func() {
		_, err := agent.NewModelAgent(agent.ModelOptions{Session: session})
		Expect(err).To(HaveOccurred())
		_, err = agent.NewModelAgent(agent.ModelOptions{Name: "coder"})
		Expect(err).To(MatchError(ContainSubstring("session is required")))
	})

	It("describes itself as a model participant", func() {
		a := newAgent(false)
		Expect(a.Kind()).To(Equal(chat.KindModel))
		Expect(a.Capabilities().HasModel).To(BeTrue())
		Expect(a.Capabilities().CanExecute).To(BeFalse())
		Expect(session.SystemPrompts()).To(HaveLen(2))
		Expect(session.SystemPrompts()[0]).To(ContainSubstring("You are coder"))
		Expect(session.SystemPrompts()[0]).To(ContainSubstring("Writes the code"))
		Expect(session.SystemPrompts()[1]).To(Equal("Prefer Go."))
	})

	It("adds the tool format and stop sequence when tools are available", func() {
		provider.replies = []string{"ok"}
		a := newAgent(false, aitools.NewBashTool("."))
		Expect(session.SystemPrompts()[2]).To(ContainSubstring("### bash"))
		Expect(session.SystemPrompts()[2]).To(ContainSubstring(`"command"`))

		_, err := a.Generate(ctx, []chat.Message{{Role: chat.RoleUser, Name: "user", Content: "go"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(provider.lastRequest().StopSequences).To(Equal([]string{agent.StopSequence}))
	})

	It("maps the visible messages onto provider turns from its own point of view", func() {
		provider.replies = []string{"done"}
		a := newAgent(false)
		_, err := a.Generate(ctx, []chat.Message{
			{Role: chat.RoleUser, Name: "user", Content: "build a todo app"},
			{Role: chat.RoleAssistant, Name: "coder", Content: "on it"},
			{Role: chat.RoleAssistant, Name: "tester", Content: "tests pass"},
			{Role: chat.RoleSystem, Name: "chat", Content: "round 3"},
		})
		Expect(err).NotTo(HaveOccurred())

		msgs := provider.lastRequest().Messages[2:]
		Expect(msgs).To(Equal([]llm.Message{
			{Role: llm.RoleUser, Content: "user: build a todo app"},
			{Role: llm.RoleAssistant, Content: "on it"},
			{Role: llm.RoleUser, Content: "tester: tests pass"},
			{Role: llm.RoleSystem, Content: "round 3"},
		}))
	})

	It("streams visible text and attaches a proposed command batch", func() {
		reply := "Let's set up the project.\n```json\n" +
			`{"groups":[{"name":"setup","description":"create dirs","commands":[{"command":"mkdir app","comment":"make dir"}]}]}` +
			"\n```"
		provider.replies = []string{reply}
		provider.chunkSize = 5
		a := newAgent(true)

		msg, err := a.Generate(ctx, []chat.Message{{Role: chat.RoleUser, Name: "user", Content: "start"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Name).To(Equal("coder"))
		Expect(msg.Role).To(Equal(chat.RoleAssistant))
		Expect(msg.Content).To(Equal(reply))
		Expect(msg.ToolCall).To(BeNil())
		Expect(strings.Join(recorder.chunks["coder"], "")).To(Equal(reply))

		batch, ok := msg.Payload.(*command.Response)
		Expect(ok).To(BeTrue())
		Expect(batch.Groups[0].Name).To(Equal("setup"))
		Expect(events.types).To(ContainElement("batch_proposed"))
		Expect(events.events[0]["agent"]).To(Equal("coder"))
	})

	It("turns a tool request into a tool call without publishing the tags", func() {
		provider.replies = []string{"Asking.\n<ACTION>ask_user</ACTION>\n<ACTION_INPUT>{\"question\":\"Name?\"}</ACTION_INPUT>"}
		a := newAgent(true)

		msg, err := a.Generate(ctx, []chat.Message{{Role: chat.RoleUser, Name: "user", Content: "start"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.ToolCall).To(Equal(&chat.ToolCall{Name: "ask_user", Arguments: `{"question":"Name?"}`}))
		Expect(msg.Payload).To(BeNil())
		Expect(strings.Join(recorder.chunks["coder"], "")).NotTo(ContainSubstring("<ACTION"))
	})

	It("notes an unanswered tool request of its own", func() {
		provider.replies = []string{"retrying"}
		a := newAgent(false)
		_, err := a.Generate(ctx, []chat.Message{
			{Role: chat.RoleUser, Name: "user", Content: "start"},
			{Role: chat.RoleAssistant, Name: "coder", Content: "<ACTION>bash</ACTION><ACTION_INPUT>{}</ACTION_INPUT>"},
		})
		Expect(err).NotTo(HaveOccurred())
		msgs := provider.lastRequest().Messages
		Expect(msgs[len(msgs)-1].Role).To(Equal(llm.RoleUser))
		Expect(msgs[len(msgs)-1].Content).To(ContainSubstring("Observation unavailable"))
	})

	It("rejects an empty message slice", func() {
		a := newAgent(false)
		_, err := a.Generate(ctx, []chat.Message{})
		Expect(errors.Is(err, agent.ErrNoMessages)).To(BeTrue())
	})

	It("keeps received messages until cleared", func() {
		a := newAgent(false)
		for _, c := range []string{"one", "two", "three"} {
			Expect(a.Receive(ctx, chat.Message{Name: "user", Content: c})).To(Succeed())
		}
		a.ClearMemory(2)
		Expect(a.Memory()).To(HaveLen(2))
		Expect(a.Memory()[0].Content).To(Equal("two"))
		a.ClearMemory(0)
		Expect(a.Memory()).To(BeEmpty())
	})

	It("serves repeated requests from an installed cache", func() {
		provider.replies = []string{"first"}
		a := newAgent(false)
		cache := llm.NewMemoryCache()
		Expect(a.SetCache(cache)).To(BeNil())

		msgs := []chat.Message{{Role: chat.RoleUser, Name: "user", Content: "same question"}}
		first, err := a.Generate(ctx, msgs)
		Expect(err).NotTo(HaveOccurred())
		second, err := a.Generate(ctx, msgs)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Content).To(Equal(first.Content))
		Expect(provider.requests).To(HaveLen(1))
	})
})

var _ = Describe("SelectionModel", func() {
	It("speaks as the selector and trims the answer", func() {
		provider := &fakeProvider{replies: []string{"  coder \n"}}
		complete := agent.SelectionModel(llm.NewSession(provider, "m"))

		answer, err := complete(context.Background(), []chat.Message{
			{Role: chat.RoleSystem, Content: "pick one"},
			{Role: chat.RoleAssistant, Name: "planner", Content: "plan ready"},
			{Role: chat.RoleAssistant, Name: chat.SelectorName, Content: "planner and coder"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(answer).To(Equal("coder"))
		Expect(provider.lastRequest().Messages).To(Equal([]llm.Message{
			{Role: llm.RoleSystem, Content: "pick one"},
			{Role: llm.RoleUser, Content: "planner: plan ready"},
			{Role: llm.RoleAssistant, Content: "planner and coder"},
		}))
	})
})

var _ = Describe("SystemAgent", func() {
	It("repeats its content and ends the chat without it", func() {
		s := agent.NewSystemAgent("task", "States the task", "Build a CLI")
		msg, err := s.Generate(context.Background(), []chat.Message{{Content: "x"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Role).To(Equal(chat.RoleSystem))
		Expect(msg.Content).To(Equal("Build a CLI"))
		Expect(s.Kind()).To(Equal(chat.KindSystem))

		empty := agent.NewSystemAgent("quiet", "", "")
		msg, err = empty.Generate(context.Background(), []chat.Message{{Content: "x"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg).To(BeNil())
	})
})
