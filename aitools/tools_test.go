package aitools_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"devcrew/aitools"
)

type fixedInput struct {
	answer string
	err    error
	asked  []string
}

func (f *fixedInput) Ask(q string) (string, error) {
	f.asked = append(f.asked, q)
	return f.answer, f.err
}

func (f *fixedInput) Confirm(string) (bool, error) { return true, nil }

var _ = Describe("BashTool", func() {
	It("runs in its directory", func() {
		dir := GinkgoT().TempDir()
		tool := aitools.NewBashTool(dir)
		Expect(tool.Call(context.Background(), `{"command":"pwd"}`)).To(ContainSubstring(dir))
	})

	It("reports failures with their output", func() {
		out := aitools.NewBashTool("").Call(context.Background(), `{"command":"echo oops; exit 2"}`)
		Expect(out).To(HavePrefix("oops\n"))
		Expect(out).To(ContainSubstring("Error: exit status 2"))
	})

	It("validates its parameters", func() {
		tool := aitools.NewBashTool("")
		Expect(tool.Call(context.Background(), `{}`)).To(Equal("Error: command is required"))
		Expect(tool.Call(context.Background(), `nope`)).To(HavePrefix("Error: invalid parameters"))
	})

	It("stops a command at its timeout", func() {
		tool := &aitools.BashTool{Timeout: 50 * time.Millisecond}
		start := time.Now()
		out := tool.Call(context.Background(), `{"command":"sleep 5"}`)
		Expect(out).To(ContainSubstring("Error:"))
		Expect(time.Since(start)).To(BeNumerically("<", 4*time.Second))
	})
})

var _ = Describe("AskUserTool", func() {
	It("forwards the question and returns the answer", func() {
		input := &fixedInput{answer: "blue"}
		tool := aitools.NewAskUserTool(input)
		Expect(tool.Call(context.Background(), `{"question":"Color?"}`)).To(Equal("blue"))
		Expect(input.asked).To(Equal([]string{"Color?"}))
	})

	It("handles blank answers, input errors and missing questions", func() {
		Expect(aitools.NewAskUserTool(&fixedInput{answer: " "}).Call(context.Background(), `{"question":"?"}`)).To(Equal("The user gave no answer."))
		Expect(aitools.NewAskUserTool(&fixedInput{err: errors.New("closed")}).Call(context.Background(), `{"question":"?"}`)).To(Equal("Error: closed"))
		Expect(aitools.NewAskUserTool(&fixedInput{}).Call(context.Background(), `{"question":""}`)).To(Equal("Error: question is required"))
	})
})

var _ = Describe("Schema", func() {
	It("renders JSON and lists missing required properties", func() {
		schema := aitools.NewAskUserTool(nil).ToolPayloadSchema()
		Expect(schema.String()).To(ContainSubstring(`"required":["question"]`))
		Expect(schema.Missing(map[string]any{})).To(Equal([]string{"question"}))
		Expect(schema.Missing(map[string]any{"question": "x"})).To(BeEmpty())
	})

	It("finds tools by name", func() {
		tools := []aitools.Tool{aitools.NewBashTool(""), aitools.NewAskUserTool(nil)}
		Expect(aitools.Find(tools, "ask_user")).NotTo(BeNil())
		Expect(aitools.Find(tools, "http")).To(BeNil())
		Expect(aitools.Names(tools)).To(Equal([]string{"bash", "ask_user"}))
	})
})
