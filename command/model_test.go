package command_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"devcrew/command"
)

var _ = Describe("Response", func() {
	Describe("Validate", func() {
		It("accepts a well-formed batch", func() {
			resp := &command.Response{Groups: []command.Group{
				group("A", nil, "echo a"),
				group("B", []string{"A"}, "echo b"),
			}}
			Expect(resp.Validate()).To(Succeed())
		})

		DescribeTable("rejects malformed batches",
			func(resp *command.Response, msg string) {
				err := resp.Validate()
				Expect(errors.Is(err, command.ErrInvalidBatch)).To(BeTrue())
				Expect(err.Error()).To(ContainSubstring(msg))
			},
			Entry("empty", &command.Response{}, "no command groups"),
			Entry("unnamed group", &command.Response{Groups: []command.Group{group("", nil, "ls")}}, "name is required"),
			Entry("duplicate group", &command.Response{Groups: []command.Group{group("A", nil, "ls"), group("A", nil, "ls")}}, "duplicate group name 'A'"),
			Entry("empty command", &command.Response{Groups: []command.Group{group("A", nil, "")}}, "command 1 is empty"),
			Entry("unknown dependency", &command.Response{Groups: []command.Group{group("A", []string{"Z"}, "ls")}}, "unknown group 'Z'"),
			Entry("unknown type", &command.Response{Groups: []command.Group{{
				Name:     "A",
				Commands: []command.Command{{Command: "ls", Type: "harmless"}},
			}}}, "unknown command type 'harmless'"),
		)
	})

	It("orders groups stably by dependency", func() {
		resp := &command.Response{Groups: []command.Group{
			group("web", []string{"base"}, "ls"),
			group("api", []string{"base"}, "ls"),
			group("base", nil, "ls"),
		}}
		ordered, err := resp.Order()
		Expect(err).NotTo(HaveOccurred())
		var names []string
		for _, g := range ordered {
			names = append(names, g.Name)
		}
		Expect(names).To(Equal([]string{"base", "web", "api"}))
	})

	It("answers transitive dependency questions", func() {
		resp := &command.Response{Groups: []command.Group{
			group("A", nil, "ls"),
			group("B", []string{"A"}, "ls"),
			group("C", []string{"B"}, "ls"),
		}}
		Expect(resp.DependsOn("C", "A")).To(BeTrue())
		Expect(resp.DependsOn("A", "C")).To(BeFalse())
		Expect(resp.DependsOn("B", "B")).To(BeFalse())
	})
})

var _ = Describe("loading batches", func() {
	It("parses a fenced JSON block from a model reply", func() {
		reply := "Here is the plan:\n```json\n" +
			`{"groups":[{"name":"setup","description":"d","commands":[{"command":"mkdir app","comment":"make dir","type":"safe"}]}],"summary":"done"}` +
			"\n```\nTERMINATE"
		resp, err := command.ParseReply(reply)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Groups).To(HaveLen(1))
		Expect(resp.Groups[0].Commands[0].Command).To(Equal("mkdir app"))
		Expect(resp.Summary).To(Equal("done"))
	})

	It("parses a bare JSON object", func() {
		reply := `Sure. {"groups":[{"name":"a","commands":[{"command":"ls","comment":"list"}]}]}`
		resp, err := command.ParseReply(reply)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Groups[0].Name).To(Equal("a"))
	})

	It("parses a fenced YAML block", func() {
		reply := "```yaml\ngroups:\n  - name: a\n    description: first\n    commands:\n      - command: ls\n        comment: list\n```"
		resp, err := command.ParseReply(reply)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Groups[0].Description).To(Equal("first"))
	})

	It("reports replies without a batch", func() {
		_, err := command.ParseReply("All done, nothing to run.")
		Expect(errors.Is(err, command.ErrNoPayload)).To(BeTrue())
	})

	It("loads YAML batch files", func() {
		path := filepath.Join(GinkgoT().TempDir(), "batch.yaml")
		content := `
groups:
  - name: setup
    description: Create the project
    commands:
      - command: mkdir app
        comment: Make the app directory
        type: safe
  - name: deps
    description: Install dependencies
    depends_on: [setup]
    commands:
      - command: npm install
        comment: Install packages
        type: network
`
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())

		resp, err := command.LoadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Groups).To(HaveLen(2))
		Expect(resp.Groups[1].DependsOn).To(Equal([]string{"setup"}))
		Expect(resp.Groups[1].Commands[0].Type).To(Equal(command.TypeNetwork))
	})

	It("validates loaded files", func() {
		path := filepath.Join(GinkgoT().TempDir(), "batch.json")
		Expect(os.WriteFile(path, []byte(`{"groups":[]}`), 0644)).To(Succeed())
		_, err := command.LoadFile(path)
		Expect(errors.Is(err, command.ErrInvalidBatch)).To(BeTrue())
	})
})

var _ = Describe("summaries", func() {
	It("renders the command tree", func() {
		resp := &command.Response{Groups: []command.Group{
			{Name: "setup", Commands: []command.Command{{Comment: "Make dir"}, {Comment: "Init"}}},
			{Name: "deps", Commands: []command.Command{{Comment: "Install"}}},
			{Name: "tests", Commands: []command.Command{{Comment: "Run tests"}}},
		}}
		Expect(command.FormatSummary(resp)).To(Equal(
			"Command Execution\n" +
				"3 command groups detected.\n\n" +
				"┌─ setup:\n" +
				"│  • Make dir\n" +
				"│  • Init\n" +
				"├─ deps:\n" +
				"│  • Install\n" +
				"└─ tests:\n" +
				"   • Run tests\n"))
	})

	It("renders the failed group split", func() {
		independent := []command.FailedGroup{{GroupName: "install"}, {GroupName: "setup"}}
		Expect(command.FormatFailedSummary(independent, nil)).To(Equal(
			"Failed Group Summary:\n" +
				"2 failures detected.\n\n" +
				"┌─ Independent:\n" +
				"│  • install\n" +
				"│  • setup\n" +
				"└─ Dependent:\n" +
				"   (None)\n"))
	})

	It("lists failing commands with their errors", func() {
		out := command.FormatFailures([]command.FailedGroup{{
			GroupName:   "deps",
			Description: "Install dependencies",
			FailedCommands: []command.FailedCommand{{
				Command: "npm install",
				Error:   "ENOENT\n",
				Result:  command.Result{Output: "partial"},
			}},
		}})
		Expect(out).To(ContainSubstring("Group: deps"))
		Expect(out).To(ContainSubstring("  Command: npm install\n  Error: ENOENT\n  Output: partial"))
	})

	It("renders a report with statuses and truncated output", func() {
		var long []string
		for i := 1; i <= 25; i++ {
			long = append(long, fmt.Sprintf("line %d", i))
		}
		out := command.FormatReport(&command.Report{Groups: []command.GroupResult{
			{Name: "setup", Status: command.StatusSucceeded, Commands: []command.CommandResult{{
				Command: command.Command{Command: "mkdir app"},
				Result:  command.Result{Success: true, Output: strings.Join(long, "\n")},
			}}},
			{Name: "deps", Status: command.StatusFailed, Commands: []command.CommandResult{
				{Command: command.Command{Command: "npm install"}, Result: command.Result{Error: "exit status 1"}},
				{Command: command.Command{Command: "npm test"}, Result: command.Result{Skipped: true, Error: command.SkippedAfterFailure}},
			}},
		}})
		Expect(out).To(HavePrefix("[succeeded] setup\n  $ mkdir app (ok)\n    ... (5 lines omitted)\n    line 6\n"))
		Expect(out).NotTo(ContainSubstring("line 5\n"))
		Expect(out).To(ContainSubstring("[failed] deps\n  $ npm install (failed)\n    error: exit status 1\n  $ npm test (skipped)"))
		Expect(out).NotTo(HaveSuffix("\n"))
	})
})
