package command_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"devcrew/command"
)

var _ = Describe("Executor", func() {
	var (
		dir     string
		handler *recordingHandler
		exec    *command.Executor
		ctx     context.Context
	)

	newExecutor := func(confirm command.ConfirmFunc) *command.Executor {
		e, err := command.New(command.Options{
			WorkDir:     dir,
			ProjectName: "My App",
			Confirm:     confirm,
			Handler:     handler,
		})
		Expect(err).NotTo(HaveOccurred())
		return e
	}

	readOrder := func() string {
		data, err := os.ReadFile(filepath.Join(dir, "order.txt"))
		if os.IsNotExist(err) {
			return ""
		}
		Expect(err).NotTo(HaveOccurred())
		return string(data)
	}

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		handler = &recordingHandler{}
		ctx = context.Background()
		exec = newExecutor(nil)
	})

	It("creates a missing working directory", func() {
		nested := filepath.Join(dir, "a", "b")
		e, err := command.New(command.Options{WorkDir: nested})
		Expect(err).NotTo(HaveOccurred())
		Expect(e.WorkDir()).To(Equal(nested))
		Expect(nested).To(BeADirectory())
	})

	It("isolates a failure to the rest of its group and skips dependents", func() {
		resp := &command.Response{Groups: []command.Group{
			group("A", nil, "echo one", "exit 3", "echo never"),
			group("B", []string{"A"}, "echo b"),
			group("C", []string{"B"}, "echo c"),
		}}

		report, err := exec.Execute(ctx, resp, command.ModeAll)
		Expect(err).NotTo(HaveOccurred())

		a := report.Group("A")
		Expect(a.Status).To(Equal(command.StatusFailed))
		Expect(a.Commands[0].Result.Success).To(BeTrue())
		Expect(a.Commands[0].Result.Output).To(Equal("one\n"))
		Expect(a.Commands[1].Result.Success).To(BeFalse())
		Expect(a.Commands[1].Result.Skipped).To(BeFalse())
		Expect(a.Commands[2].Result.Skipped).To(BeTrue())
		Expect(a.Commands[2].Result.Error).To(Equal(command.SkippedAfterFailure))

		for _, name := range []string{"B", "C"} {
			g := report.Group(name)
			Expect(g.Status).To(Equal(command.StatusSkipped))
			for _, c := range g.Commands {
				Expect(c.Result.Skipped).To(BeTrue())
				Expect(c.Result.Success).To(BeFalse())
			}
		}
		Expect(handler.started).To(Equal([]string{"A"}))

		Expect(report.FailedGroups).To(HaveLen(1))
		Expect(report.FailedGroups[0].GroupName).To(Equal("A"))
		Expect(report.FailedGroups[0].FailedCommands).To(HaveLen(1))
		Expect(report.FailedGroups[0].FailedCommands[0].Command).To(Equal("exit 3"))
		Expect(report.Succeeded()).To(BeFalse())
	})

	It("keeps running groups that do not depend on a failed one", func() {
		resp := &command.Response{Groups: []command.Group{
			group("broken", nil, "false"),
			group("independent", nil, "echo ok >> order.txt"),
		}}

		report, err := exec.Execute(ctx, resp, command.ModeAll)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Group("independent").Status).To(Equal(command.StatusSucceeded))
		Expect(readOrder()).To(Equal("ok\n"))
	})

	It("runs groups strictly after their dependencies", func() {
		resp := &command.Response{Groups: []command.Group{
			group("C", []string{"B"}, "echo C >> order.txt"),
			group("B", []string{"A"}, "echo B >> order.txt"),
			group("A", nil, "echo A >> order.txt"),
			group("D", []string{"A", "C"}, "echo D >> order.txt"),
		}}

		report, err := exec.Execute(ctx, resp, command.ModeAll)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Succeeded()).To(BeTrue())
		Expect(readOrder()).To(Equal("A\nB\nC\nD\n"))
		Expect(handler.started).To(Equal([]string{"A", "B", "C", "D"}))
	})

	It("aborts on a cycle without running any cyclic group", func() {
		resp := &command.Response{Groups: []command.Group{
			group("X", []string{"Y"}, "echo X >> order.txt"),
			group("Y", []string{"X"}, "echo Y >> order.txt"),
			group("Z", nil, "echo Z >> order.txt"),
		}}

		report, err := exec.Execute(ctx, resp, command.ModeAll)
		Expect(errors.Is(err, command.ErrDependencyCycle)).To(BeTrue())
		Expect(report).NotTo(BeNil())
		Expect(readOrder()).To(Equal("Z\n"))
		Expect(report.Names(command.StatusUnresolved)).To(Equal([]string{"X", "Y"}))
		Expect(handler.cycle).To(Equal([]string{"X", "Y"}))
	})

	It("rejects batches that reference unknown groups", func() {
		resp := &command.Response{Groups: []command.Group{
			group("A", []string{"missing"}, "echo A"),
		}}
		_, err := exec.Execute(ctx, resp, command.ModeAll)
		Expect(errors.Is(err, command.ErrInvalidBatch)).To(BeTrue())
	})

	It("accepts dependencies satisfied by an earlier run", func() {
		resp := &command.Response{Groups: []command.Group{
			group("B", []string{"A"}, "echo B >> order.txt"),
		}}
		report, err := exec.ExecuteWith(ctx, resp, command.RunOptions{
			Mode:      command.ModeAll,
			Satisfied: []string{"A"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Succeeded()).To(BeTrue())
		Expect(readOrder()).To(Equal("B\n"))
	})

	It("leaves the satisfied groups of the caller untouched", func() {
		resp := &command.Response{Groups: []command.Group{
			group("B", []string{"A"}, "true"),
			group("C", []string{"B"}, "true"),
		}}
		satisfied := []string{"A"}
		report, err := exec.ExecuteWith(ctx, resp, command.RunOptions{Mode: command.ModeAll, Satisfied: satisfied})
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Names(command.StatusSucceeded)).To(Equal([]string{"B", "C"}))
		Expect(satisfied).To(Equal([]string{"A"}))

		again, err := exec.ExecuteWith(ctx, resp, command.RunOptions{Mode: command.ModeAll, Satisfied: satisfied})
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Names(command.StatusSucceeded)).To(Equal([]string{"B", "C"}))
	})

	It("streams captured output line by line", func() {
		resp := &command.Response{Groups: []command.Group{
			group("A", nil, "printf 'l1\\nl2\\nl3'"),
		}}
		_, err := exec.Execute(ctx, resp, command.ModeAll)
		Expect(err).NotTo(HaveOccurred())
		Expect(handler.output).To(Equal([]string{"l1", "l2", "l3"}))
	})

	It("reports stderr as the error of a failed command", func() {
		res := exec.Run(ctx, "g", cmd("echo boom >&2; exit 1"))
		Expect(res.Success).To(BeFalse())
		Expect(res.Error).To(Equal("boom"))
	})

	Describe("step mode", func() {
		It("removes declined groups without counting them as failed", func() {
			exec = newExecutor(func(g command.Group) (bool, error) {
				return g.Name != "A", nil
			})
			resp := &command.Response{Groups: []command.Group{
				group("A", nil, "echo A >> order.txt"),
				group("B", []string{"A"}, "echo B >> order.txt"),
				group("C", nil, "echo C >> order.txt"),
			}}

			report, err := exec.Execute(ctx, resp, command.ModeStep)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.FailedGroups).To(BeEmpty())
			Expect(report.Group("A").Status).To(Equal(command.StatusDeclined))
			Expect(report.Group("B").Status).To(Equal(command.StatusDeclined))
			Expect(report.Group("B").Commands[0].Result.Skipped).To(BeTrue())
			Expect(report.Group("C").Status).To(Equal(command.StatusSucceeded))
			Expect(report.Failed()).To(BeFalse())
			Expect(handler.declined).To(Equal([]string{"A"}))
			Expect(readOrder()).To(Equal("C\n"))
		})

		It("still counts groups skipped after a failure as failed", func() {
			exec = newExecutor(func(g command.Group) (bool, error) {
				return g.Name != "C", nil
			})
			resp := &command.Response{Groups: []command.Group{
				group("A", nil, "exit 1"),
				group("B", []string{"A"}, "echo B >> order.txt"),
				group("C", nil, "echo C >> order.txt"),
			}}

			report, err := exec.Execute(ctx, resp, command.ModeStep)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Group("B").Status).To(Equal(command.StatusSkipped))
			Expect(report.Group("C").Status).To(Equal(command.StatusDeclined))
			Expect(report.Failed()).To(BeTrue())
		})

		It("requires a confirmation function", func() {
			resp := &command.Response{Groups: []command.Group{group("A", nil, "true")}}
			_, err := exec.Execute(ctx, resp, command.ModeStep)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("script mode", func() {
		It("writes an executable script and runs nothing", func() {
			resp := &command.Response{Groups: []command.Group{
				group("A", nil, "touch ran.txt"),
			}}

			report, err := exec.Execute(ctx, resp, command.ModeScript)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.ScriptPath).To(Equal(filepath.Join(dir, "my_app_setup.sh")))
			Expect(filepath.Join(dir, "ran.txt")).NotTo(BeAnExistingFile())

			info, err := os.Stat(report.ScriptPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0755)))
		})
	})

	Describe("interactive detection", func() {
		It("honors the flag and the known prompt-driven commands", func() {
			Expect(exec.IsInteractive(command.Command{Command: "ls", Interactive: true})).To(BeTrue())
			Expect(exec.IsInteractive(command.Command{Command: "npx create-react-app web"})).To(BeTrue())
			Expect(exec.IsInteractive(command.Command{Command: "django-admin startproject site"})).To(BeTrue())
			Expect(exec.IsInteractive(command.Command{Command: "npm install"})).To(BeFalse())
		})
	})
})

var _ = Describe("ParseMode", func() {
	It("maps mode names", func() {
		Expect(command.ParseMode("")).To(Equal(command.ModeAll))
		Expect(command.ParseMode("STEP")).To(Equal(command.ModeStep))
		Expect(command.ParseMode("save")).To(Equal(command.ModeScript))
		_, err := command.ParseMode("later")
		Expect(err).To(HaveOccurred())
	})
})
