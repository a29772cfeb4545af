package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"strings"

	"github.com/hashicorp/go-hclog"

	"devcrew/internal/logging"
	"devcrew/streamers"
)

// Mode selects how a batch is carried out
type Mode string

const (
	ModeAll    Mode = "all"
	ModeStep   Mode = "step"
	ModeScript Mode = "script"
)

// ParseMode accepts the mode names used on the command line and in config
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAll, "":
		return ModeAll, nil
	case ModeStep:
		return ModeStep, nil
	case ModeScript, "save":
		return ModeScript, nil
	}
	return "", fmt.Errorf("unknown execution mode '%s' (expected 'all', 'step' or 'script')", s)
}

const (
	// SkippedAfterFailure is the error text of commands that follow a failure
	SkippedAfterFailure = "Skipped due to previous command failure in group"
	// InteractiveCompleted is the output recorded for uncaptured commands
	InteractiveCompleted = "Interactive command completed"
)

// DefaultInteractivePatterns are command prefixes known to prompt the user
var DefaultInteractivePatterns = []string{
	"npx create-react-app",
	"npm init",
	"pip install -e",
	"python setup.py",
	"yarn create",
	"create-next-app",
	"django-admin startproject",
}

// ConfirmFunc is asked before each group in step mode
type ConfirmFunc func(g Group) (bool, error)

// Options configures an Executor
type Options struct {
	// WorkDir is where commands run; it is created if missing
	WorkDir string
	// Shell runs each command as `<shell> -c <command>` (default "bash")
	Shell string
	// ProjectName names the script written in script mode
	ProjectName string
	// InteractivePatterns overrides DefaultInteractivePatterns when non-nil
	InteractivePatterns []string
	// Confirm is required for step mode
	Confirm ConfirmFunc

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	Handler streamers.ExecutionHandler
	Logger  hclog.Logger
}

// Executor runs command batches against the host
type Executor struct {
	workDir     string
	shell       string
	projectName string
	patterns    []string
	confirm     ConfirmFunc
	stdin       io.Reader
	stdout      io.Writer
	stderr      io.Writer
	handler     streamers.ExecutionHandler
	logger      hclog.Logger
}

// New creates an Executor, creating the working directory when needed
func New(opts Options) (*Executor, error) {
	e := &Executor{
		workDir:     opts.WorkDir,
		shell:       opts.Shell,
		projectName: opts.ProjectName,
		patterns:    opts.InteractivePatterns,
		confirm:     opts.Confirm,
		stdin:       opts.Stdin,
		stdout:      opts.Stdout,
		stderr:      opts.Stderr,
		handler:     opts.Handler,
		logger:      logging.OrNull(opts.Logger),
	}
	if e.workDir == "" {
		e.workDir = "."
	}
	if e.shell == "" {
		e.shell = "bash"
	}
	if e.projectName == "" {
		e.projectName = "project"
	}
	if e.patterns == nil {
		e.patterns = DefaultInteractivePatterns
	}
	if e.stdin == nil {
		e.stdin = os.Stdin
	}
	if e.stdout == nil {
		e.stdout = os.Stdout
	}
	if e.stderr == nil {
		e.stderr = os.Stderr
	}
	if e.handler == nil {
		e.handler = streamers.Nop{}
	}

	if _, err := os.Stat(e.workDir); os.IsNotExist(err) {
		if err := os.MkdirAll(e.workDir, 0755); err != nil {
			return nil, fmt.Errorf("create working directory %s: %w", e.workDir, err)
		}
		e.logger.Info("created working directory", "dir", e.workDir)
	}
	return e, nil
}

// WorkDir returns the directory commands run in
func (e *Executor) WorkDir() string {
	return e.workDir
}

// RunOptions controls a single Execute call
type RunOptions struct {
	Mode Mode
	// Satisfied names groups outside the batch (or already completed) that
	// count as executed for dependency purposes
	Satisfied []string
}

// Execute runs every group of resp in dependency order
func (e *Executor) Execute(ctx context.Context, resp *Response, mode Mode) (*Report, error) {
	return e.ExecuteWith(ctx, resp, RunOptions{Mode: mode})
}

// ExecuteWith is Execute with resume support. The returned report is
// non-nil whenever validation passed, including on a dependency cycle.
func (e *Executor) ExecuteWith(ctx context.Context, resp *Response, opts RunOptions) (*Report, error) {
	satisfied := make(map[string]bool, len(opts.Satisfied))
	for _, name := range opts.Satisfied {
		satisfied[name] = true
	}
	if err := resp.validateWith(satisfied); err != nil {
		return nil, err
	}

	e.handler.BatchStarted(string(opts.Mode), len(resp.Groups))
	report, err := e.executeBatch(ctx, resp, opts, satisfied)
	e.handler.BatchFinished(err == nil && report != nil && !report.Failed())
	return report, err
}

func (e *Executor) executeBatch(ctx context.Context, resp *Response, opts RunOptions, satisfied map[string]bool) (*Report, error) {
	if opts.Mode == ModeScript {
		path, err := e.SaveScript(resp)
		if err != nil {
			return nil, err
		}
		e.handler.ScriptSaved(path)
		return &Report{ScriptPath: path}, nil
	}
	if opts.Mode == ModeStep && e.confirm == nil {
		return nil, errors.New("step mode requires a confirmation function")
	}

	report := &Report{}
	deps := resp.dependencyMap()
	executed := maps.Clone(satisfied)
	// blocked maps a group that will never run to why
	blocked := make(map[string]string)
	// declined holds declined groups and the groups skipped only because of them
	declined := make(map[string]bool)

	var remaining []string
	for _, g := range resp.Groups {
		if !satisfied[g.Name] {
			remaining = append(remaining, g.Name)
		}
	}

	for len(remaining) > 0 {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		remaining = e.skipBlocked(resp, remaining, deps, blocked, declined, report)
		if len(remaining) == 0 {
			break
		}

		ready := readyGroups(remaining, deps, executed)
		if len(ready) == 0 {
			e.logger.Error("dependency cycle detected", "unresolved", remaining)
			for _, name := range remaining {
				report.add(unresolvedGroup(resp.Group(name)))
			}
			e.handler.DependencyCycle(remaining)
			return report, fmt.Errorf("%w: %v", ErrDependencyCycle, remaining)
		}

		name := ready[0]
		remaining = without(remaining, name)
		group := resp.Group(name)

		if opts.Mode == ModeStep {
			ok, err := e.confirm(*group)
			if err != nil {
				return report, fmt.Errorf("confirm group '%s': %w", name, err)
			}
			if !ok {
				blocked[name] = "was declined"
				declined[name] = true
				report.add(GroupResult{Name: name, Status: StatusDeclined})
				e.handler.GroupDeclined(name)
				continue
			}
		}

		gr, failed := e.runGroup(ctx, group)
		report.add(gr)
		if failed != nil {
			blocked[name] = "failed"
			report.FailedGroups = append(report.FailedGroups, *failed)
			continue
		}
		executed[name] = true
	}

	return report, nil
}

// skipBlocked records every remaining group that depends on a blocked group
// as skipped, repeating until no more groups are affected. A group whose
// blocking dependency traces back to a declined group is recorded as
// declined instead.
func (e *Executor) skipBlocked(resp *Response, remaining []string, deps map[string][]string, blocked map[string]string, declined map[string]bool, report *Report) []string {
	for changed := true; changed; {
		changed = false
		for _, name := range remaining {
			for _, dep := range deps[name] {
				reason, ok := blocked[dep]
				if !ok {
					continue
				}
				why := fmt.Sprintf("Skipped: dependency '%s' %s", dep, reason)
				status := StatusSkipped
				if declined[dep] {
					status = StatusDeclined
					declined[name] = true
				}
				report.add(e.skipGroup(resp.Group(name), status, why))
				blocked[name] = "was skipped"
				remaining = without(remaining, name)
				changed = true
				break
			}
			if changed {
				break
			}
		}
	}
	return remaining
}

func (e *Executor) skipGroup(g *Group, status GroupStatus, reason string) GroupResult {
	gr := GroupResult{Name: g.Name, Status: status}
	for _, c := range g.Commands {
		gr.Commands = append(gr.Commands, CommandResult{
			Command: c,
			Result:  Result{Skipped: true, Error: reason},
		})
		e.handler.CommandSkipped(g.Name, c.Command, reason)
	}
	return gr
}

func unresolvedGroup(g *Group) GroupResult {
	gr := GroupResult{Name: g.Name, Status: StatusUnresolved}
	for _, c := range g.Commands {
		gr.Commands = append(gr.Commands, CommandResult{
			Command: c,
			Result:  Result{Skipped: true, Error: "Skipped: unresolved dependency cycle"},
		})
	}
	return gr
}

// runGroup executes the group's commands in order. After the first failure
// the remaining commands are recorded as skipped and never started.
func (e *Executor) runGroup(ctx context.Context, g *Group) (GroupResult, *FailedGroup) {
	e.handler.GroupStarted(g.Name, g.Description, len(g.Commands))
	e.logger.Debug("running group", "group", g.Name, "commands", len(g.Commands))

	gr := GroupResult{Name: g.Name, Status: StatusSucceeded}
	var failed *FailedGroup

	for _, c := range g.Commands {
		if failed != nil {
			gr.Commands = append(gr.Commands, CommandResult{
				Command: c,
				Result:  Result{Skipped: true, Error: SkippedAfterFailure},
			})
			e.handler.CommandSkipped(g.Name, c.Command, SkippedAfterFailure)
			continue
		}

		res := e.Run(ctx, g.Name, c)
		gr.Commands = append(gr.Commands, CommandResult{Command: c, Result: res})
		if !res.Success {
			gr.Status = StatusFailed
			failed = &FailedGroup{
				GroupName:   g.Name,
				Description: g.Description,
				FailedCommands: []FailedCommand{{
					Command: c.Command,
					Error:   res.Error,
					Result:  res,
				}},
			}
			e.logger.Warn("command failed", "group", g.Name, "command", c.Command, "error", res.Error)
		}
	}

	e.handler.GroupFinished(g.Name, failed == nil)
	return gr, failed
}

// IsInteractive reports whether c needs the terminal attached
func (e *Executor) IsInteractive(c Command) bool {
	if c.Interactive {
		return true
	}
	for _, p := range e.patterns {
		if strings.Contains(c.Command, p) {
			return true
		}
	}
	return false
}

// Run executes one command. Interactive commands share the invoking
// terminal and are not captured; all others have stdout and stderr captured
// and streamed to the handler line by line.
func (e *Executor) Run(ctx context.Context, group string, c Command) Result {
	return e.run(ctx, group, c, e.IsInteractive(c))
}

// RunCaptured executes c with output captured regardless of its
// interactive flag or pattern matches
func (e *Executor) RunCaptured(ctx context.Context, group string, c Command) Result {
	return e.run(ctx, group, c, false)
}

func (e *Executor) run(ctx context.Context, group string, c Command, interactive bool) Result {
	e.handler.CommandStarted(group, c.Command, c.Comment, string(c.Type), interactive)

	cmd := exec.CommandContext(ctx, e.shell, "-c", c.Command)
	cmd.Dir = e.workDir

	var res Result
	if interactive {
		cmd.Stdin = e.stdin
		cmd.Stdout = e.stdout
		cmd.Stderr = e.stderr
		if err := cmd.Run(); err != nil {
			res = Result{Error: err.Error()}
		} else {
			res = Result{Success: true, Output: InteractiveCompleted}
		}
	} else {
		var stdout, stderr bytes.Buffer
		outLines := &lineWriter{emit: func(line string) { e.handler.CommandOutput(group, line, false) }}
		errLines := &lineWriter{emit: func(line string) { e.handler.CommandOutput(group, line, true) }}
		cmd.Stdout = io.MultiWriter(&stdout, outLines)
		cmd.Stderr = io.MultiWriter(&stderr, errLines)

		err := cmd.Run()
		outLines.Flush()
		errLines.Flush()

		res = Result{Success: err == nil, Output: stdout.String()}
		if err != nil {
			res.Error = strings.TrimSpace(stderr.String())
			if res.Error == "" {
				res.Error = err.Error()
			}
		} else {
			res.Error = stderr.String()
		}
	}

	e.handler.CommandFinished(group, c.Command, res.Success, res.Output, res.Error)
	return res
}

// lineWriter forwards complete lines to emit
type lineWriter struct {
	buf  []byte
	emit func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(strings.TrimRight(string(w.buf[:i]), "\r"))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *lineWriter) Flush() {
	if len(w.buf) > 0 {
		w.emit(string(w.buf))
		w.buf = nil
	}
}
