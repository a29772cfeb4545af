package recovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"devcrew/command"
	"devcrew/internal/logging"
	"devcrew/streamers"
)

// Status is the recovery result for one failed group
type Status string

const (
	StatusRepaired   Status = "repaired"
	StatusUnrepaired Status = "unrepaired"
	StatusDeclined   Status = "declined"
	StatusHalted     Status = "halted"
)

// ConfirmFunc is asked before a plan's fixes are applied
type ConfirmFunc func(group string, plan *Plan) (bool, error)

// FixResult is the outcome of one applied fix
type FixResult struct {
	Fix    Fix            `json:"fix"`
	Result command.Result `json:"result"`
}

// GroupOutcome records what happened to one failed group
type GroupOutcome struct {
	Group  string      `json:"group"`
	Status Status      `json:"status"`
	Plan   *Plan       `json:"plan,omitempty"`
	Fixes  []FixResult `json:"fixes,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// Outcome is the result of one recovery pass
type Outcome struct {
	Independent []string       `json:"independent"`
	Dependent   []string       `json:"dependent"`
	Groups      []GroupOutcome `json:"groups"`
	// Resumed holds the execution of groups that had been skipped because
	// of a group that is now repaired
	Resumed *command.Report `json:"resumed,omitempty"`
	// Report is the original report with repairs and the resumed run folded in
	Report *command.Report `json:"report"`
}

// Repaired returns the names of repaired groups in processing order
func (o *Outcome) Repaired() []string {
	var names []string
	for _, g := range o.Groups {
		if g.Status == StatusRepaired {
			names = append(names, g.Group)
		}
	}
	return names
}

// Succeeded reports whether the batch completed after recovery
func (o *Outcome) Succeeded() bool {
	return o.Report != nil && len(o.Report.FailedGroups) == 0 && len(o.Report.Names(command.StatusSkipped)) == 0
}

// Options configures an Engine
type Options struct {
	Executor *command.Executor
	Repairer Repairer
	// Confirm is optional; when set, a declined plan leaves its group failed
	Confirm ConfirmFunc
	Handler streamers.RecoveryHandler
	Logger  hclog.Logger
}

// Engine repairs failed command groups in a single pass
type Engine struct {
	executor *command.Executor
	repairer Repairer
	confirm  ConfirmFunc
	handler  streamers.RecoveryHandler
	logger   hclog.Logger
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Executor == nil {
		return nil, errors.New("recovery engine requires an executor")
	}
	if opts.Repairer == nil {
		return nil, errors.New("recovery engine requires a repairer")
	}
	e := &Engine{
		executor: opts.Executor,
		repairer: opts.Repairer,
		confirm:  opts.Confirm,
		handler:  opts.Handler,
		logger:   logging.OrNull(opts.Logger),
	}
	if e.handler == nil {
		e.handler = streamers.Nop{}
	}
	return e, nil
}

// Recover repairs the failed groups of report. Independent groups are
// handled first, then dependent groups in dependency order. A group with a
// failed ancestor that could not be repaired is halted without a repair
// attempt. Fixes are applied once; a failing fix is reported, never retried.
func (e *Engine) Recover(ctx context.Context, resp *command.Response, report *command.Report) (*Outcome, error) {
	independent, dependent := Partition(resp, report.FailedGroups)
	out := &Outcome{
		Independent: groupNames(independent),
		Dependent:   groupNames(dependent),
	}
	e.handler.RecoveryStarted(out.Independent, out.Dependent)
	e.logger.Info("starting recovery", "independent", out.Independent, "dependent", out.Dependent)

	unrepaired := make(map[string]bool)
	for _, fg := range append(append([]command.FailedGroup{}, independent...), dependent...) {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		if root := failedAncestor(resp, fg.GroupName, unrepaired); root != "" {
			reason := fmt.Sprintf("depends on unrepaired group '%s'", root)
			out.Groups = append(out.Groups, GroupOutcome{Group: fg.GroupName, Status: StatusHalted, Reason: reason})
			unrepaired[fg.GroupName] = true
			e.handler.GroupRecovered(fg.GroupName, false, reason)
			continue
		}

		g := e.repairGroup(ctx, resp, fg)
		out.Groups = append(out.Groups, g)
		if g.Status != StatusRepaired {
			unrepaired[fg.GroupName] = true
		}
		e.handler.GroupRecovered(g.Group, g.Status == StatusRepaired, g.Reason)
	}

	merged := cloneReport(report)
	for _, name := range out.Repaired() {
		if g := merged.Group(name); g != nil {
			g.Status = command.StatusSucceeded
		}
	}
	merged.FailedGroups = withoutGroups(merged.FailedGroups, out.Repaired())
	out.Report = merged

	resumed, err := e.resume(ctx, resp, merged)
	if resumed != nil {
		out.Resumed = resumed
		merged.Merge(resumed)
	}
	return out, err
}

func (e *Engine) repairGroup(ctx context.Context, resp *command.Response, fg command.FailedGroup) GroupOutcome {
	out := GroupOutcome{Group: fg.GroupName, Status: StatusUnrepaired}

	plan, err := e.repairer.Repair(ctx, NewRequest(resp, fg))
	if err != nil {
		out.Reason = fmt.Sprintf("repair failed: %v", err)
		e.logger.Warn("repair failed", "group", fg.GroupName, "error", err)
		return out
	}
	out.Plan = plan
	e.handler.PlanReceived(fg.GroupName, plan.Analysis, len(plan.FixedCommands), plan.AdditionalInstructions)

	if err := plan.Validate(); err != nil {
		out.Reason = err.Error()
		return out
	}

	if e.confirm != nil {
		ok, err := e.confirm(fg.GroupName, plan)
		if err != nil {
			out.Reason = fmt.Sprintf("confirm: %v", err)
			return out
		}
		if !ok {
			out.Status = StatusDeclined
			out.Reason = "fixes declined"
			return out
		}
	}

	for _, fix := range plan.FixedCommands {
		e.handler.FixStarted(fg.GroupName, fix.OriginalCommand, fix.FixedCommand, fix.Explanation)
		res := e.executor.RunCaptured(ctx, fg.GroupName, command.Command{
			Command: fix.FixedCommand,
			Comment: fix.Explanation,
		})
		out.Fixes = append(out.Fixes, FixResult{Fix: fix, Result: res})
		e.handler.FixFinished(fg.GroupName, fix.FixedCommand, res.Success, res.Error)
		if !res.Success {
			out.Reason = fmt.Sprintf("fix '%s' failed: %s", fix.FixedCommand, res.Error)
			return out
		}
	}

	out.Status = StatusRepaired
	return out
}

// resume re-runs the skipped groups whose dependencies are now all met,
// either by groups that succeeded or by groups in the resumed set itself.
func (e *Engine) resume(ctx context.Context, resp *command.Response, report *command.Report) (*command.Report, error) {
	done := make(map[string]bool)
	for _, name := range report.Names(command.StatusSucceeded) {
		done[name] = true
	}

	candidates := make(map[string]bool)
	for _, name := range report.Names(command.StatusSkipped) {
		candidates[name] = true
	}
	for changed := true; changed; {
		changed = false
		for name := range candidates {
			for _, dep := range resp.Group(name).DependsOn {
				if !done[dep] && !candidates[dep] {
					delete(candidates, name)
					changed = true
					break
				}
			}
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sub := &command.Response{Summary: resp.Summary}
	for _, g := range resp.Groups {
		if candidates[g.Name] {
			sub.Groups = append(sub.Groups, g)
		}
	}
	var satisfied []string
	for _, g := range resp.Groups {
		if done[g.Name] {
			satisfied = append(satisfied, g.Name)
		}
	}

	e.logger.Info("resuming skipped groups", "groups", groupNamesOf(sub.Groups))
	return e.executor.ExecuteWith(ctx, sub, command.RunOptions{Mode: command.ModeAll, Satisfied: satisfied})
}

// failedAncestor returns the first unrepaired group that name depends on
func failedAncestor(resp *command.Response, name string, unrepaired map[string]bool) string {
	for _, g := range resp.Groups {
		if unrepaired[g.Name] && resp.DependsOn(name, g.Name) {
			return g.Name
		}
	}
	return ""
}

func cloneReport(r *command.Report) *command.Report {
	c := &command.Report{ScriptPath: r.ScriptPath}
	c.Groups = append(c.Groups, r.Groups...)
	c.FailedGroups = append(c.FailedGroups, r.FailedGroups...)
	return c
}

func withoutGroups(failed []command.FailedGroup, names []string) []command.FailedGroup {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	var out []command.FailedGroup
	for _, fg := range failed {
		if !drop[fg.GroupName] {
			out = append(out, fg)
		}
	}
	return out
}

func groupNames(groups []command.FailedGroup) []string {
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.GroupName)
	}
	return names
}

func groupNamesOf(groups []command.Group) []string {
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	return names
}
