package command

// GroupStatus is the final state of a group within one execution
type GroupStatus string

const (
	StatusSucceeded  GroupStatus = "succeeded"
	StatusFailed     GroupStatus = "failed"
	StatusSkipped    GroupStatus = "skipped"
	StatusDeclined   GroupStatus = "declined"
	StatusUnresolved GroupStatus = "unresolved"
)

// CommandResult pairs a command with its outcome
type CommandResult struct {
	Command Command `json:"command"`
	Result  Result  `json:"result"`
}

// GroupResult holds the per-command results of one group
type GroupResult struct {
	Name     string          `json:"name"`
	Status   GroupStatus     `json:"status"`
	Commands []CommandResult `json:"commands"`
}

// Report is the outcome of executing a batch. Groups appear in the order
// they were resolved.
type Report struct {
	Groups       []GroupResult `json:"groups"`
	FailedGroups []FailedGroup `json:"failed_groups"`
	ScriptPath   string        `json:"script_path,omitempty"`
}

func (r *Report) add(g GroupResult) {
	r.Groups = append(r.Groups, g)
}

// Group returns the result for the named group, or nil
func (r *Report) Group(name string) *GroupResult {
	for i := range r.Groups {
		if r.Groups[i].Name == name {
			return &r.Groups[i]
		}
	}
	return nil
}

// Succeeded reports whether every group ran to completion without failure
func (r *Report) Succeeded() bool {
	for _, g := range r.Groups {
		if g.Status != StatusSucceeded {
			return false
		}
	}
	return true
}

// Failed reports whether any group failed, was skipped because of a failure
// or was left unresolved. Declined groups do not count.
func (r *Report) Failed() bool {
	for _, g := range r.Groups {
		switch g.Status {
		case StatusFailed, StatusSkipped, StatusUnresolved:
			return true
		}
	}
	return false
}

// Names returns the names of groups with the given status, in report order
func (r *Report) Names(status GroupStatus) []string {
	var names []string
	for _, g := range r.Groups {
		if g.Status == status {
			names = append(names, g.Name)
		}
	}
	return names
}

// Merge folds a resumed execution into r: later results replace earlier
// ones for the same group.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	for _, g := range other.Groups {
		if existing := r.Group(g.Name); existing != nil {
			*existing = g
			continue
		}
		r.add(g)
	}
	failed := append(r.FailedGroups, other.FailedGroups...)
	r.FailedGroups = nil
	seen := make(map[string]bool)
	for _, fg := range failed {
		if g := r.Group(fg.GroupName); g != nil && g.Status != StatusFailed {
			continue
		}
		if seen[fg.GroupName] {
			continue
		}
		seen[fg.GroupName] = true
		r.FailedGroups = append(r.FailedGroups, fg)
	}
}
