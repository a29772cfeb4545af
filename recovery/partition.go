package recovery

import "devcrew/command"

// Partition splits failed groups into those that depend on no other failed
// group and those that do. Dependent groups are returned in dependency order
// so that each one follows the groups it depends on.
//
// An executor report never lists a failed group whose dependency also failed,
// since such groups are skipped. Dependent failures come from reports merged
// across recovery attempts or assembled by callers.
func Partition(resp *command.Response, failed []command.FailedGroup) (independent, dependent []command.FailedGroup) {
	for _, fg := range failed {
		isDependent := false
		for _, other := range failed {
			if other.GroupName != fg.GroupName && resp.DependsOn(fg.GroupName, other.GroupName) {
				isDependent = true
				break
			}
		}
		if isDependent {
			dependent = append(dependent, fg)
		} else {
			independent = append(independent, fg)
		}
	}

	if len(dependent) < 2 {
		return independent, dependent
	}

	ordered, err := resp.Order()
	if err != nil {
		return independent, dependent
	}
	sorted := make([]command.FailedGroup, 0, len(dependent))
	for _, g := range ordered {
		for _, fg := range dependent {
			if fg.GroupName == g.Name {
				sorted = append(sorted, fg)
			}
		}
	}
	return independent, sorted
}
