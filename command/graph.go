package command

import "fmt"

// readyGroups returns the names of remaining groups whose dependencies are
// all satisfied, in batch order.
func readyGroups(remaining []string, deps map[string][]string, satisfied map[string]bool) []string {
	var ready []string
	for _, name := range remaining {
		ok := true
		for _, dep := range deps[name] {
			if !satisfied[dep] {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, name)
		}
	}
	return ready
}

func (r *Response) dependencyMap() map[string][]string {
	deps := make(map[string][]string, len(r.Groups))
	for _, g := range r.Groups {
		deps[g.Name] = g.DependsOn
	}
	return deps
}

// Order returns the groups in a stable dependency order: at every step the
// first ready group in batch order is taken. A cycle yields ErrDependencyCycle
// naming the unresolved groups.
func (r *Response) Order() ([]Group, error) {
	deps := r.dependencyMap()
	done := make(map[string]bool, len(r.Groups))
	remaining := make([]string, 0, len(r.Groups))
	for _, g := range r.Groups {
		remaining = append(remaining, g.Name)
	}

	var ordered []Group
	for len(remaining) > 0 {
		ready := readyGroups(remaining, deps, done)
		if len(ready) == 0 {
			return ordered, fmt.Errorf("%w: %v", ErrDependencyCycle, remaining)
		}
		next := ready[0]
		done[next] = true
		ordered = append(ordered, *r.Group(next))
		remaining = without(remaining, next)
	}
	return ordered, nil
}

// DependsOn reports whether group depends on other, directly or transitively
func (r *Response) DependsOn(group, other string) bool {
	deps := r.dependencyMap()
	seen := make(map[string]bool)
	var walk func(name string) bool
	walk = func(name string) bool {
		if seen[name] {
			return false
		}
		seen[name] = true
		for _, dep := range deps[name] {
			if dep == other || walk(dep) {
				return true
			}
		}
		return false
	}
	return walk(group)
}

func without(names []string, name string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
