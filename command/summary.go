package command

import (
	"fmt"
	"strings"
)

// FormatSummary renders the batch as a tree of groups and command comments
func FormatSummary(resp *Response) string {
	var b strings.Builder
	n := len(resp.Groups)
	b.WriteString("Command Execution\n")
	fmt.Fprintf(&b, "%d command groups detected.\n\n", n)

	for i, g := range resp.Groups {
		prefix, indent := "├", "│  "
		switch {
		case i == 0:
			prefix = "┌"
		case i == n-1:
			prefix = "└"
		}
		if i == n-1 {
			indent = "   "
		}
		fmt.Fprintf(&b, "%s─ %s:\n", prefix, g.Name)
		for _, c := range g.Commands {
			fmt.Fprintf(&b, "%s• %s\n", indent, c.Comment)
		}
	}
	return b.String()
}

// FormatFailedSummary lists failed groups split by whether they depend on
// another failed group
func FormatFailedSummary(independent, dependent []FailedGroup) string {
	var b strings.Builder
	b.WriteString("Failed Group Summary:\n")
	fmt.Fprintf(&b, "%d failures detected.\n\n", len(independent)+len(dependent))

	b.WriteString("┌─ Independent:\n")
	if len(independent) == 0 {
		b.WriteString("│  (None)\n")
	}
	for _, g := range independent {
		fmt.Fprintf(&b, "│  • %s\n", g.GroupName)
	}

	b.WriteString("└─ Dependent:\n")
	if len(dependent) == 0 {
		b.WriteString("   (None)\n")
	}
	for _, g := range dependent {
		fmt.Fprintf(&b, "   • %s\n", g.GroupName)
	}
	return b.String()
}

// FormatFailures renders failed groups with each failing command and its
// error, for feeding back into a conversation
func FormatFailures(failed []FailedGroup) string {
	var b strings.Builder
	for _, g := range failed {
		fmt.Fprintf(&b, "Group: %s\n", g.GroupName)
		if g.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", g.Description)
		}
		for _, fc := range g.FailedCommands {
			fmt.Fprintf(&b, "  Command: %s\n", fc.Command)
			fmt.Fprintf(&b, "  Error: %s\n", strings.TrimSpace(fc.Error))
			if out := strings.TrimSpace(fc.Result.Output); out != "" {
				fmt.Fprintf(&b, "  Output: %s\n", out)
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// reportOutputLines bounds the output echoed per command in FormatReport
const reportOutputLines = 20

// FormatReport renders every group's status followed by its commands and
// their (truncated) output
func FormatReport(r *Report) string {
	var b strings.Builder
	for _, g := range r.Groups {
		fmt.Fprintf(&b, "[%s] %s\n", g.Status, g.Name)
		for _, cr := range g.Commands {
			mark := "ok"
			switch {
			case cr.Result.Skipped:
				mark = "skipped"
			case !cr.Result.Success:
				mark = "failed"
			}
			fmt.Fprintf(&b, "  $ %s (%s)\n", cr.Command.Command, mark)
			if out := tailLines(strings.TrimSpace(cr.Result.Output), reportOutputLines); out != "" {
				for _, line := range strings.Split(out, "\n") {
					fmt.Fprintf(&b, "    %s\n", line)
				}
			}
			if !cr.Result.Success && !cr.Result.Skipped && cr.Result.Error != "" {
				fmt.Fprintf(&b, "    error: %s\n", strings.TrimSpace(cr.Result.Error))
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func tailLines(s string, n int) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return fmt.Sprintf("... (%d lines omitted)\n%s", len(lines)-n, strings.Join(lines[len(lines)-n:], "\n"))
}
