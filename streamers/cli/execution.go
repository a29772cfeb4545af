package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"devcrew/streamers"
)

// ExecutionHandler implements streamers.ExecutionHandler and
// streamers.RecoveryHandler for terminal output
type ExecutionHandler struct {
	out    io.Writer
	styles styles
	// ShowOutput echoes captured command output line by line
	ShowOutput bool

	mu sync.Mutex
}

// NewExecutionHandler creates a CLI execution handler writing to out
func NewExecutionHandler(out io.Writer) *ExecutionHandler {
	if out == nil {
		out = os.Stdout
	}
	return &ExecutionHandler{out: out, styles: newStyles(out), ShowOutput: true}
}

func (s *ExecutionHandler) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *ExecutionHandler) BatchStarted(mode string, groupCount int) {
	s.printf("\n%s\n", s.styles.header.Render(fmt.Sprintf("Executing %d command groups (%s mode)", groupCount, mode)))
}

func (s *ExecutionHandler) BatchFinished(success bool) {
	if success {
		s.printf("%s\n\n", s.styles.success.Render("Batch completed"))
		return
	}
	s.printf("%s\n\n", s.styles.failure.Render("Batch finished with failures"))
}

func (s *ExecutionHandler) GroupStarted(group string, description string, commandCount int) {
	s.printf("\n%s%s--- Group: %s ---%s %s(%d commands)%s\n", ColorBold, ColorCyan, group, ColorReset, ColorGray, commandCount, ColorReset)
	if description != "" {
		s.printf("%s%s%s\n", ColorGray, description, ColorReset)
	}
}

func (s *ExecutionHandler) CommandStarted(group string, command string, comment string, commandType string, interactive bool) {
	if comment != "" {
		s.printf("%s# %s%s\n", ColorGray, comment, ColorReset)
	}
	tag := ""
	if interactive {
		tag = fmt.Sprintf(" %s[interactive]%s", ColorYellow, ColorReset)
	}
	s.printf("%s$ %s%s%s\n", ColorBold, command, ColorReset, tag)
}

func (s *ExecutionHandler) CommandOutput(group string, line string, stderr bool) {
	if !s.ShowOutput {
		return
	}
	color := ColorGray
	if stderr {
		color = ColorRed
	}
	s.printf("  %s%s%s\n", color, line, ColorReset)
}

func (s *ExecutionHandler) CommandFinished(group string, command string, success bool, output string, errText string) {
	if success {
		s.printf("%s✓%s %s\n", ColorGreen, ColorReset, truncate(command, 80))
		return
	}
	s.printf("%s✗ %s%s\n", ColorRed, truncate(command, 80), ColorReset)
	if errText != "" {
		s.printf("  %s%s%s\n", ColorRed, errText, ColorReset)
	}
}

func (s *ExecutionHandler) CommandSkipped(group string, command string, reason string) {
	s.printf("%s- skipped %s: %s%s\n", ColorYellow, truncate(command, 80), reason, ColorReset)
}

func (s *ExecutionHandler) GroupFinished(group string, success bool) {
	if success {
		s.printf("%s[Group '%s' completed]%s\n", ColorGreen, group, ColorReset)
		return
	}
	s.printf("%s%s[Group '%s' FAILED]%s\n", ColorBold, ColorRed, group, ColorReset)
}

func (s *ExecutionHandler) GroupDeclined(group string) {
	s.printf("%s[Group '%s' declined]%s\n", ColorYellow, group, ColorReset)
}

func (s *ExecutionHandler) DependencyCycle(unresolved []string) {
	s.printf("%sDependency cycle between: %s%s\n", ColorRed, strings.Join(unresolved, ", "), ColorReset)
}

func (s *ExecutionHandler) ScriptSaved(path string) {
	s.printf("%sScript saved to %s%s\n", ColorGreen, path, ColorReset)
}

func (s *ExecutionHandler) RecoveryStarted(independent []string, dependent []string) {
	s.printf("\n%s\n", s.styles.header.Render("Recovering failed groups"))
	if len(independent) > 0 {
		s.printf("%sIndependent: %s%s\n", ColorGray, strings.Join(independent, ", "), ColorReset)
	}
	if len(dependent) > 0 {
		s.printf("%sDependent: %s%s\n", ColorGray, strings.Join(dependent, ", "), ColorReset)
	}
}

func (s *ExecutionHandler) PlanReceived(group string, analysis string, fixCount int, instructions string) {
	s.printf("%s%s[%s] repair plan: %d fixes%s\n", ColorBold, ColorMagenta, group, fixCount, ColorReset)
	if analysis != "" {
		s.printf("%s%s%s%s\n", ColorItalic, ColorMagenta, analysis, ColorReset)
	}
	if instructions != "" {
		s.printf("%sManual steps: %s%s\n", ColorYellow, instructions, ColorReset)
	}
}

func (s *ExecutionHandler) FixStarted(group string, original string, fixed string, explanation string) {
	s.printf("%s- %s%s\n", ColorGray, original, ColorReset)
	s.printf("%s+ %s%s\n", ColorGreen, fixed, ColorReset)
	if explanation != "" {
		s.printf("%s  %s%s\n", ColorGray, explanation, ColorReset)
	}
}

func (s *ExecutionHandler) FixFinished(group string, fixed string, success bool, errText string) {
	if success {
		s.printf("%s✓ fix applied%s\n", ColorGreen, ColorReset)
		return
	}
	s.printf("%s✗ fix failed: %s%s\n", ColorRed, errText, ColorReset)
}

func (s *ExecutionHandler) GroupRecovered(group string, repaired bool, reason string) {
	if repaired {
		s.printf("%s\n", s.styles.success.Render(fmt.Sprintf("Group '%s' repaired", group)))
		return
	}
	s.printf("%s %s%s%s\n", s.styles.failure.Render(fmt.Sprintf("Group '%s' not repaired:", group)), ColorGray, reason, ColorReset)
}

var (
	_ streamers.ExecutionHandler = (*ExecutionHandler)(nil)
	_ streamers.RecoveryHandler  = (*ExecutionHandler)(nil)
	_ streamers.ChatHandler      = (*ChatHandler)(nil)
)
