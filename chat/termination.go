package chat

import (
	"fmt"
	"strings"
)

// TerminationFunc reports whether a message ends the chat
type TerminationFunc func(msg Message) bool

// DefaultMarker and DefaultMarkerLines configure the default termination check
const (
	DefaultMarker      = "TERMINATE"
	DefaultMarkerLines = 15
)

// MarkerTermination matches marker case-insensitively within the last
// tailLines lines of a message
func MarkerTermination(marker string, tailLines int) TerminationFunc {
	marker = strings.ToUpper(marker)
	return func(msg Message) bool {
		lines := strings.Split(msg.Content, "\n")
		if tailLines > 0 && len(lines) > tailLines {
			lines = lines[len(lines)-tailLines:]
		}
		for _, line := range lines {
			if strings.Contains(strings.ToUpper(line), marker) {
				return true
			}
		}
		return false
	}
}

// ExitStatusTermination matches the exit status line a proxy agent writes
// after running a command batch
func ExitStatusTermination(code int) TerminationFunc {
	marker := fmt.Sprintf("exitcode: %d", code)
	return func(msg Message) bool {
		return strings.HasPrefix(strings.TrimSpace(msg.Content), marker)
	}
}

// AnyTermination ends the chat when any of fns matches
func AnyTermination(fns ...TerminationFunc) TerminationFunc {
	return func(msg Message) bool {
		for _, fn := range fns {
			if fn(msg) {
				return true
			}
		}
		return false
	}
}
