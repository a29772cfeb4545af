package logging

import (
	"os"

	"github.com/hashicorp/go-hclog"
)

// LevelEnv overrides the default subsystem log level
const LevelEnv = "DEVCREW_LOG_LEVEL"

// New returns a named subsystem logger writing to stderr. Only warnings and
// errors are shown unless DEVCREW_LOG_LEVEL asks for more.
func New(name string) hclog.Logger {
	level := hclog.Warn
	if v := os.Getenv(LevelEnv); v != "" {
		if l := hclog.LevelFromString(v); l != hclog.NoLevel {
			level = l
		}
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "devcrew." + name,
		Output: os.Stderr,
		Level:  level,
	})
}

// OrNull returns l, or a logger that discards everything when l is nil
func OrNull(l hclog.Logger) hclog.Logger {
	if l == nil {
		return hclog.NewNullLogger()
	}
	return l
}
