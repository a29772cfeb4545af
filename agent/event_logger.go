package agent

// EventLogger is the interface for logging structured events during a chat
type EventLogger interface {
	LogEvent(eventType string, data map[string]any)
}

// contextEventLogger wraps an EventLogger and adds context fields to every event
type contextEventLogger struct {
	inner  EventLogger
	fields map[string]any
}

// withAgent tags every event with the agent name. A nil logger drops events.
func withAgent(inner EventLogger, name string) EventLogger {
	if inner == nil {
		return nopEventLogger{}
	}
	return &contextEventLogger{inner: inner, fields: map[string]any{"agent": name}}
}

func (l *contextEventLogger) LogEvent(eventType string, data map[string]any) {
	merged := make(map[string]any, len(l.fields)+len(data))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range data {
		merged[k] = v
	}
	l.inner.LogEvent(eventType, merged)
}

type nopEventLogger struct{}

func (nopEventLogger) LogEvent(string, map[string]any) {}
