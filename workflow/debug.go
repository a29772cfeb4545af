package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"devcrew/streamers"
)

// Event types written to events.log
const (
	EventChatStarted     = "chat_started"
	EventSpeakerSelected = "speaker_selected"
	EventMessage         = "message"
	EventHistoryCleared  = "history_cleared"
	EventChatFinished    = "chat_finished"
	EventChatError       = "chat_error"
	EventStageStarted    = "stage_started"
	EventStageCompleted  = "stage_completed"
)

// DebugLogger records chat events as JSON lines in events.log and keeps a
// markdown transcript per speaker. A logger created without a directory
// discards everything.
type DebugLogger struct {
	streamers.Nop

	dir     string
	enabled bool

	mu          sync.Mutex
	eventsFile  *os.File
	transcripts map[string]*os.File
}

func NewDebugLogger(dir string) (*DebugLogger, error) {
	if dir == "" {
		return &DebugLogger{}, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating debug directory: %w", err)
	}
	eventsFile, err := os.Create(filepath.Join(dir, "events.log"))
	if err != nil {
		return nil, fmt.Errorf("creating events file: %w", err)
	}
	return &DebugLogger{
		dir:         dir,
		enabled:     true,
		eventsFile:  eventsFile,
		transcripts: make(map[string]*os.File),
	}, nil
}

// Close closes every open file
func (d *DebugLogger) Close() {
	if !d.enabled {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.eventsFile.Close()
	for _, f := range d.transcripts {
		f.Close()
	}
	d.transcripts = map[string]*os.File{}
}

func (d *DebugLogger) IsEnabled() bool {
	return d.enabled
}

// Dir returns the debug directory, empty when disabled
func (d *DebugLogger) Dir() string {
	return d.dir
}

// TranscriptPath returns the markdown transcript file for speaker
func (d *DebugLogger) TranscriptPath(speaker string) string {
	if !d.enabled {
		return ""
	}
	safe := strings.NewReplacer("/", "_", "[", "_", "]", "", " ", "_").Replace(speaker)
	return filepath.Join(d.dir, fmt.Sprintf("transcript_%s.md", safe))
}

// LogEvent appends one JSON line to events.log
func (d *DebugLogger) LogEvent(eventType string, data map[string]any) {
	if !d.enabled {
		return
	}

	entry := map[string]any{
		"timestamp": time.Now().Format(time.RFC3339Nano),
		"event":     eventType,
	}
	for k, v := range data {
		entry[k] = v
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.eventsFile.Write(append(line, '\n'))
}

func (d *DebugLogger) StageStarted(stage string, index, total int) {
	d.LogEvent(EventStageStarted, map[string]any{"stage": stage, "index": index, "total": total})
}

func (d *DebugLogger) StageCompleted(stage string, summary string) {
	d.LogEvent(EventStageCompleted, map[string]any{"stage": stage, "summary": summary})
}

func (d *DebugLogger) ChatStarted(chatName string, participants []string) {
	d.LogEvent(EventChatStarted, map[string]any{"chat": chatName, "participants": participants})
}

func (d *DebugLogger) SpeakerSelected(round int, speaker string, visibleMessages int) {
	d.LogEvent(EventSpeakerSelected, map[string]any{"round": round, "speaker": speaker, "visible": visibleMessages})
}

func (d *DebugLogger) MessageAppended(round int, name string, role string, content string) {
	d.LogEvent(EventMessage, map[string]any{"round": round, "name": name, "role": role, "chars": len(content)})
	d.writeTranscript(round, name, role, content)
}

func (d *DebugLogger) HistoryCleared(kept int) {
	d.LogEvent(EventHistoryCleared, map[string]any{"kept": kept})
}

func (d *DebugLogger) ChatFinished(state string, rounds int) {
	d.LogEvent(EventChatFinished, map[string]any{"state": state, "rounds": rounds})
}

func (d *DebugLogger) Error(err error) {
	d.LogEvent(EventChatError, map[string]any{"error": err.Error()})
}

func (d *DebugLogger) writeTranscript(round int, name, role, content string) {
	if !d.enabled {
		return
	}
	f, err := d.transcript(name)
	if err != nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## [%s] Round %d (%s)\n\n", time.Now().Format("15:04:05"), round, role)
	if strings.HasPrefix(content, "{") || strings.HasPrefix(content, "<") {
		sb.WriteString("```\n" + content + "\n```\n\n")
	} else {
		sb.WriteString(content + "\n\n")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	f.WriteString(sb.String())
}

func (d *DebugLogger) transcript(speaker string) (*os.File, error) {
	path := d.TranscriptPath(speaker)

	d.mu.Lock()
	defer d.mu.Unlock()
	if f, ok := d.transcripts[path]; ok {
		return f, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(f, "# %s\n\n*Started: %s*\n\n---\n\n", speaker, time.Now().Format(time.RFC3339))
	d.transcripts[path] = f
	return f, nil
}

var (
	_ streamers.ChatHandler  = (*DebugLogger)(nil)
	_ streamers.StageHandler = (*DebugLogger)(nil)
)
