package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
)

// ChatHandler implements streamers.ChatHandler for terminal output
type ChatHandler struct {
	out      io.Writer
	spinner  *spinner
	renderer *glamour.TermRenderer
	styles   styles

	mu      sync.Mutex
	answers map[string]*strings.Builder
}

// NewChatHandler creates a CLI chat handler writing to out. animate enables
// the thinking spinner and terminal-aware markdown styles.
func NewChatHandler(out io.Writer, animate bool) *ChatHandler {
	if out == nil {
		out = os.Stdout
	}
	style := glamour.WithStandardStyle("notty")
	if animate {
		style = glamour.WithAutoStyle()
	}
	renderer, _ := glamour.NewTermRenderer(style, glamour.WithWordWrap(100))

	h := &ChatHandler{
		out:      out,
		renderer: renderer,
		styles:   newStyles(out),
		answers:  make(map[string]*strings.Builder),
	}
	if animate {
		h.spinner = newSpinner(out)
	}
	return h
}

func (s *ChatHandler) ChatStarted(chatName string, participants []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, s.styles.header.Render("Group chat: "+chatName))
	fmt.Fprintln(s.out, s.styles.muted.Render("Participants: "+strings.Join(participants, ", ")))
	fmt.Fprintln(s.out)
}

func (s *ChatHandler) SpeakerSelected(round int, speaker string, visibleMessages int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "%s[round %d] next speaker: %s%s%s %s(%d messages visible)%s\n",
		ColorGray, round, ColorReset+ColorBold, speaker, ColorReset, ColorGray, visibleMessages, ColorReset)
}

func (s *ChatHandler) AgentThinking(agent string) {
	if s.spinner != nil {
		s.spinner.Start(fmt.Sprintf("%s is thinking...", agent))
	}
}

func (s *ChatHandler) PublishAnswerChunk(agent string, chunk string) {
	// Buffer chunks - spinner keeps running
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.answers[agent]
	if !ok {
		b = &strings.Builder{}
		s.answers[agent] = b
	}
	b.WriteString(chunk)
}

func (s *ChatHandler) MessageAppended(round int, name string, role string, content string) {
	s.stopSpinner()

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.answers[name]; ok && content == "" {
		content = b.String()
	}
	delete(s.answers, name)

	color := ColorOrange
	if role == "user" {
		color = ColorLightBrown
	}
	fmt.Fprintf(s.out, "%s%s%s%s\n", ColorBold, color, name, ColorReset)
	if strings.TrimSpace(content) == "" {
		fmt.Fprintf(s.out, "%s(empty reply)%s\n\n", ColorGray, ColorReset)
		return
	}
	fmt.Fprintf(s.out, "%s\n\n", s.render(content))
}

func (s *ChatHandler) HistoryCleared(kept int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "%sChat history cleared, %d messages kept%s\n\n", ColorGray, kept, ColorReset)
}

func (s *ChatHandler) ChatFinished(state string, rounds int) {
	s.stopSpinner()
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.out, s.styles.muted.Render(fmt.Sprintf("Chat %s after %d rounds", state, rounds)))
}

func (s *ChatHandler) Error(err error) {
	s.stopSpinner()
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "%sError: %v%s\n", ColorRed, err, ColorReset)
}

// StageStarted announces a build stage
func (s *ChatHandler) StageStarted(stage string, index, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "\n%s\n\n", s.styles.stage.Render(fmt.Sprintf("Stage %d/%d: %s", index+1, total, stage)))
}

// StageCompleted reports a finished build stage and its summary
func (s *ChatHandler) StageCompleted(stage string, summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, "%s\n", s.styles.success.Render(fmt.Sprintf("Stage %s completed", stage)))
	if summary != "" {
		fmt.Fprintf(s.out, "%s%s%s\n", ColorGray, truncate(summary, 300), ColorReset)
	}
}

func (s *ChatHandler) render(content string) string {
	rendered := content
	if s.renderer != nil {
		if out, err := s.renderer.Render(content); err == nil {
			rendered = out
		}
	}
	// Glamour adds leading/trailing newlines - trim them
	return strings.TrimSpace(rendered)
}

func (s *ChatHandler) stopSpinner() {
	if s.spinner != nil {
		s.spinner.Stop()
	}
}

// spinner handles the loading animation
type spinner struct {
	out     io.Writer
	frames  []string
	stop    chan struct{}
	stopped chan struct{}
	mu      sync.Mutex
	running bool
}

func newSpinner(out io.Writer) *spinner {
	return &spinner{
		out:    out,
		frames: []string{"◐", "◓", "◑", "◒"},
	}
}

func (s *spinner) Start(message string) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.stopped)
		i := 0
		for {
			select {
			case <-s.stop:
				fmt.Fprint(s.out, "\r\033[K") // Clear line
				return
			default:
				fmt.Fprintf(s.out, "\r%s%s%s %s", ColorGray, s.frames[i%len(s.frames)], ColorReset, message)
				i++
				time.Sleep(80 * time.Millisecond)
			}
		}
	}()
}

func (s *spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stop)
	<-s.stopped
}
