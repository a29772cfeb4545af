package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"devcrew/streamers"
)

// ErrNoInput is returned when the input stream ends before an answer
var ErrNoInput = errors.New("no input available")

// InputHandler reads human answers from a line-oriented stream
type InputHandler struct {
	mu     sync.Mutex
	reader *bufio.Reader
	out    io.Writer
}

// NewInputHandler reads from in and prompts on out; nil means stdin/stdout
func NewInputHandler(in io.Reader, out io.Writer) *InputHandler {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &InputHandler{reader: bufio.NewReader(in), out: out}
}

func (h *InputHandler) Ask(question string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.out, "%s%s%s\n", ColorOrange, strings.TrimSpace(question), ColorReset)
	fmt.Fprintf(h.out, "%s>  %s", ColorGray, ColorReset)
	return h.readLine()
}

// Confirm accepts y or yes; anything else is a no
func (h *InputHandler) Confirm(prompt string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fmt.Fprintf(h.out, "%s%s%s %s[y/N]%s ", ColorBold, strings.TrimSpace(prompt), ColorReset, ColorGray, ColorReset)
	answer, err := h.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (h *InputHandler) readLine() (string, error) {
	line, err := h.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		if errors.Is(err, io.EOF) {
			return "", ErrNoInput
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

var _ streamers.InputHandler = (*InputHandler)(nil)
