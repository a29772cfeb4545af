package agent

import (
	"strings"
	"unicode/utf8"

	"devcrew/chat"
)

// StopSequence ends generation right after a tool request
const StopSequence = "___STOP___"

const (
	actionOpen       = "<ACTION>"
	actionClose      = "</ACTION>"
	actionInputOpen  = "<ACTION_INPUT>"
	actionInputClose = "</ACTION_INPUT>"
)

// holdBack keeps enough of the visible text buffered that an opening tag
// split across chunks is never published
const holdBack = len(actionInputOpen) - 1

type parserState int

const (
	stateText parserState = iota
	stateAction
	stateActionInput
	stateDone
)

// ReplyParser splits a streamed model reply into visible text and an
// optional tool request. Visible text is forwarded to emit as it arrives.
type ReplyParser struct {
	emit        func(string)
	state       parserState
	buffer      strings.Builder
	text        strings.Builder
	action      string
	actionInput string
}

func NewReplyParser(emit func(chunk string)) *ReplyParser {
	if emit == nil {
		emit = func(string) {}
	}
	return &ReplyParser{emit: emit}
}

// ProcessChunk processes an incoming chunk of streamed content
func (p *ReplyParser) ProcessChunk(chunk string) {
	if p.state == stateDone {
		return
	}
	p.buffer.WriteString(chunk)
	p.processBuffer()
}

// Finish flushes held-back text. A tool input cut off by the stop sequence
// is taken as complete.
func (p *ReplyParser) Finish() {
	rest := p.buffer.String()
	p.buffer.Reset()
	switch p.state {
	case stateText:
		p.publish(strings.TrimSuffix(rest, StopSequence))
	case stateAction:
		p.action = strings.TrimSpace(rest)
	case stateActionInput:
		p.actionInput = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), StopSequence))
	}
	p.state = stateDone
}

// Text returns the visible part of the reply
func (p *ReplyParser) Text() string {
	return strings.TrimSpace(p.text.String())
}

// ToolCall returns the requested tool call, or nil
func (p *ReplyParser) ToolCall() *chat.ToolCall {
	if p.action == "" {
		return nil
	}
	args := p.actionInput
	if args == "" {
		args = "{}"
	}
	return &chat.ToolCall{Name: p.action, Arguments: args}
}

func (p *ReplyParser) publish(s string) {
	if s == "" {
		return
	}
	p.text.WriteString(s)
	p.emit(s)
}

func (p *ReplyParser) reset(content string) {
	p.buffer.Reset()
	p.buffer.WriteString(content)
}

func (p *ReplyParser) processBuffer() {
	content := p.buffer.String()

	for {
		switch p.state {
		case stateText:
			idx, tag := firstTag(content)
			if idx != -1 {
				p.publish(content[:idx])
				content = content[idx+len(tag):]
				p.reset(content)
				if tag == actionOpen {
					p.state = stateAction
				} else {
					p.state = stateActionInput
				}
				continue
			}
			if len(content) > holdBack {
				safeLen := len(content) - holdBack
				for safeLen > 0 && !utf8.RuneStart(content[safeLen]) {
					safeLen--
				}
				p.publish(content[:safeLen])
				content = content[safeLen:]
				p.reset(content)
			}
			return

		case stateAction:
			if idx := strings.Index(content, actionClose); idx != -1 {
				p.action = strings.TrimSpace(content[:idx])
				content = content[idx+len(actionClose):]
				p.reset(content)
				p.state = stateText
				continue
			}
			return

		case stateActionInput:
			if idx := strings.Index(content, actionInputClose); idx != -1 {
				p.actionInput = strings.TrimSpace(content[:idx])
				p.buffer.Reset()
				// Anything after a complete request is not part of the reply
				p.state = stateDone
			}
			return

		case stateDone:
			return
		}
	}
}

// firstTag returns the position of the earliest opening tag in s
func firstTag(s string) (int, string) {
	a := strings.Index(s, actionOpen)
	b := strings.Index(s, actionInputOpen)
	switch {
	case a == -1 && b == -1:
		return -1, ""
	case b == -1 || (a != -1 && a < b):
		return a, actionOpen
	default:
		return b, actionInputOpen
	}
}
