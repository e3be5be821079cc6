package chat

import (
	"encoding/json"
	"strings"
)

const dataPrefix = "data: "

// Handler receives parsed stream events. OnDone and OnError are mutually
// exclusive and fire at most once per stream; OnChunk may fire any number of
// times before the terminal event.
type Handler struct {
	OnChunk func(content string)
	OnDone  func(fullContent string)
	OnError func(message string)
}

type streamEvent struct {
	Content string `json:"content"`
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Parser consumes a response body delivered as newline-delimited
// `data: <json>` lines, arriving in arbitrary fragments. It only ever
// consumes forward: a trailing line without its newline is withheld until
// later fragments complete it.
type Parser struct {
	handler Handler

	buf             strings.Builder
	lastParsedIndex int
	content         strings.Builder
	doneCalled      bool
}

// NewParser returns a parser dispatching to the given handler
func NewParser(handler Handler) *Parser {
	return &Parser{handler: handler}
}

// Feed appends a fragment of the response body and parses any newly
// completed lines. Malformed JSON on a line is swallowed; it means the line
// was split across fragments and will re-parse once complete.
func (p *Parser) Feed(fragment string) {
	if p.doneCalled {
		return
	}
	p.buf.WriteString(fragment)

	text := p.buf.String()
	fresh := text[p.lastParsedIndex:]

	end := strings.LastIndexByte(fresh, '\n')
	if end < 0 {
		return
	}
	p.lastParsedIndex += end + 1

	for _, line := range strings.Split(fresh[:end], "\n") {
		p.parseLine(line)
		if p.doneCalled {
			return
		}
	}
}

func (p *Parser) parseLine(line string) {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return
	}

	var ev streamEvent
	if err := json.Unmarshal([]byte(line[len(dataPrefix):]), &ev); err != nil {
		return
	}

	if ev.Error != "" {
		p.doneCalled = true
		if p.handler.OnError != nil {
			p.handler.OnError(ev.Error)
		}
		return
	}
	if ev.Content != "" {
		p.content.WriteString(ev.Content)
		if p.handler.OnChunk != nil {
			p.handler.OnChunk(ev.Content)
		}
	}
	if ev.Success {
		p.doneCalled = true
		if p.handler.OnDone != nil {
			p.handler.OnDone(p.content.String())
		}
	}
}

// Close finalizes the stream. If content arrived but no terminal event did,
// a done event is synthesized with the accumulated content; some servers
// close the stream instead of sending an explicit terminal line.
func (p *Parser) Close() {
	if p.doneCalled {
		return
	}
	if p.content.Len() == 0 {
		return
	}
	p.doneCalled = true
	if p.handler.OnDone != nil {
		p.handler.OnDone(p.content.String())
	}
}

// Content returns the accumulated assistant text so far
func (p *Parser) Content() string {
	return p.content.String()
}

// Done reports whether a terminal event has fired
func (p *Parser) Done() bool {
	return p.doneCalled
}
