// Package jigscript classifies the free-form text printed by the jig script
// into typed progress events.
//
// The script's output is irregular prose, so matching is done with substring
// regular expressions from a fixed rule table (see rules.go). Unmatched text is
// never an error: it is passed on as raw output.
package jigscript

import (
	"strings"

	"github.com/flashjig/flashjig/model"
)

// ParseLine classifies a single line of primary output given the active
// channel and returns the emitted events together with the updated active
// channel.
//
// Check and outcome markers seen while no channel is active are not
// attributed to any board; the line is returned as raw output instead.
func ParseLine(line string, active int) ([]model.Event, int) {
	events, active, _ := parseLine(line, active)
	return events, active
}

// Parse classifies every line of text, including an unterminated last line.
func Parse(text string, active int) ([]model.Event, int) {
	var events []model.Event
	for _, line := range strings.Split(text, "\n") {
		var evs []model.Event
		evs, active = ParseLine(line, active)
		events = append(events, evs...)
	}
	return events, active
}

// DiagnosticEvents wraps every non-blank line of diagnostic output as a tool
// error. Diagnostic text is never interpreted.
func DiagnosticEvents(text string) []model.Event {
	var events []model.Event
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		events = append(events, model.ToolError(line))
	}
	return events
}

func parseLine(line string, active int) ([]model.Event, int, bool) {
	line = strings.TrimSuffix(line, "\r")
	if strings.TrimSpace(line) == "" {
		return nil, active, false
	}

	var events []model.Event
	for _, f := range families {
		for _, r := range f.rules {
			m := r.pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if r.needsChannel && active < 1 {
				break
			}
			ev, ok := r.build(m, active)
			if !ok {
				continue
			}
			if r.selects {
				active = ev.PCB
			}
			events = append(events, ev)
			break
		}
	}

	if len(events) == 0 {
		return []model.Event{model.RawLine(line)}, active, false
	}
	return events, active, true
}

// Parser classifies one output stream that arrives in arbitrary chunks. It
// keeps the active channel and any trailing partial line between calls.
// A Parser is not safe for concurrent use.
type Parser struct {
	// Echo additionally emits every recognized line as raw output, after the
	// events derived from it.
	Echo bool

	active int
	lines  LineBuffer
}

// NewParser creates a parser with no active channel.
func NewParser(echo bool) *Parser {
	return &Parser{Echo: echo}
}

// Active returns the last channel selected on the stream, 0 if none.
func (p *Parser) Active() int {
	return p.active
}

// Feed consumes a chunk and returns the events of every line it completes.
func (p *Parser) Feed(chunk string) []model.Event {
	var events []model.Event
	for _, line := range p.lines.Feed(chunk) {
		events = append(events, p.line(line)...)
	}
	return events
}

// Flush classifies a buffered partial line. Call it at end of stream.
func (p *Parser) Flush() []model.Event {
	rest := p.lines.Flush()
	if rest == "" {
		return nil
	}
	return p.line(rest)
}

func (p *Parser) line(line string) []model.Event {
	events, active, matched := parseLine(line, p.active)
	p.active = active
	if matched && p.Echo {
		events = append(events, model.RawLine(strings.TrimSuffix(line, "\r")))
	}
	return events
}
