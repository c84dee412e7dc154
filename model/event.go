package model

// EventType identifies the kind of a progress event on the wire
type EventType string

const (
	EventChannelSelected EventType = "channel_selected"
	EventFlashing        EventType = "flashing"
	EventCheckResult     EventType = "check_result"
	EventFlashComplete   EventType = "flash_complete"
	EventFlashFailed     EventType = "flash_failed"
	EventRawOutput       EventType = "raw_output"
	EventError           EventType = "error"
	EventComplete        EventType = "complete"
	EventAllDone         EventType = "all_done"
)

// Event is one typed, ordered unit of the server-to-client progress protocol.
// Fields not relevant to the event type are left at their zero value and
// omitted from the JSON encoding.
type Event struct {
	// Type of the event
	Type EventType `json:"type"`
	// 1-based board number (channel_selected, flashing, check_result, flash_complete, flash_failed)
	PCB int `json:"pcb,omitempty"`
	// Check name (check_result)
	Check string `json:"check,omitempty"`
	// Check outcome (check_result)
	Passed *bool `json:"passed,omitempty"`
	// Human-readable text (raw_output, error)
	Message string `json:"message,omitempty"`
	// Exit status of the external tool (complete)
	Code *int `json:"code,omitempty"`
	// Set on errors that ended the run
	Fatal bool `json:"fatal,omitempty"`
}

func ChannelSelected(pcb int) Event {
	return Event{Type: EventChannelSelected, PCB: pcb}
}

func Flashing(pcb int) Event {
	return Event{Type: EventFlashing, PCB: pcb}
}

func CheckResult(pcb int, name string, passed bool) Event {
	return Event{Type: EventCheckResult, PCB: pcb, Check: name, Passed: &passed}
}

// FlashOutcome maps the tool-reported verdict for a board to
// flash_complete or flash_failed.
func FlashOutcome(pcb int, success bool) Event {
	if success {
		return Event{Type: EventFlashComplete, PCB: pcb}
	}
	return Event{Type: EventFlashFailed, PCB: pcb}
}

func RawLine(text string) Event {
	return Event{Type: EventRawOutput, Message: text}
}

// ToolError wraps text read from the tool's diagnostic stream.
func ToolError(text string) Event {
	return Event{Type: EventError, Message: text}
}

// Fatal reports an error that ended the run.
func Fatal(message string) Event {
	return Event{Type: EventError, Message: message, Fatal: true}
}

func Complete(code int) Event {
	return Event{Type: EventComplete, Code: &code}
}

// AllDone marks the end of the stream. It is always the last event.
func AllDone() Event {
	return Event{Type: EventAllDone}
}

// IsLifecycle reports whether the event carries state. Only raw output is
// considered disposable.
func (e Event) IsLifecycle() bool {
	return e.Type != EventRawOutput
}

// IsTerminal reports whether no further events follow on the stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventAllDone
}

// CheckPassed returns the check outcome, false if absent.
func (e Event) CheckPassed() bool {
	return e.Passed != nil && *e.Passed
}

// ExitCode returns the exit status carried by a complete event, -1 if absent.
func (e Event) ExitCode() int {
	if e.Code == nil {
		return -1
	}
	return *e.Code
}
