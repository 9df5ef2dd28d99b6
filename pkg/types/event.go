package types

// EventType defines the type of event emitted during a prompt submission.
type EventType string

const (
	EventTypeLog    EventType = "log"    // EventTypeLog is a progress line observed in the agent's conversation.
	EventTypeFrame  EventType = "frame"  // EventTypeFrame is a page screenshot frame (visual strategy only).
	EventTypeAnswer EventType = "answer" // EventTypeAnswer carries the final answer and terminates the stream.
	EventTypeError  EventType = "error"  // EventTypeError indicates the submission failed and terminates the stream.
)

// Event is a single item in a submission's progress stream.
//
// A stream consists of zero or more log/frame events followed by exactly one
// terminal event (answer or error). The JSON shape matches the NDJSON wire
// format served by the HTTP layer.
type Event struct {
	// Type indicates the kind of event.
	Type EventType `json:"type"`

	// Message holds text content for log, answer, and error events.
	Message string `json:"message,omitempty"`

	// B64 holds a base64-encoded PNG for frame events.
	B64 string `json:"b64,omitempty"`
}

// Terminal reports whether the event ends its stream.
func (e Event) Terminal() bool {
	return e.Type == EventTypeAnswer || e.Type == EventTypeError
}

// NewLogEvent creates a progress log event.
func NewLogEvent(message string) Event {
	return Event{Type: EventTypeLog, Message: message}
}

// NewFrameEvent creates a screenshot frame event.
func NewFrameEvent(b64 string) Event {
	return Event{Type: EventTypeFrame, B64: b64}
}

// NewAnswerEvent creates the terminal answer event.
func NewAnswerEvent(message string) Event {
	return Event{Type: EventTypeAnswer, Message: message}
}

// NewErrorEvent creates the terminal error event.
func NewErrorEvent(message string) Event {
	return Event{Type: EventTypeError, Message: message}
}

// VerdictKind classifies the terminal outcome of one prompt submission.
type VerdictKind string

const (
	// VerdictAnswered means the agent produced a complete answer.
	VerdictAnswered VerdictKind = "answered"

	// VerdictErrored means the agent signaled it could not answer, or the
	// page became unusable while waiting.
	VerdictErrored VerdictKind = "errored"

	// VerdictTimedOut means no completion signal arrived within the
	// detection window.
	VerdictTimedOut VerdictKind = "timed_out"
)

// Verdict is the terminal outcome of one prompt submission. Exactly one
// verdict is produced per submission.
type Verdict struct {
	// Kind classifies the outcome.
	Kind VerdictKind

	// Answer is the final answer text with the completion sentinel stripped,
	// or a fixed placeholder for errored and timed-out submissions.
	Answer string

	// Logs are the progress lines observed during detection, in discovery
	// order.
	Logs []string
}

// Answered reports whether the submission completed with a real answer.
func (v Verdict) Answered() bool {
	return v.Kind == VerdictAnswered
}
