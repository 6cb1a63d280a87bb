package agent

import "encoding/json"

// EventType enumerates the upstream event vocabulary. The set is closed:
// translation switches over these constants exhaustively, and unknown types
// coming off the wire are dropped at the decode boundary.
type EventType string

const (
	EventThreadStarted EventType = "thread.started"
	EventTurnStarted   EventType = "turn.started"
	EventTurnCompleted EventType = "turn.completed"
	EventTurnFailed    EventType = "turn.failed"
	EventItemStarted   EventType = "item.started"
	EventItemUpdated   EventType = "item.updated"
	EventItemCompleted EventType = "item.completed"
	EventError         EventType = "error"
)

// knownEventTypes gates decoding; anything else on the wire is noise.
var knownEventTypes = map[EventType]bool{
	EventThreadStarted: true,
	EventTurnStarted:   true,
	EventTurnCompleted: true,
	EventTurnFailed:    true,
	EventItemStarted:   true,
	EventItemUpdated:   true,
	EventItemCompleted: true,
	EventError:         true,
}

// Usage is the token accounting reported on turn completion.
type Usage struct {
	InputTokens       int64 `json:"input_tokens"`
	CachedInputTokens int64 `json:"cached_input_tokens"`
	OutputTokens      int64 `json:"output_tokens"`
}

// ErrorInfo is the upstream failure payload. Message is forwarded to clients
// verbatim, never summarized.
type ErrorInfo struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Event is one upstream stream element. Only the fields relevant to the
// event's type are populated; Item stays raw because item payloads are
// forwarded without reshaping.
type Event struct {
	Type     EventType       `json:"type"`
	ThreadID string          `json:"thread_id,omitempty"`
	Item     json.RawMessage `json:"item,omitempty"`
	Usage    *Usage          `json:"usage,omitempty"`
	Error    *ErrorInfo      `json:"error,omitempty"`
	Message  string          `json:"message,omitempty"`
}

// ErrorMessage returns the failure text regardless of which field the
// upstream used to carry it.
func (e *Event) ErrorMessage() string {
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return e.Message
}
