package stream

import (
	"encoding/json"

	"github.com/promptforge/enhance-gateway/internal/agent"
)

// Outbound wire types. The vocabulary mirrors a widely used chat-completion
// streaming format so existing client libraries can consume the stream.
const (
	TypeThreadStarted      = "thread.started"
	TypeResponseCreated    = "response.created"
	TypeResponseCompleted  = "response.completed"
	TypeTurnFailed         = "turn.failed"
	TypeError              = "error"
	TypeOutputItemAdded    = "response.output_item.added"
	TypeOutputItemUpdated  = "response.output_item.updated"
	TypeOutputItemDone     = "response.output_item.done"
	TypeOutputTextDelta    = "response.output_text.delta"
	TypeOutputTextDone     = "response.output_text.done"
	TypeReasoningTextDelta = "response.reasoning_summary_text.delta"
	TypeReasoningTextDone  = "response.reasoning_summary_text.done"
)

// Choice mirrors delta content in the legacy chat-completion shape for
// clients that read choices[0].delta.content.
type Choice struct {
	Delta ChoiceDelta `json:"delta"`
}

type ChoiceDelta struct {
	Content string `json:"content"`
}

// ResponseInfo is the minimal response envelope on completion events.
type ResponseInfo struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// TextPayload carries an item's final text on done events.
type TextPayload struct {
	Text string `json:"text"`
}

// ClientEvent is one outbound stream frame. Event is a coarse lifecycle
// label; Type is the wire type clients dispatch on. Only the fields relevant
// to the type are set.
type ClientEvent struct {
	Event      string          `json:"event,omitempty"`
	Type       string          `json:"type"`
	TurnID     string          `json:"turn_id,omitempty"`
	ThreadID   string          `json:"thread_id,omitempty"`
	Kind       string          `json:"kind,omitempty"`
	ItemID     string          `json:"item_id,omitempty"`
	ItemType   string          `json:"item_type,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	Choices    []Choice        `json:"choices,omitempty"`
	Item       json.RawMessage `json:"item,omitempty"`
	Usage      *agent.Usage    `json:"usage,omitempty"`
	Response   *ResponseInfo   `json:"response,omitempty"`
	Error      string          `json:"error,omitempty"`
	Payload    *TextPayload    `json:"payload,omitempty"`
	Text       string          `json:"text,omitempty"`
	OutputText string          `json:"output_text,omitempty"`
}
