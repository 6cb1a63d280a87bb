package stream

import (
	"github.com/google/uuid"

	"github.com/promptforge/enhance-gateway/internal/agent"
)

const defaultAgentItemKey = "__agent_message__"

// Session translates one turn's upstream events into the client vocabulary.
// All translation state is per-session: the active thread id and, per item
// id, the last known full text. Sessions are used by a single goroutine.
type Session struct {
	turnID   string
	threadID string
	kind     string

	textByItem map[string]string

	agentTextByItem map[string]string
	agentItemOrder  []string
	emittedAgent    bool
}

// NewSession starts a translation session. threadID may be empty for a new
// thread; it is replaced once the upstream announces the thread. kind labels
// the operation on response.created events.
func NewSession(threadID, kind string) *Session {
	return &Session{
		turnID:          "turn_" + uuid.NewString(),
		threadID:        threadID,
		kind:            kind,
		textByItem:      make(map[string]string),
		agentTextByItem: make(map[string]string),
	}
}

// TurnID is the locally assigned identifier stamped on response events.
func (s *Session) TurnID() string { return s.turnID }

// ThreadID is the active thread id, once known.
func (s *Session) ThreadID() string { return s.threadID }

// EmittedAgentOutput reports whether any user-facing message text has been
// delivered during this session.
func (s *Session) EmittedAgentOutput() bool { return s.emittedAgent }

// FinalAgentText returns the first non-empty user-facing message recorded
// during the session, in arrival order.
func (s *Session) FinalAgentText() string {
	for _, key := range s.agentItemOrder {
		if text := s.agentTextByItem[key]; text != "" {
			return text
		}
	}
	return ""
}

// Translate folds one upstream event into zero or more client events. The
// switch is exhaustive over the upstream vocabulary; the decode boundary
// guarantees no other types arrive.
func (s *Session) Translate(ev *agent.Event) []ClientEvent {
	switch ev.Type {
	case agent.EventThreadStarted:
		s.threadID = ev.ThreadID
		return []ClientEvent{{
			Event:    "thread.started",
			Type:     TypeThreadStarted,
			ThreadID: s.threadID,
		}}

	case agent.EventTurnStarted:
		return []ClientEvent{{
			Event:    "turn.started",
			Type:     TypeResponseCreated,
			TurnID:   s.turnID,
			ThreadID: s.threadID,
			Kind:     s.kind,
		}}

	case agent.EventTurnCompleted:
		return []ClientEvent{{
			Event:    "turn.completed",
			Type:     TypeResponseCompleted,
			TurnID:   s.turnID,
			ThreadID: s.threadID,
			Usage:    ev.Usage,
			Response: &ResponseInfo{ID: s.turnID, Status: "completed"},
		}}

	case agent.EventTurnFailed:
		return []ClientEvent{{
			Event:    "turn.failed",
			Type:     TypeTurnFailed,
			TurnID:   s.turnID,
			ThreadID: s.threadID,
			Error:    ev.ErrorMessage(),
		}}

	case agent.EventError:
		return []ClientEvent{{
			Event:    "thread.error",
			Type:     TypeError,
			TurnID:   s.turnID,
			ThreadID: s.threadID,
			Error:    ev.ErrorMessage(),
		}}

	case agent.EventItemStarted:
		return []ClientEvent{{
			Event:    "item.started",
			Type:     TypeOutputItemAdded,
			TurnID:   s.turnID,
			ThreadID: s.threadID,
			ItemID:   itemID(ev.Item),
			ItemType: itemType(ev.Item),
			Item:     ev.Item,
		}}

	case agent.EventItemUpdated:
		return s.translateItemUpdated(ev)

	case agent.EventItemCompleted:
		return s.translateItemCompleted(ev)
	}
	return nil
}

func (s *Session) translateItemUpdated(ev *agent.Event) []ClientEvent {
	id := itemID(ev.Item)
	typ := itemType(ev.Item)

	if !isStreamedTextItemType(typ) {
		return []ClientEvent{{
			Event:    "item.updated",
			Type:     TypeOutputItemUpdated,
			TurnID:   s.turnID,
			ThreadID: s.threadID,
			ItemID:   id,
			ItemType: typ,
			Item:     ev.Item,
		}}
	}

	previous := ""
	if id != "" {
		previous = s.textByItem[id]
	}
	update := ComputeTextUpdate(previous, ev.Item)
	if id != "" {
		s.textByItem[id] = update.NextText
	}

	isAgent := isAgentMessageItemType(typ)
	if isAgent {
		s.recordAgentText(id, update.NextText)
	}

	if update.Delta == "" {
		return nil
	}
	if isAgent {
		s.emittedAgent = true
	}
	return []ClientEvent{s.deltaEvent(id, typ, update.Delta, ev.Item, isAgent)}
}

func (s *Session) translateItemCompleted(ev *agent.Event) []ClientEvent {
	id := itemID(ev.Item)
	typ := itemType(ev.Item)

	if !isStreamedTextItemType(typ) {
		return []ClientEvent{{
			Event:    "item.completed",
			Type:     TypeOutputItemDone,
			TurnID:   s.turnID,
			ThreadID: s.threadID,
			ItemID:   id,
			ItemType: typ,
			Item:     ev.Item,
		}}
	}

	previous := ""
	if id != "" {
		previous = s.textByItem[id]
	}
	update := ComputeTextUpdate(previous, ev.Item)

	text := ItemText(ev.Item)
	if text == "" {
		text = update.NextText
	}
	if text == "" {
		text = previous
	}
	if id != "" {
		s.textByItem[id] = text
	}

	isAgent := isAgentMessageItemType(typ)
	if isAgent {
		s.recordAgentText(id, text)
		if text != "" {
			s.emittedAgent = true
		}
	}

	var out []ClientEvent
	if update.Delta != "" {
		if isAgent {
			s.emittedAgent = true
		}
		out = append(out, s.deltaEvent(id, typ, update.Delta, ev.Item, isAgent))
	}

	doneType := TypeOutputTextDone
	if isReasoningItemType(typ) {
		doneType = TypeReasoningTextDone
	}
	out = append(out, ClientEvent{
		Event:      "item/completed",
		Type:       doneType,
		TurnID:     s.turnID,
		ThreadID:   s.threadID,
		ItemID:     id,
		ItemType:   typ,
		Payload:    &TextPayload{Text: text},
		Text:       text,
		OutputText: text,
		Item:       ev.Item,
	})
	return out
}

func (s *Session) deltaEvent(id, typ, delta string, item []byte, isAgent bool) ClientEvent {
	label := "item/agent_message/delta"
	wireType := TypeOutputTextDelta
	if isReasoningItemType(typ) {
		label = "item/reasoning/delta"
		wireType = TypeReasoningTextDelta
	}
	ev := ClientEvent{
		Event:    label,
		Type:     wireType,
		TurnID:   s.turnID,
		ThreadID: s.threadID,
		ItemID:   id,
		ItemType: typ,
		Delta:    delta,
		Item:     item,
	}
	if isAgent {
		ev.Choices = []Choice{{Delta: ChoiceDelta{Content: delta}}}
	}
	return ev
}

func (s *Session) recordAgentText(id, text string) {
	key := id
	if key == "" {
		key = defaultAgentItemKey
	}
	if _, seen := s.agentTextByItem[key]; !seen {
		s.agentItemOrder = append(s.agentItemOrder, key)
	}
	s.agentTextByItem[key] = text
}
