package model

import "encoding/json"

// EventType tags a normalized stream event on the wire.
type EventType string

const (
	EventTypeText      EventType = "text"
	EventTypeToolCalls EventType = "tool_calls"
)

// DoneSentinel is the literal terminator written as the final data line of a
// stream. Clients tolerate it but must not require it: end-of-stream also
// terminates reading.
const DoneSentinel = "[DONE]"

// StreamEvent is the single wire shape the client consumes, regardless of
// provider. Exactly one of the following holds:
//
//   - Type == "text": Content carries a text delta.
//   - Type == "tool_calls": ToolCalls carries a batch of requested calls.
//   - Error != "": the stream failed; no further events follow.
//   - Type == "" with Content set: legacy untagged text event, treated
//     identically to "text".
type StreamEvent struct {
	Type      EventType  `json:"type,omitempty"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// TextEvent builds a text delta event.
func TextEvent(content string) StreamEvent {
	return StreamEvent{Type: EventTypeText, Content: content}
}

// ToolCallsEvent builds a tool-call batch event.
func ToolCallsEvent(calls []ToolCall) StreamEvent {
	return StreamEvent{Type: EventTypeToolCalls, ToolCalls: calls}
}

// ErrorEvent builds an error event.
func ErrorEvent(msg string) StreamEvent {
	return StreamEvent{Error: msg}
}

// IsText reports whether the event carries text, including the legacy
// untagged form.
func (e StreamEvent) IsText() bool {
	return e.Type == EventTypeText || (e.Type == "" && e.Error == "" && len(e.ToolCalls) == 0)
}

// Marshal renders the event as its JSON wire form.
func (e StreamEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
