package chatclient

import (
	"github.com/taskboard-ai/chat-gateway/internal/model"
)

// State is the controller's explicit exchange state. Exactly one state holds
// at any time; transitions happen only inside the controller.
type State string

const (
	// StateIdle means no exchange is open.
	StateIdle State = "idle"
	// StateStreaming means a send is in flight and events are arriving.
	StateStreaming State = "streaming"
	// StateAwaitingTools means the model requested tool calls and the
	// exchange is paused until the user confirms or clears them.
	StateAwaitingTools State = "awaiting_tools"
	// StateCompleted means the last exchange finished cleanly.
	StateCompleted State = "completed"
	// StateFailed means the last exchange failed and was rolled back.
	StateFailed State = "failed"
)

// Event is the typed result stream of a send. The channel returned by Send
// carries zero or more TextDelta events, at most one ToolCalls event, and
// exactly one terminal Completed or Failed event, then closes.
type Event interface {
	isEvent()
}

// TextDelta carries one streamed text fragment plus the accumulated total.
type TextDelta struct {
	Content string
	Total   string
}

// ToolCalls carries the batch of tool calls requested by the model. They
// stay pending on the controller until explicitly cleared.
type ToolCalls struct {
	Calls []model.ToolCall
}

// Completed is the terminal event of a clean text exchange.
type Completed struct {
	Text string
}

// Failed is the terminal event of a failed exchange. The partial assistant
// turn has already been rolled back when this event is observed.
type Failed struct {
	Err error
}

func (TextDelta) isEvent() {}
func (ToolCalls) isEvent() {}
func (Completed) isEvent() {}
func (Failed) isEvent()    {}
