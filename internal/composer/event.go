// Package composer turns the orchestrator's internal events into the
// ordered frame stream a client consumes.
package composer

import "encoding/json"

// EventKind tags one orchestrator event.
type EventKind int

const (
	KindTextChunk EventKind = iota
	KindToolInvoked
	KindToolResult
	KindEnd
)

func (k EventKind) String() string {
	switch k {
	case KindTextChunk:
		return "text_chunk"
	case KindToolInvoked:
		return "tool_invoked"
	case KindToolResult:
		return "tool_result"
	case KindEnd:
		return "end"
	}
	return "unknown"
}

// Event is emitted by a turn. Only the fields of its Kind are set.
type Event struct {
	Kind      EventKind
	Text      string
	Tool      string
	Arguments map[string]any
	Payload   string
	Err       string
}

func TextChunk(text string) Event { return Event{Kind: KindTextChunk, Text: text} }

func ToolInvoked(name string, args map[string]any) Event {
	return Event{Kind: KindToolInvoked, Tool: name, Arguments: args}
}

// ToolResult carries either a payload or, when reason is non-empty, a failure.
func ToolResult(name, payload, reason string) Event {
	return Event{Kind: KindToolResult, Tool: name, Payload: payload, Err: reason}
}

func End() Event { return Event{Kind: KindEnd} }

// FrameType is the wire tag of a frame.
type FrameType string

const (
	FrameText       FrameType = "text"
	FrameToolCode   FrameType = "tool_code"
	FrameToolOutput FrameType = "tool_output"
	FrameEnd        FrameType = "end"
)

// Frame is one element of the streamed turn protocol.
type Frame struct {
	Type    FrameType `json:"type"`
	Content string    `json:"content"`
}

// FrameOf renders an event as a frame.
func FrameOf(e Event) Frame {
	switch e.Kind {
	case KindTextChunk:
		return Frame{Type: FrameText, Content: e.Text}
	case KindToolInvoked:
		args := e.Arguments
		if args == nil {
			args = map[string]any{}
		}
		b, err := json.Marshal(struct {
			Tool      string         `json:"tool"`
			Arguments map[string]any `json:"arguments"`
		}{e.Tool, args})
		if err != nil {
			return Frame{Type: FrameToolCode, Content: e.Tool}
		}
		return Frame{Type: FrameToolCode, Content: string(b)}
	case KindToolResult:
		if e.Err != "" {
			return Frame{Type: FrameToolOutput, Content: "error: " + e.Err}
		}
		return Frame{Type: FrameToolOutput, Content: e.Payload}
	}
	return Frame{Type: FrameEnd}
}
