package schema

import "time"

// Message is one entry of the prompt sent to the model.
//
// Role is one of: "system", "user", "assistant".
type Message struct {
	Role    string
	Content string
}

func NewSystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

func NewUserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

func NewAssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// ToolTrace records the single tool execution of a turn, if any.
type ToolTrace struct {
	Tool        string         `json:"tool"`
	Arguments   map[string]any `json:"arguments,omitempty"`
	Status      string         `json:"status"`
	Output      string         `json:"output,omitempty"`
	Synthesized bool           `json:"synthesized,omitempty"`
}

// Turn is one persisted conversation entry.
type Turn struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolTrace *ToolTrace `json:"tool_trace,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
