package schema

// Messages is the ordered list of messages exchanged with the model.
// It owns typed append methods so callers never construct raw maps.
type Messages struct {
	Messages []Message
}

// NewMessages returns a Messages initialised with the given messages.
// Called with no arguments it returns an empty Messages ready for use.
func NewMessages(msgs ...Message) Messages {
	if len(msgs) == 0 {
		return Messages{Messages: make([]Message, 0)}
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return Messages{Messages: out}
}

// AddSystem appends a system message.
func (mh *Messages) AddSystem(content string) {
	mh.Messages = append(mh.Messages, NewSystemMessage(content))
}

// AddUser appends a user message.
func (mh *Messages) AddUser(content string) {
	mh.Messages = append(mh.Messages, NewUserMessage(content))
}

// AddAssistant appends an assistant message.
func (mh *Messages) AddAssistant(content string) {
	mh.Messages = append(mh.Messages, NewAssistantMessage(content))
}

// AddTurns appends persisted conversation turns, skipping unknown roles.
func (mh *Messages) AddTurns(turns []Turn) {
	for _, t := range turns {
		switch t.Role {
		case "user":
			mh.AddUser(t.Content)
		case "assistant":
			mh.AddAssistant(t.Content)
		}
	}
}

// Clone returns a deep copy of the message list.
func (mh Messages) Clone() Messages {
	return NewMessages(mh.Messages...)
}

// Len returns the number of messages.
func (mh Messages) Len() int { return len(mh.Messages) }

// Last returns the final message, or the zero Message when empty.
func (mh Messages) Last() Message {
	if len(mh.Messages) == 0 {
		return Message{}
	}
	return mh.Messages[len(mh.Messages)-1]
}
