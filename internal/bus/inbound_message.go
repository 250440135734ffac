// Package bus carries chat messages between channel adapters and the agent loop.
package bus

import (
	"time"

	"github.com/crystaldolphin/toolsmith/internal/shared/stringutils"
)

// InboundMessage is a message received from a chat channel.
type InboundMessage struct {
	channel   ChannelType
	senderId  string         // user identifier within the channel
	chatId    string         // chat / channel / DM identifier
	content   string         // message text
	timestamp time.Time      // when the message was received
	metadata  map[string]any // channel-specific extra data (message_id, thread_ts, …)
}

// NewInboundMessage creates an InboundMessage with the timestamp set to now.
func NewInboundMessage(channel ChannelType, senderId, chatId, content string) InboundMessage {
	return InboundMessage{
		channel:   channel,
		senderId:  senderId,
		chatId:    chatId,
		content:   content,
		timestamp: time.Now(),
	}
}

func (m InboundMessage) ChatId() string                 { return m.chatId }
func (m InboundMessage) SenderId() string               { return m.senderId }
func (m InboundMessage) Content() string                { return m.content }
func (m InboundMessage) Channel() ChannelType           { return m.channel }
func (m InboundMessage) Timestamp() time.Time           { return m.timestamp }
func (m InboundMessage) Metadata() map[string]any       { return m.metadata }
func (m *InboundMessage) SetMetadata(md map[string]any) { m.metadata = md }

// ConversationID is the key the agent uses for history: "channel:chat_id".
func (m InboundMessage) ConversationID() string {
	return RoutingKey(m.channel, m.chatId)
}

// Preview returns a short snippet of the message content for logging.
func (m InboundMessage) Preview() string {
	return stringutils.Truncate(m.content, 80)
}
