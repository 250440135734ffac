package bus

// OutboundMessage is a reply to be sent back through a channel.
type OutboundMessage struct {
	channel  ChannelType
	chatId   string         // destination chat / channel / DM identifier
	content  string         // text to send
	metadata map[string]any // channel-specific hints (message_id, thread_ts, …)
}

func NewOutboundMessage(channel ChannelType, chatId, content string) OutboundMessage {
	return OutboundMessage{
		channel: channel,
		chatId:  chatId,
		content: content,
	}
}

func (m OutboundMessage) Channel() ChannelType           { return m.channel }
func (m OutboundMessage) ChatId() string                 { return m.chatId }
func (m OutboundMessage) Content() string                { return m.content }
func (m OutboundMessage) Metadata() map[string]any       { return m.metadata }
func (m *OutboundMessage) SetMetadata(md map[string]any) { m.metadata = md }

// ReplyTo builds the outbound reply for in, carrying over its metadata so
// adapters can thread or quote the original message.
func ReplyTo(in InboundMessage, content string) OutboundMessage {
	out := NewOutboundMessage(in.channel, in.chatId, content)
	out.metadata = in.metadata
	return out
}
