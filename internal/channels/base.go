// Package channels adapts chat platforms onto the message bus.
package channels

import (
	"context"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/crystaldolphin/toolsmith/internal/bus"
)

// Channel is one chat-platform adapter.
type Channel interface {
	Name() bus.ChannelType
	// Start connects and pumps inbound messages until ctx is cancelled.
	Start(ctx context.Context) error
	// Send delivers one reply to the platform.
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// Base holds common state and helper methods shared by all channels.
type Base struct {
	channelName bus.ChannelType
	b           bus.Bus
	allowFrom   []string // empty = allow all
	logger      *zap.Logger
}

// NewBase creates a Base with the given channel name, bus, and allowlist.
func NewBase(name bus.ChannelType, b bus.Bus, allowFrom []string, logger *zap.Logger) Base {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Base{
		channelName: name,
		b:           b,
		allowFrom:   allowFrom,
		logger:      logger.Named(string(name)),
	}
}

// IsAllowed checks whether senderID is on the allowlist.
// senderID may be "id|username" (Telegram) or a plain string.
func (b *Base) IsAllowed(senderID string) bool {
	if len(b.allowFrom) == 0 {
		return true
	}
	if slices.Contains(b.allowFrom, senderID) {
		return true
	}
	for _, part := range strings.Split(senderID, "|") {
		if part != "" && slices.Contains(b.allowFrom, part) {
			return true
		}
	}
	return false
}

// HandleMessage verifies the sender is allowed, then pushes an InboundMessage to the bus.
func (b *Base) HandleMessage(ctx context.Context, senderID, chatID, content string, metadata map[string]any) {
	if !b.IsAllowed(senderID) {
		b.logger.Warn("access denied", zap.String("sender", senderID))
		return
	}

	msg := bus.NewInboundMessage(b.channelName, senderID, chatID, content)
	msg.SetMetadata(metadata)
	if err := b.b.PublishInbound(ctx, msg); err != nil {
		b.logger.Warn("inbound dropped", zap.String("chat", chatID), zap.Error(err))
	}
}

// splitMessage splits content into chunks that fit within maxLen,
// preferring newline breaks, then space breaks, then hard cut.
func splitMessage(content string, maxLen int) []string {
	if len(content) <= maxLen {
		return []string{content}
	}
	var chunks []string
	for len(content) > 0 {
		if len(content) <= maxLen {
			chunks = append(chunks, content)
			break
		}
		cut := content[:maxLen]
		pos := strings.LastIndex(cut, "\n")
		if pos <= 0 {
			pos = strings.LastIndex(cut, " ")
		}
		if pos <= 0 {
			pos = maxLen
		}
		chunks = append(chunks, content[:pos])
		content = strings.TrimLeft(content[pos:], " \t\n")
	}
	return chunks
}
