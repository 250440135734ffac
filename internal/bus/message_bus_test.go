package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessageBus_RoundTrip(t *testing.T) {
	b := NewMessageBus(1)
	ctx := context.Background()

	in := NewInboundMessage(ChannelTelegram, "42", "1001", "hello")
	in.SetMetadata(map[string]any{"message_id": 7})
	require.NoError(t, b.PublishInbound(ctx, in))

	got := <-b.InboundChan()
	require.Equal(t, "hello", got.Content())
	require.Equal(t, "telegram:1001", got.ConversationID())

	require.NoError(t, b.PublishOutbound(ctx, ReplyTo(got, "hi")))
	out := <-b.OutboundChan()
	require.Equal(t, ChannelTelegram, out.Channel())
	require.Equal(t, "1001", out.ChatId())
	require.Equal(t, 7, out.Metadata()["message_id"])
}

func TestMessageBus_PublishHonoursContext(t *testing.T) {
	b := NewMessageBus(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := b.PublishInbound(ctx, NewInboundMessage(ChannelSlack, "u", "c", "x"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRoutingKey(t *testing.T) {
	require.Equal(t, "slack:C1:T1", RoutingKey(ChannelSlack, "C1:T1"))
	require.Equal(t, "cli", RoutingKey(ChannelCLI, ""))

	ch, chat := ParseRoutingKey("slack:C1:T1")
	require.Equal(t, ChannelSlack, ch)
	require.Equal(t, "C1:T1", chat)

	ch, chat = ParseRoutingKey("cli")
	require.Equal(t, ChannelCLI, ch)
	require.Empty(t, chat)
}

func TestInboundMessage_Preview(t *testing.T) {
	long := NewInboundMessage(ChannelCLI, "u", "c", string(make([]rune, 100)))
	require.Len(t, []rune(long.Preview()), 83)
}
