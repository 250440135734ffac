package composer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func emit(events ...Event) <-chan Event {
	ch := make(chan Event, len(events))
	for _, e := range events {
		ch <- e
	}
	close(ch)
	return ch
}

func TestComposer_PreservesOrderAndEndsOnce(t *testing.T) {
	sink := &CollectSink{}
	err := New(nil).Stream(context.Background(), emit(
		TextChunk("Let me "),
		TextChunk("check. "),
		ToolInvoked("calculate_math", map[string]any{"expression": "2+2*3"}),
		ToolResult("calculate_math", "8", ""),
		TextChunk("It is 8."),
		End(),
	), sink, nil)
	require.NoError(t, err)

	frames := sink.Frames()
	var types []FrameType
	for _, f := range frames {
		types = append(types, f.Type)
	}
	require.Equal(t, []FrameType{FrameText, FrameText, FrameToolCode, FrameToolOutput, FrameText, FrameEnd}, types)
	require.JSONEq(t, `{"tool":"calculate_math","arguments":{"expression":"2+2*3"}}`, frames[2].Content)
	require.Equal(t, "8", frames[3].Content)
	require.Equal(t, "Let me check. It is 8.", sink.Text())
}

func TestComposer_SynthesizesMissingEnd(t *testing.T) {
	sink := &CollectSink{}
	require.NoError(t, New(nil).Stream(context.Background(), emit(TextChunk("hi")), sink, nil))

	frames := sink.Frames()
	require.Len(t, frames, 2)
	require.Equal(t, FrameEnd, frames[1].Type)
}

func TestComposer_IgnoresEventsAfterEnd(t *testing.T) {
	sink := &CollectSink{}
	require.NoError(t, New(nil).Stream(context.Background(), emit(End(), TextChunk("late"), End()), sink, nil))
	require.Equal(t, []Frame{{Type: FrameEnd}}, sink.Frames())
}

func TestComposer_RejectsSecondTool(t *testing.T) {
	sink := &CollectSink{}
	cancelled := false
	err := New(nil).Stream(context.Background(), emit(
		ToolInvoked("a", nil),
		ToolResult("a", "1", ""),
		ToolInvoked("b", nil),
	), sink, func() { cancelled = true })

	require.ErrorIs(t, err, ErrEventOrder)
	require.True(t, cancelled)
	require.Len(t, sink.Frames(), 2)
}

type failingSink struct{ after int }

func (s *failingSink) Send(context.Context, Frame) error {
	if s.after == 0 {
		return errors.New("client went away")
	}
	s.after--
	return nil
}

func TestComposer_SinkFailureCancelsTurn(t *testing.T) {
	events := make(chan Event)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		defer close(events)
		for {
			select {
			case events <- TextChunk("tok "):
			case <-ctx.Done():
				return
			}
		}
	}()

	err := New(nil).Stream(context.Background(), events, &failingSink{after: 3}, cancel)
	require.ErrorContains(t, err, "client went away")
	require.Eventually(t, func() bool { return ctx.Err() != nil }, time.Second, 10*time.Millisecond)
}

func TestComposer_StopsOnContextCancel(t *testing.T) {
	events := make(chan Event)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &CollectSink{}
	err := New(nil).Stream(ctx, events, sink, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, sink.Frames())
}

func TestSSESink_WritesDataLines(t *testing.T) {
	rec := httptest.NewRecorder()
	sink, err := NewSSESink(rec)
	require.NoError(t, err)

	require.NoError(t, New(nil).Stream(context.Background(), emit(TextChunk("8"), End()), sink, nil))
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t,
		"data: {\"type\":\"text\",\"content\":\"8\"}\n\ndata: {\"type\":\"end\",\"content\":\"\"}\n\n",
		rec.Body.String())
}

func TestWebSocketSink_SendsJSONFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = New(nil).Stream(r.Context(), emit(TextChunk("hello"), End()), NewWebSocketSink(conn, time.Second), nil)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, Frame{Type: FrameText, Content: "hello"}, f)
	require.NoError(t, conn.ReadJSON(&f))
	require.Equal(t, FrameEnd, f.Type)
}

func TestTerminalSink_RendersToolFrames(t *testing.T) {
	var sb strings.Builder
	sink := NewTerminalSink(&sb)
	require.NoError(t, New(nil).Stream(context.Background(), emit(
		ToolInvoked("get_current_time", nil),
		ToolResult("get_current_time", "", "boom"),
		End(),
	), sink, nil))

	out := sb.String()
	require.Contains(t, out, "get_current_time")
	require.Contains(t, out, "error: boom")
}
