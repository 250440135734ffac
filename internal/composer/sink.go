package composer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"

	"github.com/crystaldolphin/toolsmith/internal/shared/stringutils"
)

// CollectSink buffers frames in memory.
type CollectSink struct {
	mu     sync.Mutex
	frames []Frame
}

func (s *CollectSink) Send(_ context.Context, f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

// Frames returns a copy of everything received.
func (s *CollectSink) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Text concatenates the text frames.
func (s *CollectSink) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sb strings.Builder
	for _, f := range s.frames {
		if f.Type == FrameText {
			sb.WriteString(f.Content)
		}
	}
	return sb.String()
}

// SSESink writes frames as server-sent events.
type SSESink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

var ErrStreamingUnsupported = errors.New("response writer does not support streaming")

// NewSSESink prepares w for an event stream.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSESink{w: w, flusher: flusher}, nil
}

func (s *SSESink) Send(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WebSocketSink writes frames as JSON text messages.
type WebSocketSink struct {
	mu           sync.Mutex
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func NewWebSocketSink(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketSink {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &WebSocketSink{conn: conn, writeTimeout: writeTimeout}
}

func (s *WebSocketSink) Send(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteJSON(f)
}

// TerminalSink renders frames for an interactive terminal.
type TerminalSink struct {
	w         io.Writer
	toolStyle lipgloss.Style
	outStyle  lipgloss.Style
	errStyle  lipgloss.Style
}

func NewTerminalSink(w io.Writer) *TerminalSink {
	return &TerminalSink{
		w:         w,
		toolStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("#f97316")).Bold(true),
		outStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")),
		errStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")),
	}
}

func (s *TerminalSink) Send(ctx context.Context, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var err error
	switch f.Type {
	case FrameText:
		_, err = io.WriteString(s.w, f.Content)
	case FrameToolCode:
		_, err = fmt.Fprintf(s.w, "\n%s\n", s.toolStyle.Render("  ↳ "+f.Content))
	case FrameToolOutput:
		style := s.outStyle
		if strings.HasPrefix(f.Content, "error: ") {
			style = s.errStyle
		}
		_, err = fmt.Fprintf(s.w, "%s\n", style.Render("    "+truncateLine(f.Content, 200)))
	case FrameEnd:
		_, err = io.WriteString(s.w, "\n")
	}
	return err
}

func truncateLine(s string, n int) string {
	return stringutils.Truncate(strings.ReplaceAll(s, "\n", " "), n)
}
