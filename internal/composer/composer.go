package composer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrEventOrder is returned when a turn emits events outside
// TextChunk* (ToolInvoked ToolResult)? TextChunk* End.
var ErrEventOrder = errors.New("event out of order")

// Sink delivers frames to one client.
type Sink interface {
	Send(ctx context.Context, f Frame) error
}

// Composer forwards a turn's events to a sink in emission order and
// guarantees the stream is terminated by exactly one end frame.
type Composer struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Composer{logger: logger.Named("composer")}
}

type phase int

const (
	phaseText phase = iota
	phaseInvoked
	phaseAfterTool
)

// Stream drains events into sink. When the sink fails or ctx is done,
// cancel is called so the producing turn aborts its model generation and
// tool execution, and no further frames are sent. If the event channel
// closes without an End, the end frame is synthesized.
func (c *Composer) Stream(ctx context.Context, events <-chan Event, sink Sink, cancel context.CancelFunc) error {
	abort := func(err error) error {
		if cancel != nil {
			cancel()
		}
		// Let the producer observe cancellation without blocking on us.
		go func() {
			for range events {
			}
		}()
		return err
	}

	p := phaseText
	for {
		var (
			e  Event
			ok bool
		)
		select {
		case e, ok = <-events:
		case <-ctx.Done():
			return abort(ctx.Err())
		}
		if !ok {
			e = End()
		}

		switch {
		case e.Kind == KindToolInvoked && p == phaseText:
			p = phaseInvoked
		case e.Kind == KindToolResult && p == phaseInvoked:
			p = phaseAfterTool
		case e.Kind == KindTextChunk && p != phaseInvoked:
		case e.Kind == KindEnd:
		default:
			c.logger.Error("dropping turn", zap.Stringer("event", e.Kind))
			return abort(fmt.Errorf("%w: %s", ErrEventOrder, e.Kind))
		}

		if e.Kind == KindTextChunk && e.Text == "" {
			continue
		}
		if err := sink.Send(ctx, FrameOf(e)); err != nil {
			c.logger.Debug("sink closed", zap.Error(err))
			return abort(fmt.Errorf("send frame: %w", err))
		}
		if e.Kind == KindEnd {
			if ok {
				go func() {
					for range events {
					}
				}()
			}
			return nil
		}
	}
}
