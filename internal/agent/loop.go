// Package agent connects the message bus to the conversation orchestrator.
package agent

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/crystaldolphin/toolsmith/internal/bus"
	"github.com/crystaldolphin/toolsmith/internal/composer"
	"github.com/crystaldolphin/toolsmith/internal/schema"
)

// TurnRunner starts one conversation turn and streams its events.
type TurnRunner interface {
	Turn(ctx context.Context, conversationID, message string) <-chan composer.Event
}

// ToolLister reports the tools currently registered.
type ToolLister interface {
	ListTools() []schema.ToolDescriptor
}

const emptyReply = "I've completed processing but have no response to give."

// Loop reads InboundMessages from the bus, runs a turn for each and
// publishes the composed reply. Turns of one conversation never overlap;
// different conversations run concurrently.
type Loop struct {
	bus      bus.Bus
	runner   TurnRunner
	tools    ToolLister
	composer *composer.Composer
	logger   *zap.Logger

	locks sync.Map // conversation id -> *sync.Mutex
	wg    sync.WaitGroup
}

func NewLoop(b bus.Bus, runner TurnRunner, tools ToolLister, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		bus:      b,
		runner:   runner,
		tools:    tools,
		composer: composer.New(logger),
		logger:   logger.Named("agent"),
	}
}

// Run processes inbound messages until ctx is cancelled, then waits for
// in-flight turns to wind down.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("agent loop started")
	defer l.wg.Wait()

	for {
		select {
		case msg := <-l.bus.InboundChan():
			l.wg.Add(1)
			go func() {
				defer l.wg.Done()
				l.handleMessage(ctx, msg)
			}()
		case <-ctx.Done():
			l.logger.Info("agent loop stopping")
			return ctx.Err()
		}
	}
}

func (l *Loop) conversationLock(id string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (l *Loop) handleMessage(ctx context.Context, msg bus.InboundMessage) {
	mu := l.conversationLock(msg.ConversationID())
	mu.Lock()
	defer mu.Unlock()

	reply, ok := l.Process(ctx, msg)
	if !ok {
		return
	}
	if err := l.bus.PublishOutbound(ctx, bus.ReplyTo(msg, reply)); err != nil {
		l.logger.Warn("reply dropped", zap.String("conversation", msg.ConversationID()), zap.Error(err))
	}
}

// Process runs one message to completion and returns the reply text. ok is
// false when the turn was cancelled and nothing should be sent.
func (l *Loop) Process(ctx context.Context, msg bus.InboundMessage) (reply string, ok bool) {
	if out, handled := l.handleSlashCommand(msg); handled {
		return out, true
	}

	l.logger.Info("processing message",
		zap.String("channel", string(msg.Channel())),
		zap.String("sender", msg.SenderId()),
		zap.String("content", msg.Preview()))

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink := &composer.CollectSink{}
	events := l.runner.Turn(turnCtx, msg.ConversationID(), msg.Content())
	if err := l.composer.Stream(turnCtx, events, sink, cancel); err != nil {
		l.logger.Warn("turn aborted", zap.String("conversation", msg.ConversationID()), zap.Error(err))
		return "", false
	}
	if ctx.Err() != nil {
		return "", false
	}

	for _, f := range sink.Frames() {
		if f.Type == composer.FrameToolCode {
			l.logger.Debug("tool invoked", zap.String("call", f.Content))
		}
	}

	reply = strings.TrimSpace(sink.Text())
	if reply == "" {
		reply = emptyReply
	}
	l.logger.Info("response", zap.String("conversation", msg.ConversationID()), zap.Int("length", len(reply)))
	return reply, true
}
