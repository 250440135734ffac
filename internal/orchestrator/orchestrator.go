// Package orchestrator runs one conversational turn: it routes the message
// to a direct answer, an existing tool or a freshly synthesized one, and
// streams the result as composer events.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crystaldolphin/toolsmith/internal/composer"
	"github.com/crystaldolphin/toolsmith/internal/schema"
	"github.com/crystaldolphin/toolsmith/internal/synth"
	"github.com/crystaldolphin/toolsmith/internal/telemetry"
	"github.com/crystaldolphin/toolsmith/internal/tools"
)

// HistoryStore persists conversation turns.
type HistoryStore interface {
	Append(ctx context.Context, conversationID string, turn schema.Turn) error
	Recent(ctx context.Context, conversationID string, limit int) ([]schema.Turn, error)
}

// Synthesizer authors a tool for an unmet request.
type Synthesizer interface {
	Synthesize(ctx context.Context, request string) (synth.Outcome, error)
}

// Options tunes the model calls and turn behaviour.
type Options struct {
	Model            string
	Temperature      float64
	MaxTokens        int
	HistoryLimit     int
	Persona          string
	SynthesisEnabled bool
	IntegrateResults bool
}

type Orchestrator struct {
	provider    schema.LLMProvider
	registry    *tools.Registry
	invoker     *tools.Invoker
	synthesizer Synthesizer
	history     HistoryStore
	opts        Options
	now         func() time.Time
	logger      *zap.Logger
	metrics     telemetry.Metrics
}

func New(
	provider schema.LLMProvider,
	registry *tools.Registry,
	invoker *tools.Invoker,
	synthesizer Synthesizer,
	history HistoryStore,
	opts Options,
	logger *zap.Logger,
	metrics telemetry.Metrics,
) *Orchestrator {
	if opts.HistoryLimit == 0 {
		opts.HistoryLimit = 10
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Orchestrator{
		provider:    provider,
		registry:    registry,
		invoker:     invoker,
		synthesizer: synthesizer,
		history:     history,
		opts:        opts,
		now:         time.Now,
		logger:      logger.Named("orchestrator"),
		metrics:     metrics,
	}
}

// Turn starts processing message and returns its event stream. The stream
// ends with exactly one End event unless ctx is cancelled first, in which
// case it is closed without further events.
func (o *Orchestrator) Turn(ctx context.Context, conversationID, message string) <-chan composer.Event {
	events := make(chan composer.Event)
	go func() {
		defer close(events)
		t := &turn{
			o:              o,
			events:         events,
			conversationID: conversationID,
			turnID:         uuid.NewString(),
			message:        message,
		}
		t.run(tools.WithTurn(ctx, tools.TurnContext{ConversationID: conversationID, TurnID: t.turnID}))
	}()
	return events
}

// State is a step of the per-turn state machine.
type State int

const (
	StateReceiveMessage State = iota
	StateClassifyIntent
	StateSelectTool
	StateTriggerSynthesis
	StateDirectAnswer
	StateExecuteTool
	StateIntegrateResult
	StateComposeResponse
	StateAppendHistory
	StateDone
)

var stateNames = [...]string{
	"ReceiveMessage", "ClassifyIntent", "SelectTool", "TriggerSynthesis", "DirectAnswer",
	"ExecuteTool", "IntegrateResult", "ComposeResponse", "AppendHistory", "Done",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// turn is the mutable state of one Turn call.
type turn struct {
	o              *Orchestrator
	events         chan<- composer.Event
	conversationID string
	turnID         string
	message        string

	history     []schema.Turn
	action      Action
	entry       tools.Entry
	args        map[string]any
	result      tools.Result
	synthesized bool
	attempted   bool
	failure     string
	reply       strings.Builder
	trace       *schema.ToolTrace
	outcome     string
	cancelled   bool
}

func (t *turn) run(ctx context.Context) {
	log := t.o.logger.With(zap.String("conversation", t.conversationID), zap.String("turn", t.turnID))
	start := time.Now()

	st := StateReceiveMessage
	for st != StateDone {
		next := t.step(ctx, st)
		if ctx.Err() != nil && !t.cancelled {
			t.cancelled = true
			next = StateDone
		}
		log.Debug("transition", zap.Stringer("from", st), zap.Stringer("to", next))
		st = next
	}

	if t.cancelled {
		t.outcome = "cancelled"
	} else {
		t.emit(ctx, composer.End())
	}
	t.o.metrics.ObserveTurn(t.outcome)
	log.Info("turn finished", zap.String("outcome", t.outcome), zap.Duration("duration", time.Since(start)))
}

func (t *turn) step(ctx context.Context, st State) State {
	switch st {
	case StateReceiveMessage:
		return t.receive(ctx)
	case StateClassifyIntent:
		return t.classify(ctx)
	case StateDirectAnswer:
		t.outcome = "answered"
		return StateComposeResponse
	case StateSelectTool:
		return t.selectTool()
	case StateTriggerSynthesis:
		return t.triggerSynthesis(ctx)
	case StateExecuteTool:
		return t.execute(ctx)
	case StateIntegrateResult:
		return t.integrate(ctx)
	case StateComposeResponse:
		if t.failure != "" {
			t.text(ctx, t.failure)
		}
		return StateAppendHistory
	case StateAppendHistory:
		t.appendHistory(ctx)
		return StateDone
	}
	return StateDone
}

func (t *turn) receive(ctx context.Context) State {
	if t.o.history != nil {
		h, err := t.o.history.Recent(ctx, t.conversationID, t.o.opts.HistoryLimit)
		if err != nil {
			t.o.logger.Warn("load history", zap.String("conversation", t.conversationID), zap.Error(err))
		}
		t.history = h
	}
	return StateClassifyIntent
}

func (t *turn) classify(ctx context.Context) State {
	catalogue := tools.DescribeCatalogue(tools.Catalogue(t.o.registry))
	msgs := routingMessages(t.o.opts.Persona, catalogue, t.o.opts.SynthesisEnabled, t.history, t.message, t.o.now())

	var c streamClassifier
	raw, err := t.stream(ctx, msgs, c.Feed)
	if err != nil {
		if ctx.Err() != nil {
			return StateDone
		}
		t.o.logger.Warn("routing generation failed", zap.Error(err))
		t.fail("failed", msgModelUnavailable)
		return StateComposeResponse
	}
	t.text(ctx, c.Flush())

	action, err := ParseAction(raw)
	if err != nil {
		t.o.logger.Warn("malformed action", zap.Error(err))
		t.fail("failed", msgMalformedToolCall)
		return StateComposeResponse
	}
	t.action = action

	switch action.Kind {
	case ActionCallTool:
		t.args = action.Arguments
		return StateSelectTool
	case ActionSynthesize:
		if !t.o.opts.SynthesisEnabled || t.o.synthesizer == nil {
			t.fail("failed", msgSynthesisFailed)
			return StateComposeResponse
		}
		return StateTriggerSynthesis
	}
	return StateDirectAnswer
}

func (t *turn) selectTool() State {
	entry, err := t.o.registry.Lookup(t.action.Tool)
	if err == nil {
		t.entry = entry
		return StateExecuteTool
	}
	t.o.logger.Info("routed to unknown tool", zap.String("tool", t.action.Tool))
	if t.o.opts.SynthesisEnabled && t.o.synthesizer != nil && !t.attempted {
		return StateTriggerSynthesis
	}
	t.fail("failed", msgNoTool)
	return StateComposeResponse
}

func (t *turn) triggerSynthesis(ctx context.Context) State {
	t.attempted = true

	request := t.message
	if t.action.Capability != "" {
		request += "\n\nMissing capability: " + t.action.Capability
	} else if t.action.Tool != "" {
		request += "\n\nSuggested tool name: " + t.action.Tool
	}

	out, err := t.o.synthesizer.Synthesize(ctx, request)
	switch {
	case err == nil:
		t.entry = out.Entry
		t.args = out.Arguments
		t.synthesized = true
		return StateExecuteTool
	case ctx.Err() != nil:
		return StateDone
	case errors.Is(err, synth.ErrLedgerBlocked):
		t.fail("blocked", msgLedgerBlocked)
	default:
		t.fail("failed", msgSynthesisFailed)
	}
	return StateComposeResponse
}

func (t *turn) execute(ctx context.Context) State {
	name := t.entry.Descriptor.Name
	if !t.emit(ctx, composer.ToolInvoked(name, t.args)) {
		return StateDone
	}

	t.result = t.o.invoker.Invoke(ctx, t.entry, t.args)
	if ctx.Err() != nil {
		return StateDone
	}
	t.emit(ctx, composer.ToolResult(name, t.result.Payload, t.result.Reason))

	t.trace = &schema.ToolTrace{
		Tool:        name,
		Arguments:   tools.RedactArguments(t.args),
		Status:      string(t.result.Status),
		Output:      t.result.Payload,
		Synthesized: t.synthesized,
	}

	switch t.result.Status {
	case tools.StatusSuccess:
		t.outcome = "tool"
		if t.synthesized {
			t.outcome = "synthesized"
		}
		return StateIntegrateResult
	case tools.StatusValidationFailure:
		t.fail("failed", validationMessage(name, t.result.Reason))
	case tools.StatusTimeout:
		t.fail("timeout", timeoutMessage(name))
	default:
		t.fail("failed", executionMessage(name))
	}
	return StateComposeResponse
}

func (t *turn) integrate(ctx context.Context) State {
	name := t.entry.Descriptor.Name
	if !t.o.opts.IntegrateResults {
		t.text(ctx, rawResultMessage(name, t.result.Payload))
		return StateComposeResponse
	}

	msgs := integrationMessages(t.o.opts.Persona, t.history, t.message, name, t.result.Payload)
	emitted := false
	_, err := t.stream(ctx, msgs, func(tok string) string {
		if tok != "" {
			emitted = true
		}
		return tok
	})
	if err != nil && ctx.Err() == nil {
		t.o.logger.Warn("integration generation failed", zap.String("tool", name), zap.Error(err))
		if emitted {
			t.text(ctx, "\n\n")
		}
		t.text(ctx, rawResultMessage(name, t.result.Payload))
	}
	return StateComposeResponse
}

func (t *turn) appendHistory(ctx context.Context) {
	if t.o.history == nil {
		return
	}
	now := t.o.now().UTC()
	turns := []schema.Turn{
		{Role: "user", Content: t.message, Timestamp: now},
		{Role: "assistant", Content: t.reply.String(), ToolTrace: t.trace, Timestamp: now},
	}
	for _, h := range turns {
		if err := t.o.history.Append(ctx, t.conversationID, h); err != nil {
			t.o.logger.Warn("append history", zap.String("conversation", t.conversationID), zap.Error(err))
			return
		}
	}
}

// stream runs one generation, passing every token through filter and
// emitting what it returns. It returns the full raw reply.
func (t *turn) stream(ctx context.Context, msgs schema.Messages, filter func(string) string) (string, error) {
	model := t.o.opts.Model
	if model == "" {
		model = t.o.provider.DefaultModel()
	}
	chunks, err := t.o.provider.Generate(ctx, msgs, schema.NewChatOptions(model, t.o.opts.MaxTokens, t.o.opts.Temperature))
	if err != nil {
		return "", err
	}

	var raw strings.Builder
	for {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				return raw.String(), nil
			}
			if chunk.Err != nil {
				return raw.String(), chunk.Err
			}
			raw.WriteString(chunk.Text)
			if !t.text(ctx, filter(chunk.Text)) {
				return raw.String(), ctx.Err()
			}
		case <-ctx.Done():
			return raw.String(), ctx.Err()
		}
	}
}

// fail records a failure branch; its message is written by ComposeResponse.
func (t *turn) fail(outcome, message string) {
	t.outcome = outcome
	t.failure = message
}

// text emits a text chunk and records it as part of the reply.
func (t *turn) text(ctx context.Context, s string) bool {
	if s == "" {
		return true
	}
	if !t.emit(ctx, composer.TextChunk(s)) {
		return false
	}
	t.reply.WriteString(s)
	return true
}

func (t *turn) emit(ctx context.Context, e composer.Event) bool {
	select {
	case t.events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}
