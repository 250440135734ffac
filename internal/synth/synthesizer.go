// Package synth turns an unmet request into a new, installed tool.
package synth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/crystaldolphin/toolsmith/internal/schema"
	"github.com/crystaldolphin/toolsmith/internal/telemetry"
	"github.com/crystaldolphin/toolsmith/internal/toolbox"
	"github.com/crystaldolphin/toolsmith/internal/tools"
)

// Blocker answers whether a candidate was deleted before.
type Blocker interface {
	Blocks(desc schema.ToolDescriptor) bool
	DeletedNames() []string
}

// Installer persists and registers a module.
type Installer interface {
	Install(mod toolbox.Module) (tools.Entry, error)
}

// Attempt is the per-turn record of one synthesis, kept for logging only.
type Attempt struct {
	RequestText       string
	CandidateName     string
	GeneratedSource   string
	ValidationOutcome string
	AttemptNumber     int
}

// Outcome is a successful synthesis: the live tool and the arguments the
// model chose for the current request.
type Outcome struct {
	Entry     tools.Entry
	Arguments map[string]any
	Attempt   Attempt
}

// Options tunes the synthesis call.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	ToolTimeout time.Duration
}

type Synthesizer struct {
	provider  schema.LLMProvider
	registry  *tools.Registry
	blocker   Blocker
	installer Installer
	gate      *Gate
	opts      Options
	logger    *zap.Logger
	metrics   telemetry.Metrics
}

func NewSynthesizer(
	provider schema.LLMProvider,
	registry *tools.Registry,
	blocker Blocker,
	installer Installer,
	gate *Gate,
	opts Options,
	logger *zap.Logger,
	metrics telemetry.Metrics,
) *Synthesizer {
	if opts.Temperature == 0 {
		opts.Temperature = 0.2
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	if gate == nil {
		gate = NewGate(nil, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Synthesizer{
		provider:  provider,
		registry:  registry,
		blocker:   blocker,
		installer: installer,
		gate:      gate,
		opts:      opts,
		logger:    logger.Named("synth"),
		metrics:   metrics,
	}
}

// Synthesize makes one attempt to author, gate, persist and register a
// tool for request. Errors wrap ErrSynthesisFailure or ErrLedgerBlocked,
// or are the context's error when the turn was cancelled.
func (s *Synthesizer) Synthesize(ctx context.Context, request string) (Outcome, error) {
	attempt := Attempt{RequestText: request, AttemptNumber: 1}
	out, err := s.synthesize(ctx, request, &attempt)

	switch {
	case err == nil:
		attempt.ValidationOutcome = "installed"
	case errors.Is(err, ErrLedgerBlocked):
		attempt.ValidationOutcome = "blocked"
	case ctx.Err() != nil:
		attempt.ValidationOutcome = "cancelled"
	default:
		attempt.ValidationOutcome = "rejected: " + err.Error()
	}
	s.metrics.ObserveSynthesis(outcomeLabel(attempt.ValidationOutcome))
	s.logger.Info("synthesis attempt",
		zap.String("request", attempt.RequestText),
		zap.String("candidate", attempt.CandidateName),
		zap.Int("attempt", attempt.AttemptNumber),
		zap.Int("source_bytes", len(attempt.GeneratedSource)),
		zap.String("outcome", attempt.ValidationOutcome))
	s.logger.Debug("synthesis source", zap.String("candidate", attempt.CandidateName), zap.String("source", attempt.GeneratedSource))

	out.Attempt = attempt
	return out, err
}

func outcomeLabel(outcome string) string {
	switch outcome {
	case "installed", "blocked", "cancelled":
		return outcome
	}
	return "rejected"
}

func (s *Synthesizer) synthesize(ctx context.Context, request string, attempt *Attempt) (Outcome, error) {
	msgs := BuildMessages(PromptInput{
		Request:        request,
		Catalogue:      tools.DescribeCatalogue(tools.Catalogue(s.registry)),
		DeletedNames:   s.blocker.DeletedNames(),
		AllowedHosts:   s.gate.allowedHosts,
		AllowedImports: s.gate.allowedImports,
	})

	model := s.opts.Model
	if model == "" {
		model = s.provider.DefaultModel()
	}
	stream, err := s.provider.Generate(ctx, msgs, schema.NewChatOptions(model, s.opts.MaxTokens, s.opts.Temperature))
	if err != nil {
		return Outcome{}, s.generationError(ctx, err)
	}
	raw, err := schema.Collect(ctx, stream)
	if err != nil {
		return Outcome{}, s.generationError(ctx, err)
	}

	cand, err := ParseCandidate(raw)
	if err != nil {
		return Outcome{}, err
	}
	attempt.CandidateName = cand.Name
	attempt.GeneratedSource = cand.Source

	if err := s.gate.Check(cand.Runtime, cand.Source); err != nil {
		return Outcome{}, err
	}

	desc := schema.ToolDescriptor{Name: cand.Name, Description: cand.Description, Params: cand.Parameters, Kind: schema.KindDynamic}
	if s.blocker.Blocks(desc) {
		return Outcome{}, fmt.Errorf("%w: %q", ErrLedgerBlocked, cand.Name)
	}
	if s.registry.Contains(cand.Name) {
		return Outcome{}, fmt.Errorf("%w: %w: %q", ErrSynthesisFailure, tools.ErrRegistryConflict, cand.Name)
	}

	timeoutSeconds := int(s.opts.ToolTimeout / time.Second)
	entry, err := s.installer.Install(toolbox.Module{
		Manifest: toolbox.Manifest{
			Name:           cand.Name,
			Description:    cand.Description,
			Runtime:        cand.Runtime,
			TimeoutSeconds: timeoutSeconds,
			Parameters:     cand.Parameters,
		},
		Source: WithHarness(cand.Runtime, cand.Source),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: install %q: %w", ErrSynthesisFailure, cand.Name, err)
	}

	return Outcome{Entry: entry, Arguments: cand.Arguments}, nil
}

func (s *Synthesizer) generationError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: generate: %w", ErrSynthesisFailure, err)
}
