package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/crystaldolphin/toolsmith/internal/schema"
	"github.com/crystaldolphin/toolsmith/internal/telemetry"
)

// ResultStatus tags the outcome of one invocation.
type ResultStatus string

const (
	StatusSuccess           ResultStatus = "success"
	StatusValidationFailure ResultStatus = "validation_failure"
	StatusExecutionFailure  ResultStatus = "execution_failure"
	StatusTimeout           ResultStatus = "timeout"
)

// Result is the tagged invocation variant. Payload is set on success, Reason
// on every failure.
type Result struct {
	Status   ResultStatus
	Payload  string
	Reason   string
	Duration time.Duration
}

// OK reports whether the invocation succeeded.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// Err maps the result back onto the package sentinels; nil on success.
func (r Result) Err() error {
	switch r.Status {
	case StatusSuccess:
		return nil
	case StatusValidationFailure:
		return fmt.Errorf("%w: %s", ErrValidation, r.Reason)
	case StatusTimeout:
		return fmt.Errorf("%w: %s", ErrTimeout, r.Reason)
	default:
		return fmt.Errorf("%w: %s", ErrExecution, r.Reason)
	}
}

// Invoker validates arguments and runs tools under a time budget.
type Invoker struct {
	timeout   time.Duration
	sem       *semaphore.Weighted
	abandoned atomic.Int64
	logger    *zap.Logger
	metrics   telemetry.Metrics
}

// NewInvoker returns an Invoker. maxConcurrent bounds tool executions across
// all conversations; values below 1 mean one.
func NewInvoker(timeout time.Duration, maxConcurrent int64, logger *zap.Logger, metrics telemetry.Metrics) *Invoker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Invoker{
		timeout: timeout,
		sem:     semaphore.NewWeighted(maxConcurrent),
		logger:  logger.Named("invoker"),
		metrics: metrics,
	}
}

type execOutcome struct {
	payload string
	err     error
}

const (
	execRunning int32 = iota
	execFinished
	execAbandoned
)

// Abandoned is the number of timed-out executions still running. They no
// longer count against the concurrency limit.
func (inv *Invoker) Abandoned() int64 { return inv.abandoned.Load() }

// Invoke validates args against the entry's schema and executes the tool.
// It never blocks past the tool's budget, including time spent waiting for a
// concurrency slot. A tool that ignores cancellation is abandoned, reported
// as a timeout, and gives its slot back.
func (inv *Invoker) Invoke(ctx context.Context, entry Entry, args map[string]any) Result {
	name := entry.Descriptor.Name
	start := time.Now()

	res := inv.invoke(ctx, entry, args)
	res.Duration = time.Since(start)

	inv.metrics.ObserveToolInvocation(name, string(res.Status), res.Duration)
	if res.OK() {
		inv.logger.Debug("tool succeeded",
			zap.String("tool", name),
			zap.Duration("duration", res.Duration))
	} else {
		inv.logger.Warn("tool failed",
			zap.String("tool", name),
			zap.String("status", string(res.Status)),
			zap.String("reason", res.Reason),
			zap.Any("arguments", RedactArguments(args)),
			zap.Duration("duration", res.Duration))
	}
	return res
}

func (inv *Invoker) invoke(ctx context.Context, entry Entry, args map[string]any) Result {
	validated, err := ValidateArguments(args, entry.Descriptor.Params)
	if err != nil {
		return Result{Status: StatusValidationFailure, Reason: strings.TrimPrefix(err.Error(), ErrValidation.Error()+": ")}
	}

	budget := inv.timeout
	if tb, ok := entry.Tool.(schema.TimeBudgeted); ok && tb.Timeout() > 0 {
		budget = tb.Timeout()
	}

	tctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	// Waiting for a slot counts against the budget.
	if err := inv.sem.Acquire(tctx, 1); err != nil {
		return inv.classify(ctx, tctx, budget, err)
	}
	defer inv.sem.Release(1)

	var state atomic.Int32
	done := make(chan execOutcome, 1)
	go func() {
		defer func() {
			if !state.CompareAndSwap(execRunning, execFinished) {
				inv.abandoned.Add(-1)
			}
		}()
		defer func() {
			if r := recover(); r != nil {
				done <- execOutcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		payload, err := entry.Tool.Execute(tctx, validated)
		done <- execOutcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		if out.err == nil {
			return Result{Status: StatusSuccess, Payload: out.payload}
		}
		return inv.classify(ctx, tctx, budget, out.err)
	case <-tctx.Done():
		if state.CompareAndSwap(execRunning, execAbandoned) {
			inv.logger.Warn("abandoning tool that ignored cancellation",
				zap.String("tool", entry.Descriptor.Name),
				zap.Int64("abandoned", inv.abandoned.Add(1)))
		}
		return inv.classify(ctx, tctx, budget, tctx.Err())
	}
}

// classify separates the tool's own deadline from cancellation of the turn.
func (inv *Invoker) classify(parent, tctx context.Context, budget time.Duration, err error) Result {
	switch {
	case parent.Err() != nil:
		return Result{Status: StatusExecutionFailure, Reason: "cancelled"}
	case errors.Is(tctx.Err(), context.DeadlineExceeded):
		return Result{Status: StatusTimeout, Reason: fmt.Sprintf("exceeded %s", budget)}
	case errors.Is(err, ErrValidation):
		return Result{Status: StatusValidationFailure, Reason: err.Error()}
	default:
		return Result{Status: StatusExecutionFailure, Reason: err.Error()}
	}
}

var secretKeyMarkers = []string{"key", "token", "password", "secret"}

// RedactArguments returns a copy of args with secret-looking values masked.
func RedactArguments(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		lower := strings.ToLower(k)
		redact := false
		for _, m := range secretKeyMarkers {
			if strings.Contains(lower, m) {
				redact = true
				break
			}
		}
		if redact {
			out[k] = "***"
			continue
		}
		out[k] = v
	}
	return out
}
