package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crystaldolphin/toolsmith/internal/schema"
	"github.com/crystaldolphin/toolsmith/internal/telemetry"
)

func newTestInvoker(timeout time.Duration) *Invoker {
	return NewInvoker(timeout, 4, zap.NewNop(), telemetry.NewNoopMetrics())
}

func TestInvoker_Success(t *testing.T) {
	tool := &stubTool{
		name:   "echo",
		params: []schema.Param{{Name: "text", Type: schema.TypeString, Required: true}},
		run: func(_ context.Context, args map[string]any) (string, error) {
			return args["text"].(string), nil
		},
	}

	res := newTestInvoker(time.Second).Invoke(context.Background(), entryFor(tool), map[string]any{"text": "hi"})
	require.Equal(t, StatusSuccess, res.Status)
	require.Equal(t, "hi", res.Payload)
	require.NoError(t, res.Err())
}

func TestInvoker_ValidationShortCircuits(t *testing.T) {
	ran := false
	tool := &stubTool{
		name:   "echo",
		params: []schema.Param{{Name: "text", Type: schema.TypeString, Required: true}},
		run: func(context.Context, map[string]any) (string, error) {
			ran = true
			return "", nil
		},
	}

	res := newTestInvoker(time.Second).Invoke(context.Background(), entryFor(tool), map[string]any{})
	require.Equal(t, StatusValidationFailure, res.Status)
	require.False(t, ran)
	require.ErrorIs(t, res.Err(), ErrValidation)
}

func TestInvoker_ExecutionFailure(t *testing.T) {
	tool := &stubTool{
		name: "broken",
		run: func(context.Context, map[string]any) (string, error) {
			return "", errors.New("upstream returned 500")
		},
	}

	res := newTestInvoker(time.Second).Invoke(context.Background(), entryFor(tool), nil)
	require.Equal(t, StatusExecutionFailure, res.Status)
	require.Contains(t, res.Reason, "upstream returned 500")
	require.ErrorIs(t, res.Err(), ErrExecution)
}

func TestInvoker_PanicIsExecutionFailure(t *testing.T) {
	tool := &stubTool{
		name: "panicky",
		run: func(context.Context, map[string]any) (string, error) {
			panic("boom")
		},
	}

	res := newTestInvoker(time.Second).Invoke(context.Background(), entryFor(tool), nil)
	require.Equal(t, StatusExecutionFailure, res.Status)
	require.Contains(t, res.Reason, "boom")
}

func TestInvoker_TimeoutDoesNotHang(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	tool := &stubTool{
		name: "stuck",
		run: func(context.Context, map[string]any) (string, error) {
			<-release // ignores cancellation
			return "late", nil
		},
	}

	start := time.Now()
	res := newTestInvoker(50*time.Millisecond).Invoke(context.Background(), entryFor(tool), nil)
	require.Equal(t, StatusTimeout, res.Status)
	require.ErrorIs(t, res.Err(), ErrTimeout)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestInvoker_AbandonedToolReleasesSlot(t *testing.T) {
	release := make(chan struct{})
	stuck := &stubTool{
		name: "stuck",
		run: func(context.Context, map[string]any) (string, error) {
			<-release
			return "late", nil
		},
	}
	healthy := &stubTool{
		name: "healthy",
		run: func(context.Context, map[string]any) (string, error) {
			return "ok", nil
		},
	}

	inv := NewInvoker(50*time.Millisecond, 1, zap.NewNop(), telemetry.NewNoopMetrics())
	require.Equal(t, StatusTimeout, inv.Invoke(context.Background(), entryFor(stuck), nil).Status)
	require.EqualValues(t, 1, inv.Abandoned())

	done := make(chan Result, 1)
	go func() { done <- inv.Invoke(context.Background(), entryFor(healthy), nil) }()
	select {
	case res := <-done:
		require.Equal(t, StatusSuccess, res.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("healthy tool blocked behind an abandoned execution")
	}

	close(release)
	require.Eventually(t, func() bool { return inv.Abandoned() == 0 }, time.Second, 5*time.Millisecond)
}

func TestInvoker_WaitingForSlotIsBounded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	busy := &stubTool{
		name: "busy",
		run: func(context.Context, map[string]any) (string, error) {
			close(started)
			<-release
			return "", nil
		},
	}
	queued := &stubTool{
		name:    "queued",
		timeout: 30 * time.Millisecond,
		run: func(context.Context, map[string]any) (string, error) {
			return "ran", nil
		},
	}

	inv := NewInvoker(time.Minute, 1, zap.NewNop(), telemetry.NewNoopMetrics())
	go inv.Invoke(context.Background(), entryFor(busy), nil)
	<-started

	start := time.Now()
	res := inv.Invoke(context.Background(), entryFor(queued), nil)
	require.Equal(t, StatusTimeout, res.Status)
	require.Less(t, time.Since(start), time.Second)
}

func TestInvoker_ToolBudgetOverridesDefault(t *testing.T) {
	tool := &stubTool{
		name:    "slow",
		timeout: 20 * time.Millisecond,
		run: func(ctx context.Context, _ map[string]any) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}

	res := newTestInvoker(time.Minute).Invoke(context.Background(), entryFor(tool), nil)
	require.Equal(t, StatusTimeout, res.Status)
}

func TestInvoker_ParentCancelIsNotTimeout(t *testing.T) {
	tool := &stubTool{
		name: "waits",
		run: func(ctx context.Context, _ map[string]any) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	res := newTestInvoker(time.Minute).Invoke(ctx, entryFor(tool), nil)
	require.Equal(t, StatusExecutionFailure, res.Status)
	require.Equal(t, "cancelled", res.Reason)
}

func TestRedactArguments(t *testing.T) {
	got := RedactArguments(map[string]any{"api_key": "abc", "Password": "p", "city": "Ankara"})
	require.Equal(t, map[string]any{"api_key": "***", "Password": "***", "city": "Ankara"}, got)
}
