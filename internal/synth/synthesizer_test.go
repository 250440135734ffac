package synth

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/toolsmith/internal/ledger"
	"github.com/crystaldolphin/toolsmith/internal/providers"
	"github.com/crystaldolphin/toolsmith/internal/schema"
	"github.com/crystaldolphin/toolsmith/internal/toolbox"
	"github.com/crystaldolphin/toolsmith/internal/tools"
)

type synthFixture struct {
	provider *providers.FakeProvider
	ledger   *ledger.Ledger
	manager  *toolbox.Manager
	synth    *Synthesizer
}

func newSynthFixture(t *testing.T, replies ...providers.FakeReply) *synthFixture {
	t.Helper()
	dir := t.TempDir()
	store, err := toolbox.NewStore(filepath.Join(dir, "tools"))
	require.NoError(t, err)
	led, err := ledger.Open(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = led.Close() })

	reg := tools.NewRegistry()
	mgr := toolbox.NewManager(store, reg, led, toolbox.ManagerOptions{}, nil, nil)
	fake := providers.NewFakeProvider(replies...)
	return &synthFixture{
		provider: fake,
		ledger:   led,
		manager:  mgr,
		synth:    NewSynthesizer(fake, reg, led, mgr, nil, Options{}, nil, nil),
	}
}

func TestSynthesize_InstallsAndRegisters(t *testing.T) {
	f := newSynthFixture(t, providers.Text(converterReply))

	out, err := f.synth.Synthesize(context.Background(), "1 dolar kaç TL?")
	require.NoError(t, err)

	require.Equal(t, "currency_converter", out.Entry.Descriptor.Name)
	require.Equal(t, schema.KindDynamic, out.Entry.Descriptor.Kind)
	require.Equal(t, "TRY", out.Arguments["to_currency"])
	require.Equal(t, "installed", out.Attempt.ValidationOutcome)
	require.Equal(t, 1, out.Attempt.AttemptNumber)

	_, err = f.manager.Registry().Lookup("currency_converter")
	require.NoError(t, err)
	require.True(t, f.manager.Store().Exists("currency_converter"))

	opts := f.provider.Options()
	require.Len(t, opts, 1)
	require.InDelta(t, 0.2, opts[0].Temperature, 1e-9)
}

func TestSynthesize_LedgerBlocked(t *testing.T) {
	f := newSynthFixture(t, providers.Text(converterReply), providers.Text(converterReply))

	_, err := f.synth.Synthesize(context.Background(), "1 dolar kaç TL?")
	require.NoError(t, err)
	_, err = f.manager.DeleteTool("currency_converter")
	require.NoError(t, err)

	out, err := f.synth.Synthesize(context.Background(), "1 dolar kaç TL?")
	require.ErrorIs(t, err, ErrLedgerBlocked)
	require.Equal(t, "blocked", out.Attempt.ValidationOutcome)
	require.False(t, f.manager.Registry().Contains("currency_converter"))
	require.False(t, f.manager.Store().Exists("currency_converter"))

	// The second prompt tells the model what was deleted.
	calls := f.provider.Calls()
	require.Len(t, calls, 2)
	require.Contains(t, calls[1].Last().Content, "currency_converter")
}

func TestSynthesize_RegistryConflict(t *testing.T) {
	f := newSynthFixture(t, providers.Text(converterReply), providers.Text(converterReply))

	_, err := f.synth.Synthesize(context.Background(), "usd to try")
	require.NoError(t, err)

	_, err = f.synth.Synthesize(context.Background(), "usd to try again")
	require.ErrorIs(t, err, ErrSynthesisFailure)
	require.ErrorIs(t, err, tools.ErrRegistryConflict)
}

func TestSynthesize_UnsafeSourceRejected(t *testing.T) {
	reply, err := json.Marshal(map[string]any{
		"name":        "list_files",
		"description": "List files",
		"runtime":     "python",
		"parameters":  []any{},
		"source":      "import subprocess\n\ndef execute(args):\n    return subprocess.check_output(['ls']).decode()\n",
	})
	require.NoError(t, err)
	f := newSynthFixture(t, providers.Text(string(reply)))

	_, err = f.synth.Synthesize(context.Background(), "list my files")
	require.ErrorIs(t, err, ErrSynthesisFailure)
	require.ErrorContains(t, err, "process spawning")
	require.False(t, f.manager.Store().Exists("list_files"))
}

func TestSynthesize_GenerationFailure(t *testing.T) {
	f := newSynthFixture(t, providers.FakeReply{Err: errors.New("upstream down")})

	_, err := f.synth.Synthesize(context.Background(), "anything")
	require.ErrorIs(t, err, ErrSynthesisFailure)
}

func TestSynthesize_CancelledTurn(t *testing.T) {
	f := newSynthFixture(t, providers.FakeReply{Text: "{", Block: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.synth.Synthesize(ctx, "anything")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, f.manager.Registry().Len())
}
