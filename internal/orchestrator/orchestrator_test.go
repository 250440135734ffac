package orchestrator

import (
	"context"
	"encoding/json"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/toolsmith/internal/composer"
	"github.com/crystaldolphin/toolsmith/internal/ledger"
	"github.com/crystaldolphin/toolsmith/internal/providers"
	"github.com/crystaldolphin/toolsmith/internal/schema"
	"github.com/crystaldolphin/toolsmith/internal/session"
	"github.com/crystaldolphin/toolsmith/internal/synth"
	"github.com/crystaldolphin/toolsmith/internal/toolbox"
	"github.com/crystaldolphin/toolsmith/internal/tools"
	"github.com/crystaldolphin/toolsmith/internal/tools/builtin"
)

type slowTool struct{}

func (slowTool) Name() string           { return "slow_tool" }
func (slowTool) Description() string    { return "Never finishes in time" }
func (slowTool) Params() []schema.Param { return nil }
func (slowTool) Timeout() time.Duration { return 50 * time.Millisecond }
func (slowTool) Execute(ctx context.Context, _ map[string]any) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type harness struct {
	fake     *providers.FakeProvider
	registry *tools.Registry
	manager  *toolbox.Manager
	history  *session.Store
	orch     *Orchestrator
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	dir := t.TempDir()

	led, err := ledger.Open(filepath.Join(dir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = led.Close() })

	b := tools.NewRegistryBuilder().WithBlocked(led.IsBlocked)
	for _, tool := range builtin.All(builtin.Options{}) {
		b.WithTool(tool)
	}
	reg, err := b.WithTool(slowTool{}).Build()
	require.NoError(t, err)

	store, err := toolbox.NewStore(filepath.Join(dir, "tools"))
	require.NoError(t, err)
	mgr := toolbox.NewManager(store, reg, led, toolbox.ManagerOptions{}, nil, nil)

	history, err := session.NewStore(filepath.Join(dir, "history"), nil)
	require.NoError(t, err)

	fake := providers.NewFakeProvider()
	synthesizer := synth.NewSynthesizer(fake, reg, led, mgr, nil, synth.Options{}, nil, nil)
	invoker := tools.NewInvoker(5*time.Second, 4, nil, nil)

	return &harness{
		fake:     fake,
		registry: reg,
		manager:  mgr,
		history:  history,
		orch:     New(fake, reg, invoker, synthesizer, history, opts, nil, nil),
	}
}

func (h *harness) turn(t *testing.T, conversation, message string) []composer.Frame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	sink := &composer.CollectSink{}
	require.NoError(t, composer.New(nil).Stream(ctx, h.orch.Turn(ctx, conversation, message), sink, cancel))
	return sink.Frames()
}

func textOf(frames []composer.Frame) string {
	var sb strings.Builder
	for _, f := range frames {
		if f.Type == composer.FrameText {
			sb.WriteString(f.Content)
		}
	}
	return sb.String()
}

func framesOf(frames []composer.Frame, typ composer.FrameType) []composer.Frame {
	var out []composer.Frame
	for _, f := range frames {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

// requireGrammar checks text* (tool_code tool_output)? text* end.
func requireGrammar(t *testing.T, frames []composer.Frame) {
	t.Helper()
	require.NotEmpty(t, frames)
	require.Equal(t, composer.FrameEnd, frames[len(frames)-1].Type)
	require.Len(t, framesOf(frames, composer.FrameEnd), 1)

	codes := framesOf(frames, composer.FrameToolCode)
	outputs := framesOf(frames, composer.FrameToolOutput)
	require.LessOrEqual(t, len(codes), 1)
	require.Equal(t, len(codes), len(outputs))
	for i, f := range frames {
		if f.Type == composer.FrameToolCode {
			require.Equal(t, composer.FrameToolOutput, frames[i+1].Type)
		}
	}
}

const converterSource = `def execute(args):
    rates = {"USD": 1.0, "EUR": 0.92, "TRY": 34.5}
    amount = float(args.get("amount", 1))
    return round(amount / rates[args["from_currency"]] * rates[args["to_currency"]], 2)
`

func converterCandidate(t *testing.T) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{
		"name":        "currency_converter",
		"description": "Convert an amount between currencies",
		"runtime":     "python",
		"parameters": []map[string]any{
			{"name": "amount", "type": "number", "required": true},
			{"name": "from_currency", "type": "string", "required": true},
			{"name": "to_currency", "type": "string", "required": true},
		},
		"source":    converterSource,
		"arguments": map[string]any{"amount": 1, "from_currency": "USD", "to_currency": "TRY"},
	})
	require.NoError(t, err)
	return "```json\n" + string(b) + "\n```"
}

func TestTurn_DirectAnswer(t *testing.T) {
	h := newHarness(t, Options{SynthesisEnabled: true})
	h.fake.Push(providers.Text("Merhaba! Size nasıl yardımcı olabilirim?"))

	frames := h.turn(t, "c1", "Merhaba")
	requireGrammar(t, frames)
	require.Equal(t, "Merhaba! Size nasıl yardımcı olabilirim?", textOf(frames))
	require.Empty(t, framesOf(frames, composer.FrameToolCode))
}

func TestTurn_ArithmeticTool(t *testing.T) {
	h := newHarness(t, Options{SynthesisEnabled: true, IntegrateResults: true})
	h.fake.Push(
		providers.Text(`Hesaplıyorum. <action><tool>calculate_math</tool><args>{"expression": "2+2*3"}</args></action>`),
		providers.Text("2+2*3 işleminin sonucu 8."),
	)

	frames := h.turn(t, "c1", "2+2*3 hesaplar mısın?")
	requireGrammar(t, frames)

	require.Equal(t, composer.FrameText, frames[0].Type)
	outputs := framesOf(frames, composer.FrameToolOutput)
	require.Equal(t, "8", outputs[0].Content)
	require.Contains(t, textOf(frames), "8")
	require.NotContains(t, textOf(frames), "<action>")
	require.Zero(t, h.fake.Remaining())

	// The integration prompt carries the raw result.
	calls := h.fake.Calls()
	require.Len(t, calls, 2)
	require.Contains(t, calls[1].Last().Content, "8")
}

func TestTurn_IntegrationFailureFallsBackToRawResult(t *testing.T) {
	h := newHarness(t, Options{IntegrateResults: true})
	h.fake.Push(
		providers.Text(`<action><tool>calculate_math</tool><args>{'expression': '18% 250',}</args></action>`),
		providers.FakeReply{Err: context.DeadlineExceeded},
	)

	frames := h.turn(t, "c1", "250'nin %18'i?")
	requireGrammar(t, frames)
	require.Contains(t, textOf(frames), "Result from calculate_math:\n45")
}

func TestTurn_SynthesizesMissingTool(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	h := newHarness(t, Options{SynthesisEnabled: true, IntegrateResults: true})
	h.fake.Push(
		providers.Text("Bir bakayım. <synthesize>convert between currencies</synthesize>"),
		providers.Text(converterCandidate(t)),
		providers.Text("1 dolar şu an 34.5 TL."),
	)

	frames := h.turn(t, "c1", "1 dolar kaç TL?")
	requireGrammar(t, frames)

	codes := framesOf(frames, composer.FrameToolCode)
	require.Len(t, codes, 1)
	require.Contains(t, codes[0].Content, `"tool":"currency_converter"`)
	require.Equal(t, "34.5", framesOf(frames, composer.FrameToolOutput)[0].Content)
	require.Contains(t, textOf(frames), "34.5")
	require.True(t, h.registry.Contains("currency_converter"))
	require.True(t, h.manager.Store().Exists("currency_converter"))

	// The same request now routes to the registered tool without synthesis.
	h.fake.Push(
		providers.Text(`<action><tool>currency_converter</tool><args>{"amount": 1, "from_currency": "USD", "to_currency": "TRY"}</args></action>`),
		providers.Text("Yine 34.5 TL."),
	)
	frames = h.turn(t, "c1", "1 dolar kaç TL?")
	requireGrammar(t, frames)
	require.Equal(t, "34.5", framesOf(frames, composer.FrameToolOutput)[0].Content)
	require.Len(t, h.fake.Calls(), 5)
	require.Contains(t, h.fake.Calls()[3].Messages[0].Content, "currency_converter")
}

func TestTurn_DeletedToolIsNotRecreated(t *testing.T) {
	h := newHarness(t, Options{SynthesisEnabled: true})

	_, err := h.manager.Install(toolbox.Module{
		Manifest: toolbox.Manifest{
			Name:        "currency_converter",
			Description: "Convert an amount between currencies",
			Runtime:     toolbox.RuntimePython,
			Parameters: []schema.Param{
				{Name: "amount", Type: schema.TypeNumber, Required: true},
				{Name: "from_currency", Type: schema.TypeString, Required: true},
				{Name: "to_currency", Type: schema.TypeString, Required: true},
			},
		},
		Source: converterSource,
	})
	require.NoError(t, err)
	_, err = h.manager.DeleteTool("currency_converter")
	require.NoError(t, err)

	h.fake.Push(
		providers.Text(`<action><tool>currency_converter</tool><args>{"amount": 1, "from_currency": "USD", "to_currency": "TRY"}</args></action>`),
		providers.Text(converterCandidate(t)),
	)
	frames := h.turn(t, "c1", "1 dolar kaç TL?")
	requireGrammar(t, frames)

	require.Contains(t, textOf(frames), "removed on purpose")
	require.Empty(t, framesOf(frames, composer.FrameToolCode))
	require.False(t, h.registry.Contains("currency_converter"))
	require.False(t, h.manager.Store().Exists("currency_converter"))
	require.Zero(t, h.fake.Remaining())
}

func TestTurn_AtMostOneSynthesisAttempt(t *testing.T) {
	h := newHarness(t, Options{SynthesisEnabled: true})
	h.fake.Push(
		providers.Text(`<action><tool>weather_lookup</tool><args>{"city": "Ankara"}</args></action>`),
		providers.Text("not a tool"),
		providers.Text("must never be requested"),
	)

	frames := h.turn(t, "c1", "Ankara'da hava nasıl?")
	requireGrammar(t, frames)
	require.Contains(t, textOf(frames), "capability is unavailable")
	require.Len(t, h.fake.Calls(), 2)
	require.Equal(t, 1, h.fake.Remaining())
}

func TestTurn_UnknownToolWithoutSynthesis(t *testing.T) {
	h := newHarness(t, Options{})
	h.fake.Push(providers.Text(`<action><tool>weather_lookup</tool></action>`))

	frames := h.turn(t, "c1", "hava?")
	requireGrammar(t, frames)
	require.Contains(t, textOf(frames), "don't have a tool")
}

func TestTurn_TimeoutThenRecovers(t *testing.T) {
	h := newHarness(t, Options{})
	h.fake.Push(providers.Text(`<action><tool>slow_tool</tool></action>`))

	frames := h.turn(t, "c1", "run the slow thing")
	requireGrammar(t, frames)
	require.Equal(t, "error: exceeded 50ms", framesOf(frames, composer.FrameToolOutput)[0].Content)
	require.Contains(t, textOf(frames), "took too long")

	h.fake.Push(providers.Text(`<action><tool>calculate_math</tool><args>{"expression": "(1+2)*3"}</args></action>`))
	frames = h.turn(t, "c1", "(1+2)*3?")
	requireGrammar(t, frames)
	require.Equal(t, "9", framesOf(frames, composer.FrameToolOutput)[0].Content)
}

func TestTurn_ValidationFailureAsksForClarification(t *testing.T) {
	h := newHarness(t, Options{})
	h.fake.Push(providers.Text(`<action><tool>calculate_math</tool><args>{}</args></action>`))

	frames := h.turn(t, "c1", "calculate")
	requireGrammar(t, frames)
	require.Contains(t, framesOf(frames, composer.FrameToolOutput)[0].Content, "missing required parameter")
	require.Contains(t, textOf(frames), "Could you clarify?")
}

func TestTurn_AppendsHistory(t *testing.T) {
	h := newHarness(t, Options{})
	h.fake.Push(
		providers.Text(`<action><tool>calculate_math</tool><args>{"expression": "2+2"}</args></action>`),
		providers.Text("Sure."),
	)

	h.turn(t, "c1", "2+2?")
	turns, err := h.history.Recent(context.Background(), "c1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "user", turns[0].Role)
	require.Equal(t, "2+2?", turns[0].Content)
	require.Equal(t, "assistant", turns[1].Role)
	require.Equal(t, "calculate_math", turns[1].ToolTrace.Tool)
	require.Equal(t, "success", turns[1].ToolTrace.Status)

	h.turn(t, "c1", "thanks")
	calls := h.fake.Calls()
	second := calls[len(calls)-1]
	require.Equal(t, 4, second.Len())
	require.Equal(t, "2+2?", second.Messages[1].Content)
}

func TestTurn_CancelStopsStream(t *testing.T) {
	h := newHarness(t, Options{})
	h.fake.Push(providers.FakeReply{Text: "thinking very hard", Block: true})

	ctx, cancel := context.WithCancel(context.Background())
	events := h.orch.Turn(ctx, "c1", "hi")

	first := <-events
	require.Equal(t, composer.KindTextChunk, first.Kind)
	cancel()

	for e := range events {
		require.NotEqual(t, composer.KindEnd, e.Kind)
	}
	turns, err := h.history.Recent(context.Background(), "c1", 10)
	require.NoError(t, err)
	require.Empty(t, turns)
}
