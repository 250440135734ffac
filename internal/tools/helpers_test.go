package tools

import (
	"context"
	"time"

	"github.com/crystaldolphin/toolsmith/internal/schema"
)

type stubTool struct {
	name    string
	params  []schema.Param
	timeout time.Duration
	run     func(ctx context.Context, args map[string]any) (string, error)
}

func (s *stubTool) Name() string           { return s.name }
func (s *stubTool) Description() string    { return "stub " + s.name }
func (s *stubTool) Params() []schema.Param { return s.params }
func (s *stubTool) Timeout() time.Duration { return s.timeout }
func (s *stubTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if s.run == nil {
		return "ok", nil
	}
	return s.run(ctx, args)
}

func entryFor(t *stubTool) Entry {
	return Entry{Descriptor: DescriptorOf(t, schema.KindBuiltin, "", time.Unix(0, 0).UTC()), Tool: t}
}
