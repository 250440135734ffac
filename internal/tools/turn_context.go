package tools

import "context"

// TurnContext carries per-turn identifiers through the context tree.
// It is set by the orchestrator once per turn and read by the invoker and by
// tools that forward it to their own process environment.
type TurnContext struct {
	ConversationID string
	TurnID         string
}

type turnKey struct{}

// WithTurn returns a child context that carries tc.
func WithTurn(ctx context.Context, tc TurnContext) context.Context {
	return context.WithValue(ctx, turnKey{}, tc)
}

// TurnCtx extracts the TurnContext from ctx.
// Returns a zero-value TurnContext if none was set.
func TurnCtx(ctx context.Context) TurnContext {
	tc, _ := ctx.Value(turnKey{}).(TurnContext)
	return tc
}
