package schema

import (
	"context"
	"strings"
)

// ChatOptions configures a single generation request.
type ChatOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

func NewChatOptions(model string, maxTokens int, temperature float64) ChatOptions {
	return ChatOptions{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

// Chunk is one piece of a streamed generation. A chunk with a non-nil Err is
// the last value sent on the stream.
type Chunk struct {
	Text string
	Err  error
}

// LLMProvider is the interface every generative model backend must satisfy.
// Generate returns once the request is accepted; tokens then arrive on the
// channel, which is closed when the generation ends or ctx is cancelled.
type LLMProvider interface {
	Generate(ctx context.Context, messages Messages, opts ChatOptions) (<-chan Chunk, error)
	DefaultModel() string
}

// Collect drains a token stream into a single string.
func Collect(ctx context.Context, stream <-chan Chunk) (string, error) {
	var sb strings.Builder
	for {
		select {
		case chunk, ok := <-stream:
			if !ok {
				return sb.String(), nil
			}
			if chunk.Err != nil {
				return sb.String(), chunk.Err
			}
			sb.WriteString(chunk.Text)
		case <-ctx.Done():
			return sb.String(), ctx.Err()
		}
	}
}
