package providers

import (
	"context"
	"errors"
	"sync"

	"github.com/crystaldolphin/toolsmith/internal/schema"
)

// ErrScriptExhausted is returned by FakeProvider when no reply is left.
var ErrScriptExhausted = errors.New("fake provider: no scripted reply left")

// FakeReply is one scripted generation.
type FakeReply struct {
	Text string
	// Err fails Generate itself; StreamErr fails the stream after Text.
	Err       error
	StreamErr error
	// Block keeps the stream open until ctx is cancelled.
	Block bool
}

// FakeProvider replays scripted replies in order. It streams each reply in
// small chunks so consumers see real incremental delivery.
type FakeProvider struct {
	mu        sync.Mutex
	replies   []FakeReply
	calls     []schema.Messages
	options   []schema.ChatOptions
	chunkSize int
}

func NewFakeProvider(replies ...FakeReply) *FakeProvider {
	return &FakeProvider{replies: replies, chunkSize: 7}
}

// Text is shorthand for a plain scripted reply.
func Text(s string) FakeReply { return FakeReply{Text: s} }

// Push appends replies to the script.
func (f *FakeProvider) Push(replies ...FakeReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, replies...)
}

func (f *FakeProvider) DefaultModel() string { return "fake-model" }

// Calls returns the prompts seen so far.
func (f *FakeProvider) Calls() []schema.Messages {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]schema.Messages, len(f.calls))
	copy(out, f.calls)
	return out
}

// Options returns the options of every call so far.
func (f *FakeProvider) Options() []schema.ChatOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]schema.ChatOptions, len(f.options))
	copy(out, f.options)
	return out
}

// Remaining is the number of unconsumed replies.
func (f *FakeProvider) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies)
}

func (f *FakeProvider) Generate(ctx context.Context, messages schema.Messages, opts schema.ChatOptions) (<-chan schema.Chunk, error) {
	f.mu.Lock()
	f.calls = append(f.calls, messages.Clone())
	f.options = append(f.options, opts)
	if len(f.replies) == 0 {
		f.mu.Unlock()
		return nil, ErrScriptExhausted
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	size := f.chunkSize
	f.mu.Unlock()

	if reply.Err != nil {
		return nil, reply.Err
	}

	out := make(chan schema.Chunk)
	go func() {
		defer close(out)
		text := []rune(reply.Text)
		for len(text) > 0 {
			n := min(size, len(text))
			select {
			case out <- schema.Chunk{Text: string(text[:n])}:
			case <-ctx.Done():
				return
			}
			text = text[n:]
		}
		if reply.Block {
			<-ctx.Done()
			return
		}
		if reply.StreamErr != nil {
			select {
			case out <- schema.Chunk{Err: reply.StreamErr}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

var _ schema.LLMProvider = (*FakeProvider)(nil)
