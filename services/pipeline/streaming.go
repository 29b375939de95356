package pipeline

import (
	"context"
	"sync"

	"github.com/yggdrasillabs/yggdrasil/pkg/types"
)

// EventKind tags a streaming event.
type EventKind string

const (
	EventThinking EventKind = "thinking"
	EventResponse EventKind = "response"
	EventError    EventKind = "error"
)

// Event is one element of the streaming sequence. A stream carries zero or
// more thinking events and terminates with exactly one response or error.
type Event struct {
	Kind     EventKind
	Thinking *types.ThinkingStep
	Response *types.YggdrasilResponse
	Error    string
}

// ProcessWithThinking runs the pipeline and returns the response together
// with every thinking step emitted along the way.
func (p *Pipeline) ProcessWithThinking(ctx context.Context, req Request) (*types.YggdrasilResponse, []types.ThinkingStep, error) {
	var (
		mu    sync.Mutex
		steps []types.ThinkingStep
	)
	resp, err := p.Process(ctx, req, func(step types.ThinkingStep) {
		mu.Lock()
		steps = append(steps, step)
		mu.Unlock()
	})
	return resp, steps, err
}

// ProcessWithStreaming runs the pipeline in the background and returns a
// channel of events. The channel is closed after the terminal response or
// error event.
func (p *Pipeline) ProcessWithStreaming(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event, 16)

	go func() {
		defer close(events)

		resp, err := p.Process(ctx, req, func(step types.ThinkingStep) {
			s := step
			select {
			case events <- Event{Kind: EventThinking, Thinking: &s}:
			case <-ctx.Done():
			}
		})
		if err != nil {
			events <- Event{Kind: EventError, Error: err.Error()}
			return
		}
		events <- Event{Kind: EventResponse, Response: resp}
	}()

	return events
}
