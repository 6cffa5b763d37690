// Package aitest provides a scripted ModelProvider for tests.
package aitest

import (
	"context"
	"sync"

	"github.com/benvon/finance-advisor/internal/services/ai"
)

// Provider replays canned answers. Complete returns Response or Err; Stream emits Deltas
// then Done, or StreamErr after the deltas when it is set.
type Provider struct {
	Response  string
	Err       error
	Deltas    []string
	StreamErr error
	// OpenErr fails Stream before any event is produced
	OpenErr error

	mu       sync.Mutex
	requests []ai.CompletionRequest
}

var _ ai.ModelProvider = (*Provider)(nil)

// Name implements ai.ModelProvider
func (p *Provider) Name() string { return "fake" }

// Complete implements ai.ModelProvider
func (p *Provider) Complete(_ context.Context, req ai.CompletionRequest) (string, error) {
	p.record(req)
	if p.Err != nil {
		return "", p.Err
	}
	return p.Response, nil
}

// Stream implements ai.ModelProvider. Cancelling ctx stops the replay.
func (p *Provider) Stream(ctx context.Context, req ai.CompletionRequest) (<-chan ai.StreamEvent, error) {
	p.record(req)
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}

	events := make(chan ai.StreamEvent)
	go func() {
		defer close(events)
		emit := func(ev ai.StreamEvent) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, d := range p.Deltas {
			if !emit(ai.StreamEvent{Type: ai.StreamEventDelta, Content: d}) {
				return
			}
		}
		if p.StreamErr != nil {
			emit(ai.StreamEvent{Type: ai.StreamEventError, Err: p.StreamErr})
			return
		}
		emit(ai.StreamEvent{Type: ai.StreamEventDone})
	}()
	return events, nil
}

// Requests returns every request received so far
func (p *Provider) Requests() []ai.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ai.CompletionRequest(nil), p.requests...)
}

func (p *Provider) record(req ai.CompletionRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
}

// Blocking is a provider whose stream emits one delta and then waits for cancellation.
// Closed reports when the stream goroutine has exited.
type Blocking struct {
	First  string
	Closed chan struct{}
}

var _ ai.ModelProvider = (*Blocking)(nil)

// NewBlocking creates a Blocking provider
func NewBlocking(first string) *Blocking {
	return &Blocking{First: first, Closed: make(chan struct{})}
}

// Name implements ai.ModelProvider
func (b *Blocking) Name() string { return "blocking" }

// Complete implements ai.ModelProvider by waiting for cancellation
func (b *Blocking) Complete(ctx context.Context, _ ai.CompletionRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

// Stream implements ai.ModelProvider
func (b *Blocking) Stream(ctx context.Context, _ ai.CompletionRequest) (<-chan ai.StreamEvent, error) {
	events := make(chan ai.StreamEvent)
	go func() {
		defer close(b.Closed)
		defer close(events)
		select {
		case events <- ai.StreamEvent{Type: ai.StreamEventDelta, Content: b.First}:
		case <-ctx.Done():
			return
		}
		<-ctx.Done()
	}()
	return events, nil
}
