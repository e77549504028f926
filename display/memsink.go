package display

import (
	"context"
	"sync"
)

// MemSink is an in-process Sink that records every Event it receives, in
// order. It is used by tests and by callers that want to replay the
// display stream (e.g. an HTTP SSE adapter) without a broker.
type MemSink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemSink returns an empty MemSink.
func NewMemSink() *MemSink {
	return &MemSink{}
}

func (s *MemSink) Emit(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a snapshot of the events recorded so far, in submission
// order.
func (s *MemSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
