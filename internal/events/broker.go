// Package events fans out solve lifecycle events to subscribers of a run.
package events

import (
	"sync"
)

// Event lifecycle types.
const (
	SolveStarted   = "solve.started"
	SolveCompleted = "solve.completed"
	SolveFailed    = "solve.failed"
)

type Event struct {
	Type  string         `json:"type"`
	RunID string         `json:"runId"`
	Data  map[string]any `json:"data,omitempty"`
}

// Terminal reports whether no further events follow for the run.
func (e Event) Terminal() bool { return e.Type == SolveCompleted || e.Type == SolveFailed }

type EventBroker interface {
	Subscribe(runID string) chan Event
	Unsubscribe(runID string, ch chan Event)
	Publish(runID string, evt Event)
}

// Broker is the in-process EventBroker. Slow subscribers drop events rather
// than block publishers.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{} // runId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(runID string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = map[chan Event]struct{}{}
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(runID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[runID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, runID)
	}
	close(ch)
}

func (b *Broker) Publish(runID string, evt Event) {
	b.mu.Lock()
	m := b.subs[runID]
	for ch := range m {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
