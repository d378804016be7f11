package api

import (
	"sync"

	"vidsub/internal/pipeline"
)

const subscriberBuffer = 256

// Hub fans controller notifications out to websocket subscribers. It
// implements pipeline.Observer. Slow subscribers lose events rather than
// stalling the run goroutine.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	closed bool
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a listener. The returned cancel function unregisters it
// and closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
			h.mu.Unlock()
		})
	}
}

// Subscribers returns the number of active listeners.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// Publish delivers ev to every subscriber with room in its buffer.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *Hub) StatusChanged(ev pipeline.StatusEvent) {
	h.Publish(Event{
		Type:  EventStatus,
		RunID: ev.RunID,
		Time:  formatTime(ev.Time),
		Status: &StatusEventPayload{
			Status:  string(ev.Status),
			Label:   ev.Status.Label(),
			Message: ev.Message,
		},
	})
}

func (h *Hub) ProgressChanged(ev pipeline.ProgressEvent) {
	progress := FromProgress(ev.Progress)
	h.Publish(Event{Type: EventProgress, RunID: ev.RunID, Progress: &progress})
}

func (h *Hub) Output(ev pipeline.OutputEvent) {
	h.Publish(Event{
		Type:   EventOutput,
		RunID:  ev.RunID,
		Output: &OutputPayload{Stage: string(ev.Stage), Stream: ev.Stream, Text: ev.Text},
	})
}

func (h *Hub) Finished(res pipeline.Result) {
	result := FromResult(res)
	h.Publish(Event{Type: EventFinished, RunID: res.RunID, Time: formatTime(res.Finished), Result: &result})
}
