package supabase

import (
	"sync"

	domainauth "github.com/consorcio10demayo/canalero-auth/internal/domain/auth"
)

// eventHub fans auth change events out to registered listeners. A single
// dispatch goroutine drains a FIFO queue, so listeners observe events one
// at a time in emission order even when emitters run concurrently.
type eventHub struct {
	mu   sync.Mutex
	subs []*subscription

	queue chan domainauth.Event
	done  chan struct{}
	once  sync.Once
}

type subscription struct {
	fn func(domainauth.Event)
}

func newEventHub() *eventHub {
	h := &eventHub{
		queue: make(chan domainauth.Event, 64),
		done:  make(chan struct{}),
	}
	go h.dispatch()
	return h
}

func (h *eventHub) dispatch() {
	for {
		select {
		case ev := <-h.queue:
			select {
			case <-h.done:
				return
			default:
			}
			h.mu.Lock()
			subs := make([]*subscription, len(h.subs))
			copy(subs, h.subs)
			h.mu.Unlock()
			for _, s := range subs {
				s.fn(ev)
			}
		case <-h.done:
			return
		}
	}
}

// subscribe registers fn and returns its removal function. Listeners are
// kept in registration order.
func (h *eventHub) subscribe(fn func(domainauth.Event)) func() {
	s := &subscription{fn: fn}
	h.mu.Lock()
	h.subs = append(h.subs, s)
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, cur := range h.subs {
			if cur == s {
				h.subs = append(h.subs[:i], h.subs[i+1:]...)
				return
			}
		}
	}
}

// emit queues an event for delivery. Emission blocks only when the queue
// is full, which preserves ordering under bursts.
func (h *eventHub) emit(ev domainauth.Event) {
	select {
	case h.queue <- ev:
	case <-h.done:
	}
}

// close stops the dispatch goroutine. Queued but undelivered events are
// dropped.
func (h *eventHub) close() {
	h.once.Do(func() { close(h.done) })
}
