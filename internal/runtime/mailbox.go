package runtime

import (
	"context"
	"sync"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/memory"
)

// item is one mailbox entry: an event, or a control task run on the
// session worker.
type item struct {
	ev    *domain.Event
	task  func(ctx context.Context, mem *memory.Memory)
	abort func()
}

// mailbox is an unbounded FIFO shared by producers and the session worker.
type mailbox struct {
	mu     sync.Mutex
	items  []item
	notify chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{notify: make(chan struct{}, 1)}
}

func (b *mailbox) push(it item) {
	b.mu.Lock()
	b.items = append(b.items, it)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *mailbox) pop() (item, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.items) == 0 {
		return item{}, false
	}
	it := b.items[0]
	b.items[0] = item{}
	b.items = b.items[1:]
	return it, true
}

// popEvent removes the oldest event, leaving control tasks in place.
func (b *mailbox) popEvent() (domain.Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, it := range b.items {
		if it.ev == nil {
			continue
		}
		b.items = append(b.items[:i], b.items[i+1:]...)
		return *it.ev, true
	}
	return domain.Event{}, false
}

func (b *mailbox) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// drainAll empties the mailbox and returns what it held.
func (b *mailbox) drainAll() []item {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	return items
}

// Next implements Inbox for wait listeners.
func (b *mailbox) Next(ctx context.Context) (domain.Event, bool) {
	for {
		if ev, ok := b.popEvent(); ok {
			return ev, true
		}
		select {
		case <-b.notify:
		case <-ctx.Done():
			return domain.Event{}, false
		}
	}
}
