package httpapi

import (
	"sync"

	"github.com/exeteres/wg-relay/internal/model"
)

// Broadcaster fans status updates out to event-stream subscribers. A slow
// subscriber misses updates instead of blocking the publisher.
type Broadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan model.ConnectionStatus
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: map[int]chan model.ConnectionStatus{}}
}

func (b *Broadcaster) Subscribe() (<-chan model.ConnectionStatus, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan model.ConnectionStatus, 4)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *Broadcaster) Publish(st model.ConnectionStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- st:
		default:
		}
	}
}
