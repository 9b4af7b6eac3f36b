package reportbus

import (
	"context"
)

// Bus fans out ingest wake-ups to subscribed aggregation workers without
// locks. Using channels keeps the API handlers and the workers decoupled
// so a busy worker never stalls an ingest response.
type Bus struct {
	publish     chan int
	subscribe   chan subscription
	unsubscribe chan subscription
}

type subscription struct {
	ch chan int
}

// NewBus constructs a broadcaster dedicated to ingest fan-out.
// The goroutine never stops because it is tied to the process lifetime and
// relies on caller contexts to prune subscribers.
func NewBus(buffer int) *Bus {
	b := &Bus{
		publish:     make(chan int, buffer),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
	}

	go b.run()
	return b
}

// Publish announces that count new reports were appended to the log.
// Non-blocking sends avoid stalling ingestion when every worker is mid
// batch; the periodic worker tick catches whatever a dropped wake-up
// would have announced.
func (b *Bus) Publish(count int) {
	select {
	case b.publish <- count:
	default:
	}
}

// Subscribe registers interest in ingest wake-ups.
// The returned channel closes when the provided context ends.
func (b *Bus) Subscribe(ctx context.Context, buffer int) <-chan int {
	ch := make(chan int, buffer)
	req := subscription{ch: ch}

	b.subscribe <- req

	go func() {
		<-ctx.Done()
		b.unsubscribe <- req
		close(ch)
	}()

	return ch
}

func (b *Bus) run() {
	var listeners []chan int

	for {
		select {
		case req := <-b.subscribe:
			listeners = append(listeners, req.ch)
		case req := <-b.unsubscribe:
			filtered := listeners[:0]
			for _, existing := range listeners {
				if existing != req.ch {
					filtered = append(filtered, existing)
				}
			}
			listeners = filtered
		case n := <-b.publish:
			for _, ch := range listeners {
				select {
				case ch <- n:
				default:
				}
			}
		}
	}
}
