// Package lane keeps work for one key in arrival order while different keys
// proceed in parallel.
//
// A caller reserves a place in the key's lane on the goroutine that receives
// the work, then hands the ticket to a worker that waits for its turn:
//
//	t := lanes.Reserve(contactID)
//	go func() {
//		defer t.Done()
//		if err := t.Wait(ctx); err != nil {
//			return
//		}
//		deliver()
//	}()
package lane

import (
	"context"
	"sync"
)

// Lanes tracks the tail of every busy lane. Idle keys hold no memory.
type Lanes struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

// New creates an empty Lanes.
func New() *Lanes {
	return &Lanes{tails: make(map[string]chan struct{})}
}

// Ticket is one place in a lane.
type Ticket struct {
	lanes *Lanes
	key   string
	prev  chan struct{}
	mine  chan struct{}
}

// Reserve appends a place to key's lane. An empty key gets a ticket that
// never waits.
func (l *Lanes) Reserve(key string) Ticket {
	t := Ticket{lanes: l, key: key, mine: make(chan struct{})}
	if key == "" {
		return t
	}
	l.mu.Lock()
	t.prev = l.tails[key]
	l.tails[key] = t.mine
	l.mu.Unlock()
	return t
}

// Wait blocks until every earlier ticket of the lane is done.
func (t Ticket) Wait(ctx context.Context) error {
	if t.prev == nil {
		return nil
	}
	select {
	case <-t.prev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done releases the next ticket. It must be called exactly once, also when
// Wait failed.
func (t Ticket) Done() {
	if t.key != "" {
		t.lanes.mu.Lock()
		if t.lanes.tails[t.key] == t.mine {
			delete(t.lanes.tails, t.key)
		}
		t.lanes.mu.Unlock()
	}
	close(t.mine)
}
