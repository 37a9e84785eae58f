package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/dayuer/chatgw/internal/lane"
	"github.com/dayuer/chatgw/internal/logger"
)

// Handler processes one payload. It owns error reporting; the bus never
// redelivers.
type Handler func(ctx context.Context, payload []byte)

// Source delivers payloads of one topic until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, handle Handler) error
}

// Publisher puts a payload on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// MessageBus is an in-process topic queue built on buffered Go channels. It
// carries events pushed to the gateway over HTTP.
type MessageBus struct {
	mu     sync.Mutex
	topics map[string]chan []byte
	size   int
}

// NewMessageBus creates a bus whose topics buffer size payloads each.
func NewMessageBus(size int) *MessageBus {
	if size <= 0 {
		size = 100
	}
	return &MessageBus{topics: make(map[string]chan []byte), size: size}
}

func (b *MessageBus) topic(name string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.topics[name]
	if !ok {
		ch = make(chan []byte, b.size)
		b.topics[name] = ch
	}
	return ch
}

// Publish enqueues payload, blocking while the topic is full.
func (b *MessageBus) Publish(ctx context.Context, topic string, payload []byte) error {
	select {
	case b.topic(topic) <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a Source draining one topic.
func (b *MessageBus) Subscribe(topic string) Source {
	return queueSource{ch: b.topic(topic)}
}

type queueSource struct {
	ch chan []byte
}

func (s queueSource) Run(ctx context.Context, handle Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case payload := <-s.ch:
			handle(ctx, payload)
		}
	}
}

// Consumer runs handlers for a Source on a bounded number of goroutines.
type Consumer struct {
	name    string
	src     Source
	handle  Handler
	workers int
	key     func(payload []byte) string
	lanes   *lane.Lanes
	log     *zap.Logger
}

// NewConsumer creates a Consumer. workers <= 0 means one at a time.
func NewConsumer(name string, src Source, handle Handler, workers int, log *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		name:    name,
		src:     src,
		handle:  handle,
		workers: workers,
		log:     logger.OrNop(log).Named("bus"),
	}
}

// OrderBy makes payloads with the same key run one at a time, in the order
// the source delivered them. Call before Run.
func (c *Consumer) OrderBy(key func(payload []byte) string) *Consumer {
	c.key = key
	c.lanes = lane.New()
	return c
}

// Run blocks until the source stops, then waits for in-flight handlers.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info("consumer started", zap.String("consumer", c.name), zap.Int("workers", c.workers))

	sem := make(chan struct{}, c.workers)
	var wg sync.WaitGroup
	err := c.src.Run(ctx, func(ctx context.Context, payload []byte) {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		var ticket lane.Ticket
		if c.lanes != nil {
			ticket = c.lanes.Reserve(c.key(payload))
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if c.lanes != nil {
				defer ticket.Done()
				if err := ticket.Wait(ctx); err != nil {
					return
				}
			}
			defer func() {
				if r := recover(); r != nil {
					c.log.Error("handler panic", zap.String("consumer", c.name), zap.Any("panic", r))
				}
			}()
			c.handle(ctx, payload)
		}()
	})
	wg.Wait()

	c.log.Info("consumer stopped", zap.String("consumer", c.name))
	return err
}
