package channels

import (
	"sync"
)

// Registry holds the adapter for every enabled channel.
type Registry struct {
	adapters map[Channel]Adapter
	mu       sync.RWMutex
}

// NewRegistry creates a registry with the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Channel]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter, replacing any previous one for its channel.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Channel()] = a
}

// Get returns the adapter for a channel.
func (r *Registry) Get(ch Channel) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[ch]
	return a, ok
}

// Webhook returns the webhook adapter for a URL path segment such as "zalo".
func (r *Registry) Webhook(path string) (WebhookAdapter, bool) {
	ch, err := ParseChannel(path)
	if err != nil || ch.Path() != path {
		return nil, false
	}
	a, ok := r.Get(ch)
	if !ok {
		return nil, false
	}
	w, ok := a.(WebhookAdapter)
	return w, ok
}

// Channels returns the enabled channels in declaration order.
func (r *Registry) Channels() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Channel, 0, len(r.adapters))
	for _, ch := range All {
		if _, ok := r.adapters[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}
