package helios

import (
	"sync"

	"github.com/canepat/helios/internal/ring"
)

// RingBufferPool is the single source of truth for output rings keyed by
// response/event stream name, resolving spec.md §9's cyclic handler/pool
// dependency: the pool is constructed first and handed to the user handler
// factory, then populated as AddEndPoint/AddEventChannel register streams,
// so the handler always observes the pool's current contents rather than
// holding a stale snapshot.
//
// Grounded on agilira/iris's factory.go construction order (build
// dependencies, then wire them into the logger before starting its
// consumer goroutine).
type RingBufferPool struct {
	mu    sync.RWMutex
	rings map[string]*ring.RingBuffer
}

// NewRingBufferPool creates an empty pool.
func NewRingBufferPool() *RingBufferPool {
	return &RingBufferPool{rings: make(map[string]*ring.RingBuffer)}
}

func (p *RingBufferPool) register(key string, r *ring.RingBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rings[key] = r
}

// Get returns the ring registered under key, if any.
func (p *RingBufferPool) Get(key string) (*ring.RingBuffer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.rings[key]
	return r, ok
}

// Keys returns the stream keys currently registered in the pool.
func (p *RingBufferPool) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]string, 0, len(p.rings))
	for k := range p.rings {
		keys = append(keys, k)
	}
	return keys
}
