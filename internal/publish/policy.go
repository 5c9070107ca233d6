package publish

import "sync"

// Policy is the process-wide failure policy: whether a draft survives a
// failed publish attempt. Runtime-mutable; the engine reads it on every
// draft failure path, uniformly across all variants.
type Policy struct {
	mu         sync.Mutex
	autoDelete bool
}

// NewPolicy returns the default policy (auto-delete enabled).
func NewPolicy() *Policy {
	return &Policy{autoDelete: true}
}

func (p *Policy) AutoDelete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoDelete
}

func (p *Policy) SetAutoDelete(v bool) {
	p.mu.Lock()
	p.autoDelete = v
	p.mu.Unlock()
}
