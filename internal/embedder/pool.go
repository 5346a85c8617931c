package embedder

import (
	"fmt"
	"sync"
)

// Pool is the module-scoped embedder cache of spec §4.10: first call for a
// key instantiates an engine, subsequent calls reuse it for the lifetime of
// the process. There is no time- or LRU-based eviction.
type Pool struct {
	mu      sync.Mutex
	engines map[string]Embedder
	factory func(Config) Embedder
}

// NewPool builds a Pool. factory decides how a Config becomes a live
// Embedder (NewClient for real deployments, NewDeterministic for tests).
func NewPool(factory func(Config) Embedder) *Pool {
	return &Pool{engines: make(map[string]Embedder), factory: factory}
}

// Get returns the cached engine for cfg, instantiating it on first use.
func (p *Pool) Get(cfg Config) Embedder {
	key := poolKey(cfg)

	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.engines[key]; ok {
		return e
	}
	e := p.factory(cfg)
	p.engines[key] = e
	return e
}

// poolKey implements the exact key format named in spec §4.10.
func poolKey(cfg Config) string {
	suffix := cfg.ConfigHash
	if suffix == "" {
		suffix = "default"
	}
	return fmt.Sprintf("embedding_model:%s:%s", cfg.Model, suffix)
}
