package store

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/kemiz/fsgrid/internal/entity"
	"github.com/kemiz/fsgrid/internal/query"
)

// Catalog names the Stores owned by one process. Join requests name
// their reference store; the Catalog resolves it.
type Catalog struct {
	mu     sync.RWMutex
	stores map[string]*Store
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{stores: make(map[string]*Store)}
}

// Register adds a store under name. Names are unique.
func (c *Catalog) Register(name string, s *Store) error {
	if name == "" {
		return fmt.Errorf("register: store name is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.stores[name]; exists {
		return fmt.Errorf("register: store %q already registered", name)
	}
	c.stores[name] = s
	return nil
}

// Get returns the store registered under name.
func (c *Catalog) Get(name string) (*Store, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.stores[name]
	return s, ok
}

// Names returns the registered store names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.stores))
	for name := range c.stores {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Schema returns the schema of the named store.
func (c *Catalog) Schema(name string) (entity.Schema, bool) {
	s, ok := c.Get(name)
	if !ok {
		return entity.Schema{}, false
	}
	return s.Schema(), true
}

// Schemas returns the schema of every registered store, keyed by name.
func (c *Catalog) Schemas() map[string]entity.Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]entity.Schema, len(c.stores))
	for name, s := range c.stores {
		out[name] = s.Schema()
	}
	return out
}

// Query executes req against the store it names, resolving the join
// store for join kinds. Unknown store names yield UNKNOWN_STORE.
func (c *Catalog) Query(ctx context.Context, req query.Request) (iter.Seq[query.Row], error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	s, ok := c.Get(req.Store)
	if !ok {
		return nil, query.UnknownStore(req.Store)
	}
	if !req.Kind.IsJoin() {
		return s.Query(ctx, req)
	}
	ref, ok := c.Get(req.Join.Store)
	if !ok {
		return nil, query.UnknownStore(req.Join.Store)
	}
	return s.QueryJoin(ctx, req, ref)
}

// Load streams entities into the named store.
func (c *Catalog) Load(ctx context.Context, name string, seq iter.Seq[entity.Entity]) (LoadStats, error) {
	s, ok := c.Get(name)
	if !ok {
		return LoadStats{}, query.UnknownStore(name)
	}
	return s.Load(ctx, seq)
}

// Size returns the total entity count across all stores.
func (c *Catalog) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, s := range c.stores {
		n += s.Size()
	}
	return n
}
