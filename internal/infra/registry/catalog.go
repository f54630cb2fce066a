// Package registry holds the in-memory tool catalog. The catalog is owned
// by the server context and injected into the request path; it is never a
// package-level global, so tests can run independent instances.
package registry

import (
	"sync"

	"go.uber.org/zap"

	"toolgate/internal/domain"
)

// Catalog is a name-keyed collection of tool entries with stable listing
// order. All operations are total functions over the in-memory state; a
// single lock makes batch upserts atomic with respect to concurrent reads.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*domain.ToolEntry
	order   []string
	logger  *zap.Logger
}

// NewCatalog builds an empty catalog.
func NewCatalog(logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		entries: make(map[string]*domain.ToolEntry),
		logger:  logger.Named("catalog"),
	}
}

// Upsert inserts or replaces each entry by name, last write wins. Replacing
// an existing name is the refresh mechanism for default tools, not an error;
// a replaced entry keeps its original listing position. The whole batch is
// applied atomically. Callers emit the list-changed notification afterwards.
func (c *Catalog) Upsert(entries []*domain.ToolEntry) []*domain.ToolEntry {
	if len(entries) == 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	accepted := make([]*domain.ToolEntry, 0, len(entries))
	for _, entry := range entries {
		if entry == nil || entry.Name == "" {
			continue
		}
		if _, exists := c.entries[entry.Name]; !exists {
			c.order = append(c.order, entry.Name)
		}
		c.entries[entry.Name] = entry
		accepted = append(accepted, entry)
		c.logger.Debug("tool upserted",
			zap.String("tool", entry.Name),
			zap.String("kind", string(entry.Kind)))
	}
	return accepted
}

// Remove deletes an entry by name. Removing an absent name is a no-op.
func (c *Catalog) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[name]; !ok {
		return false
	}
	delete(c.entries, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.logger.Debug("tool removed", zap.String("tool", name))
	return true
}

// Get looks up an entry by exact name.
func (c *Catalog) Get(name string) (*domain.ToolEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[name]
	return entry, ok
}

// Resolve looks up an entry by name or, for remote actions, by the actor
// full-name alias. An exact name match always wins: a tool named like
// another tool's alias must not be shadowed.
func (c *Catalog) Resolve(identifier string) (*domain.ToolEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if entry, ok := c.entries[identifier]; ok {
		return entry, true
	}
	for _, name := range c.order {
		entry := c.entries[name]
		if entry.Kind == domain.ToolKindRemoteAction && entry.ActorFullName == identifier {
			return entry, true
		}
	}
	return nil, false
}

// List returns entries in insertion order. The order is stable for a fixed
// catalog state so clients can diff successive listings.
func (c *Catalog) List() []*domain.ToolEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*domain.ToolEntry, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.entries[name])
	}
	return out
}

// ListByCategory returns entries of one category, in listing order.
func (c *Catalog) ListByCategory(category string) []*domain.ToolEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*domain.ToolEntry
	for _, name := range c.order {
		if entry := c.entries[name]; entry.Category == category {
			out = append(out, entry)
		}
	}
	return out
}

// Names returns tool names in listing order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len reports the number of registered tools.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
