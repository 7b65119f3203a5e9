package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/set-night/llmgate/internal/domain"
)

// Route is an assistant together with the provider it talks to.
type Route struct {
	Assistant domain.Assistant
	Provider  domain.Provider
}

type cachedRoute struct {
	route    Route
	cachedAt time.Time
}

// Catalog resolves platform agent ids to routes, caching lookups for ttl.
type Catalog struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	mu     sync.RWMutex
	routes map[int64]cachedRoute
}

func NewCatalog(store Store, ttl time.Duration) *Catalog {
	return &Catalog{
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		routes: make(map[int64]cachedRoute),
	}
}

func (c *Catalog) get(agentID int64) (Route, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached, ok := c.routes[agentID]
	if !ok || c.now().Sub(cached.cachedAt) > c.ttl {
		return Route{}, false
	}
	return cached.route, true
}

func (c *Catalog) set(agentID int64, r Route) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routes[agentID] = cachedRoute{route: r, cachedAt: c.now()}
}

func (c *Catalog) Lookup(ctx context.Context, agentID int64) (Route, error) {
	if r, ok := c.get(agentID); ok {
		return r, nil
	}

	assistant, err := c.store.GetAssistantByAgentID(ctx, agentID)
	if err != nil {
		return Route{}, fmt.Errorf("assistant for agent %d: %w", agentID, err)
	}
	provider, err := c.store.GetProvider(ctx, assistant.ProviderID)
	if err != nil {
		return Route{}, fmt.Errorf("provider %d: %w", assistant.ProviderID, err)
	}

	r := Route{Assistant: assistant, Provider: provider}
	c.set(agentID, r)
	return r, nil
}
