// Package provider defines the resource provider contract the stack
// executor drives. A provider realizes resources of the kinds it is
// registered for; the core never branches on kind beyond dispatch.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stackwave/stackctl/pkg/state/types"
)

// Result is what a provider returns from a successful create-or-update.
type Result struct {
	// PhysicalID is the provider-assigned identifier, opaque to the core.
	PhysicalID string

	// Attributes are the resolvable attribute values of the realized
	// resource (e.g., "Arn").
	Attributes map[string]interface{}
}

// Provider realizes resources of one or more kinds.
type Provider interface {
	// CreateOrUpdate creates the resource or updates it in place.
	// previous is nil on first creation; on update it carries the
	// realized record from the prior operation.
	CreateOrUpdate(ctx context.Context, kind string, properties map[string]interface{}, previous *types.RealizedResource) (*Result, error)

	// Delete removes the resource identified by physicalID.
	Delete(ctx context.Context, kind string, physicalID string) error
}

// Registry dispatches resource kinds to registered providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	fallback  Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register binds a provider to a resource kind. Registering the same kind
// twice replaces the earlier binding.
func (r *Registry) Register(kind string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[kind] = p
}

// SetFallback binds a provider used for any kind with no explicit
// registration.
func (r *Registry) SetFallback(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = p
}

// Get returns the provider for a kind, falling back to the fallback
// provider when no explicit registration exists.
func (r *Registry) Get(kind string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[kind]
	if !ok {
		if r.fallback != nil {
			return r.fallback, nil
		}
		return nil, fmt.Errorf("no provider registered for kind %q (registered kinds: %v)", kind, r.kindsLocked())
	}
	return p, nil
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.kindsLocked()
}

func (r *Registry) kindsLocked() []string {
	kinds := make([]string, 0, len(r.providers))
	for kind := range r.providers {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
