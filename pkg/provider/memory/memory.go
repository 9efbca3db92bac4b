// Package memory implements an in-memory resource provider used by tests
// and local dry runs. It assigns uuid physical identifiers and derives
// attributes deterministically from the resolved properties.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/stackwave/stackctl/pkg/provider"
	"github.com/stackwave/stackctl/pkg/state/types"
)

// Provider keeps realized resources in process memory, keyed by physical
// identifier.
type Provider struct {
	mu        sync.Mutex
	resources map[string]record
}

type record struct {
	kind       string
	properties map[string]interface{}
}

// NewProvider creates an empty in-memory provider.
func NewProvider() *Provider {
	return &Provider{resources: make(map[string]record)}
}

// CreateOrUpdate realizes the resource. Updates keep the existing
// physical identifier; creations mint a new one.
func (p *Provider) CreateOrUpdate(ctx context.Context, kind string, properties map[string]interface{}, previous *types.RealizedResource) (*provider.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	physicalID := ""
	if previous != nil {
		physicalID = previous.PhysicalID
	}
	if physicalID == "" {
		physicalID = kind + "-" + uuid.New().String()
	}

	p.resources[physicalID] = record{kind: kind, properties: properties}

	attrs := map[string]interface{}{
		// A stable ARN-like attribute derived from kind and identifier.
		"Arn": fmt.Sprintf("arn:mem:%s/%s", kind, physicalID),
	}
	for name, value := range properties {
		attrs[name] = value
	}

	return &provider.Result{PhysicalID: physicalID, Attributes: attrs}, nil
}

// Delete removes the resource. Deleting an unknown identifier is an
// error so tests can catch double deletes.
func (p *Provider) Delete(ctx context.Context, kind string, physicalID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.resources[physicalID]; !ok {
		return fmt.Errorf("resource %q not found", physicalID)
	}
	delete(p.resources, physicalID)
	return nil
}

// Len returns the number of live resources.
func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.resources)
}

// Has reports whether a physical identifier is live.
func (p *Provider) Has(physicalID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.resources[physicalID]
	return ok
}
