package providers

import (
	"context"
	"fmt"
	"time"

	"garagedata/internal/vehicledata/models"
	"garagedata/pkg/domain"
)

// Request is a single provider lookup.
type Request struct {
	Registration domain.Registration
	Kind         models.Kind
	// Hint carries technical data gathered earlier in the chain, if any.
	// Providers that describe a vehicle rather than look it up need it.
	Hint *models.TechnicalData
}

// Artifact is what a provider returns for a registration.
//
// Payload may hold more than the requested kind: the primary provider returns
// technical data alongside its image when it has one. The resolver decides
// whether the artifact is usable for the request.
type Artifact struct {
	ProviderID string
	Source     models.Source
	Payload    models.Payload
	FetchedAt  time.Time
	Metadata   map[string]string
}

// Provider is the interface every external vehicle-data source implements.
type Provider interface {
	// ID returns a stable identifier used in logs and metrics (e.g. "vdg").
	ID() string

	// Source is the provenance recorded on cache entries built from this provider.
	Source() models.Source

	// Supports reports whether the provider can yield the given kind.
	Supports(kind models.Kind) bool

	// Fetch looks the registration up. Failures are *ProviderError values
	// with a normalized category.
	Fetch(ctx context.Context, req Request) (*Artifact, error)

	// Health reports whether the provider is reachable.
	Health(ctx context.Context) error
}

// ProviderRegistry holds providers in fixed fallback order.
// Register everything during startup; the registry is not safe for
// concurrent mutation.
type ProviderRegistry struct {
	ordered []Provider
	byID    map[string]Provider
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{byID: make(map[string]Provider)}
}

// Register appends p to the chain. Registration order is fallback order.
func (r *ProviderRegistry) Register(p Provider) error {
	id := p.ID()
	if _, exists := r.byID[id]; exists {
		return fmt.Errorf("provider %s already registered", id)
	}
	r.byID[id] = p
	r.ordered = append(r.ordered, p)
	return nil
}

func (r *ProviderRegistry) Get(id string) (Provider, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// Chain returns, in fallback order, the providers that support kind.
func (r *ProviderRegistry) Chain(kind models.Kind) []Provider {
	var result []Provider
	for _, p := range r.ordered {
		if p.Supports(kind) {
			result = append(result, p)
		}
	}
	return result
}

func (r *ProviderRegistry) All() []Provider {
	result := make([]Provider, len(r.ordered))
	copy(result, r.ordered)
	return result
}

// IDs lists provider identifiers in fallback order.
func (r *ProviderRegistry) IDs() []string {
	ids := make([]string, 0, len(r.ordered))
	for _, p := range r.ordered {
		ids = append(ids, p.ID())
	}
	return ids
}
