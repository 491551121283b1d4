// Package providertest provides a scriptable in-memory provider for tests of
// the chain walker and the resolver.
package providertest

import (
	"context"
	"slices"
	"sync"

	"garagedata/internal/vehicledata/models"
	"garagedata/internal/vehicledata/providers"
)

// HandlerFunc scripts a Fake's response to one request.
type HandlerFunc func(ctx context.Context, req providers.Request) (models.Payload, error)

// Fake is a Provider whose responses are scripted by a HandlerFunc.
type Fake struct {
	id     string
	source models.Source
	kinds  []models.Kind

	mu       sync.Mutex
	handler  HandlerFunc
	requests []providers.Request
	gate     chan struct{}
}

// New returns a fake that supports kinds and answers not-found until scripted.
func New(id string, source models.Source, kinds ...models.Kind) *Fake {
	f := &Fake{id: id, source: source, kinds: kinds}
	f.Fails(providers.ErrorNotFound)
	return f
}

// Returns makes every call succeed with payload.
func (f *Fake) Returns(payload models.Payload) *Fake {
	return f.Handle(func(context.Context, providers.Request) (models.Payload, error) {
		return payload, nil
	})
}

// Fails makes every call fail with category.
func (f *Fake) Fails(category providers.ErrorCategory) *Fake {
	return f.Handle(func(context.Context, providers.Request) (models.Payload, error) {
		return models.Payload{}, providers.NewProviderError(category, f.id, "scripted failure", nil)
	})
}

// Handle installs a custom handler.
func (f *Fake) Handle(h HandlerFunc) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	return f
}

// Gate makes calls block until ch is closed or the context ends.
func (f *Fake) Gate(ch chan struct{}) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = ch
	return f
}

func (f *Fake) ID() string                     { return f.id }
func (f *Fake) Source() models.Source          { return f.source }
func (f *Fake) Supports(kind models.Kind) bool { return slices.Contains(f.kinds, kind) }
func (f *Fake) Health(context.Context) error   { return nil }

func (f *Fake) Fetch(ctx context.Context, req providers.Request) (*providers.Artifact, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	handler, gate := f.handler, f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, providers.NewProviderError(providers.ErrorTimeout, f.id, "gated call cancelled", ctx.Err())
		}
	}

	payload, err := handler(ctx, req)
	if err != nil {
		return nil, err
	}
	return &providers.Artifact{ProviderID: f.id, Source: f.source, Payload: payload}, nil
}

// Calls returns how many times Fetch was called.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Requests returns a copy of every request seen.
func (f *Fake) Requests() []providers.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.requests)
}

// Reset forgets recorded requests.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = nil
}
