// Package synthetic generates an illustrative vehicle image when no real
// photo could be found. It only runs when a generator is configured, and
// only for vehicles whose technical data is already known.
package synthetic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"garagedata/internal/vehicledata/models"
	"garagedata/internal/vehicledata/providers"
)

const (
	ProviderID     = "synthetic"
	defaultTimeout = 30 * time.Second
)

// ImageGenerator produces image bytes for a text prompt.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (data []byte, mimeType string, err error)
}

// Provider adapts an ImageGenerator to the provider chain.
type Provider struct {
	generator ImageGenerator
	timeout   time.Duration
	now       func() time.Time
}

type Option func(*Provider)

func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

func New(generator ImageGenerator, opts ...Option) *Provider {
	p := &Provider{
		generator: generator,
		timeout:   defaultTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) ID() string { return ProviderID }

func (p *Provider) Source() models.Source { return models.SourceSynthetic }

func (p *Provider) Supports(kind models.Kind) bool { return kind == models.KindImage }

func (p *Provider) Health(context.Context) error { return nil }

// Fetch generates an image described from req.Hint. Without a hint there is
// nothing to describe and the registration is reported as not found.
func (p *Provider) Fetch(ctx context.Context, req providers.Request) (*providers.Artifact, error) {
	if req.Hint == nil || req.Hint.Make == "" {
		return nil, providers.NewProviderError(providers.ErrorNotFound, ProviderID,
			"no technical data to describe the vehicle", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	data, mime, err := p.generator.GenerateImage(ctx, Prompt(*req.Hint))
	if err != nil {
		return nil, providers.NewProviderError(classify(ctx, err), ProviderID, "image generation failed", err)
	}

	sniffed, ok := providers.SniffPhoto(data)
	if !ok {
		return nil, providers.NewProviderError(providers.ErrorArtifactRejected, ProviderID,
			fmt.Sprintf("generated %s (declared %s)", sniffed, mime), nil)
	}

	return &providers.Artifact{
		ProviderID: ProviderID,
		Source:     models.SourceSynthetic,
		Payload:    models.Payload{ImageURL: providers.DataURL(sniffed, data)},
		FetchedAt:  p.now(),
		Metadata:   map[string]string{"mime_type": sniffed},
	}, nil
}

// Prompt describes the vehicle for the image model.
func Prompt(t models.TechnicalData) string {
	t.Colour = strings.ToLower(t.Colour)
	return fmt.Sprintf(
		"A realistic photograph of a %s, three-quarter front view, parked on a plain street, daylight, no people, no text, no number plate.",
		strings.TrimSpace(t.Describe()),
	)
}

func classify(ctx context.Context, err error) providers.ErrorCategory {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return providers.ErrorTimeout
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return providers.ErrorRateLimited
		case apiErr.Code == http.StatusUnauthorized, apiErr.Code == http.StatusForbidden:
			return providers.ErrorAuthentication
		case apiErr.Code >= 500:
			return providers.ErrorProviderOutage
		}
		return providers.ErrorBadData
	}

	return providers.CategoryForParseError(err)
}
