// Package scrape is the last-resort image source: it fetches a public vehicle
// listing page and extracts the most photo-like image from its HTML.
package scrape

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"garagedata/internal/vehicledata/models"
	"garagedata/internal/vehicledata/providers"
	"garagedata/internal/vehicledata/providers/adapters"
)

const (
	ProviderID = "scrape"

	// Placeholder is substituted with the registration in the URL template.
	Placeholder = "{registration}"
)

// metaImageProperties are <meta> properties that name a page's hero image.
var metaImageProperties = map[string]bool{
	"og:image":            true,
	"og:image:url":        true,
	"og:image:secure_url": true,
	"twitter:image":       true,
}

// New constructs the scraping provider for a URL template such as
// "https://cars.example/reg/{registration}".
func New(urlTemplate string, timeout time.Duration) providers.Provider {
	return NewWithClient(urlTemplate, timeout, nil)
}

// NewWithClient constructs the scraping provider with an optional HTTP client override.
func NewWithClient(urlTemplate string, timeout time.Duration, client adapters.HTTPDoer) providers.Provider {
	return adapters.New(adapters.HTTPAdapterConfig{
		ID:         ProviderID,
		Source:     models.SourceScrape,
		Kinds:      []models.Kind{models.KindImage},
		BaseURL:    urlTemplate,
		Accept:     "text/html,application/xhtml+xml",
		Timeout:    timeout,
		HTTPClient: client,
		BuildURL:   buildURL,
		Parser:     parseResponse,
	})
}

func buildURL(template string, req providers.Request) (string, error) {
	if !strings.Contains(template, Placeholder) {
		return "", fmt.Errorf("url template %q lacks %s", template, Placeholder)
	}
	return strings.ReplaceAll(template, Placeholder, url.PathEscape(req.Registration.String())), nil
}

func parseResponse(_ providers.Request, resp *adapters.Response) (models.Payload, error) {
	doc, err := html.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return models.Payload{}, fmt.Errorf("failed to parse html: %w", err)
	}

	candidates := extractCandidates(doc)
	if len(candidates) == 0 {
		return models.Payload{}, fmt.Errorf("no images on page: %w", providers.ErrNoData)
	}

	best, ok := pickBest(candidates, resp.URL)
	if !ok {
		return models.Payload{}, fmt.Errorf("only non-photographic images on page: %w", providers.ErrArtifactRejected)
	}
	return models.Payload{ImageURL: best}, nil
}

// extractCandidates returns image URLs in preference order: meta hero images
// first, then <img> sources in document order.
func extractCandidates(doc *html.Node) []string {
	var meta, imgs []string

	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				prop := attr(n, "property")
				if prop == "" {
					prop = attr(n, "name")
				}
				if metaImageProperties[strings.ToLower(prop)] {
					if c := attr(n, "content"); c != "" {
						meta = append(meta, c)
					}
				}
			case "img":
				for _, key := range []string{"data-src", "src"} {
					if v := attr(n, key); v != "" {
						imgs = append(imgs, v)
						break
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	return append(meta, imgs...)
}

// pickBest resolves candidates against the page URL, drops artwork and
// inline images, and prefers photo file extensions.
func pickBest(candidates []string, page *url.URL) (string, bool) {
	var fallback string
	for _, raw := range candidates {
		resolved, ok := resolve(raw, page)
		if !ok || providers.LooksNonPhotographic(resolved) {
			continue
		}
		if providers.LooksPhotographic(resolved) {
			return resolved, true
		}
		if fallback == "" {
			fallback = resolved
		}
	}
	return fallback, fallback != ""
}

func resolve(raw string, page *url.URL) (string, bool) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	if page != nil {
		ref = page.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return "", false
	}
	return ref.String(), true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
