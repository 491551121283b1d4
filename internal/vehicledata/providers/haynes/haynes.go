// Package haynes adapts the HaynesPro/SWS vehicle imagery API. Images arrive
// either as URLs or inline, base64 encoded and optionally gzip compressed,
// and are mixed with technical diagrams that must never be shown as photos.
package haynes

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"garagedata/internal/vehicledata/models"
	"garagedata/internal/vehicledata/providers"
	"garagedata/internal/vehicledata/providers/adapters"
)

const (
	ProviderID = "haynes"

	maxDecodedBytes = 8 << 20
)

var gzipMagic = []byte{0x1f, 0x8b}

type imagesResponse struct {
	Images []imageItem `json:"images"`
}

type imageItem struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Encoding string `json:"encoding"`
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// nonPhotoTypes are item types the API uses for technical artwork.
var nonPhotoTypes = map[string]bool{
	"diagram":   true,
	"schematic": true,
	"wiring":    true,
	"drawing":   true,
	"exploded":  true,
}

// New constructs the Haynes provider backed by the default HTTP adapter.
func New(baseURL, apiKey string, timeout time.Duration) providers.Provider {
	return NewWithClient(baseURL, apiKey, timeout, nil)
}

// NewWithClient constructs the Haynes provider with an optional HTTP client override.
func NewWithClient(baseURL, apiKey string, timeout time.Duration, client adapters.HTTPDoer) providers.Provider {
	return adapters.New(adapters.HTTPAdapterConfig{
		ID:         ProviderID,
		Source:     models.SourceHaynes,
		Kinds:      []models.Kind{models.KindImage},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		HealthPath: "/health",
		Timeout:    timeout,
		HTTPClient: client,
		BuildURL: func(base string, req providers.Request) (string, error) {
			return fmt.Sprintf("%s/v1/vehicles/%s/images", base, url.PathEscape(req.Registration.String())), nil
		},
		Parser: parseResponse,
	})
}

func parseResponse(_ providers.Request, resp *adapters.Response) (models.Payload, error) {
	var body imagesResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return models.Payload{}, fmt.Errorf("failed to unmarshal haynes response: %w", err)
	}
	if len(body.Images) == 0 {
		return models.Payload{}, fmt.Errorf("no images: %w", providers.ErrNoData)
	}

	var firstErr error
	for _, item := range body.Images {
		imageURL, err := usableImage(item)
		if err == nil {
			return models.Payload{ImageURL: imageURL}, nil
		}
		if firstErr == nil || errors.Is(firstErr, providers.ErrArtifactRejected) {
			firstErr = err
		}
	}
	return models.Payload{}, firstErr
}

// usableImage returns a displayable URL for item or explains why it has none.
func usableImage(item imageItem) (string, error) {
	if nonPhotoTypes[strings.ToLower(item.Type)] {
		return "", fmt.Errorf("image type %q: %w", item.Type, providers.ErrArtifactRejected)
	}

	if item.Data == "" {
		if item.URL == "" {
			return "", fmt.Errorf("image without url or data: %w", providers.ErrNoData)
		}
		if providers.LooksNonPhotographic(item.URL) {
			return "", fmt.Errorf("image url looks like artwork: %w", providers.ErrArtifactRejected)
		}
		return item.URL, nil
	}

	raw, err := decodeInline(item)
	if err != nil {
		return "", err
	}
	mime, ok := providers.SniffPhoto(raw)
	if !ok {
		return "", fmt.Errorf("inline image is %s: %w", mime, providers.ErrArtifactRejected)
	}
	return providers.DataURL(mime, raw), nil
}

// decodeInline base64-decodes item.Data and gunzips it when the encoding says
// so or the bytes carry the gzip magic.
func decodeInline(item imageItem) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(item.Data)
	if err != nil {
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}

	compressed := strings.Contains(strings.ToLower(item.Encoding), "gzip") || bytes.HasPrefix(raw, gzipMagic)
	if !compressed {
		return raw, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open gzip image: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, maxDecodedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("decompress image: %w", err)
	}
	if len(out) > maxDecodedBytes {
		return nil, fmt.Errorf("decompressed image exceeds %d bytes", maxDecodedBytes)
	}
	return out, nil
}
