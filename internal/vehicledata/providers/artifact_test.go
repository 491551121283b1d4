package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"garagedata/pkg/testutil"
)

func TestLooksNonPhotographic(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example/cars/ab12cde.jpg", false},
		{"https://cdn.example/diagrams/brakes.png", true},
		{"https://cdn.example/img/Wiring-Loom.jpg", true},
		{"https://cdn.example/static/logo.webp", true},
		{"https://cdn.example/placeholder.jpg?w=200", true},
		{"https://cdn.example/car.svg?v=1", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, LooksNonPhotographic(tt.url))
		})
	}
}

func TestLooksPhotographic(t *testing.T) {
	assert.True(t, LooksPhotographic("https://cdn.example/a.JPG"))
	assert.True(t, LooksPhotographic("https://cdn.example/a.jpeg?size=large"))
	assert.True(t, LooksPhotographic("https://cdn.example/a.webp#frag"))
	assert.False(t, LooksPhotographic("https://cdn.example/a.png"))
	assert.False(t, LooksPhotographic("https://cdn.example/a"))
}

func TestSniffPhoto(t *testing.T) {
	mime, ok := SniffPhoto(testutil.JPEGBytes)
	assert.True(t, ok)
	assert.Equal(t, "image/jpeg", mime)

	mime, ok = SniffPhoto(testutil.PNGBytes)
	assert.True(t, ok)
	assert.Equal(t, "image/png", mime)

	_, ok = SniffPhoto([]byte(`<svg xmlns="http://www.w3.org/2000/svg"></svg>`))
	assert.False(t, ok)
}

func TestDataURL(t *testing.T) {
	assert.Equal(t, "data:image/png;base64,AQID", DataURL("image/png", []byte{1, 2, 3}))
}

func TestErrorClassification(t *testing.T) {
	transient := []ErrorCategory{ErrorTimeout, ErrorProviderOutage, ErrorRateLimited}
	permanent := []ErrorCategory{ErrorNotFound, ErrorBadData, ErrorAuthentication, ErrorContractMismatch, ErrorArtifactRejected, ErrorInternal}

	for _, c := range transient {
		assert.True(t, IsRetryable(NewProviderError(c, "p", "x", nil)), c)
	}
	for _, c := range permanent {
		assert.False(t, IsRetryable(NewProviderError(c, "p", "x", nil)), c)
	}
	assert.Equal(t, ErrorInternal, GetCategory(assert.AnError))
}

func TestOnlyDefinitiveMissesAreConclusive(t *testing.T) {
	tests := []struct {
		category    ErrorCategory
		conclusive  bool
		healthFault bool
	}{
		{ErrorNotFound, true, false},
		{ErrorArtifactRejected, true, false},
		{ErrorTimeout, false, true},
		{ErrorProviderOutage, false, true},
		{ErrorRateLimited, false, true},
		{ErrorAuthentication, false, true},
		{ErrorBadData, false, false},
		{ErrorContractMismatch, false, false},
		{ErrorInternal, false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.conclusive, tt.category.IsConclusive(), tt.category)
		assert.Equal(t, tt.healthFault, tt.category.IsHealthFault(), tt.category)
	}
}
