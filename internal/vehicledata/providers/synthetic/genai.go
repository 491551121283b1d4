package synthetic

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"garagedata/internal/vehicledata/providers"
)

const DefaultModel = "imagen-3.0-generate-002"

// GenAIGenerator generates images with Google's Imagen models.
type GenAIGenerator struct {
	client *genai.Client
	model  string
}

// NewGenAIGenerator creates a generator against the Gemini API.
func NewGenAIGenerator(ctx context.Context, apiKey, model string) (*GenAIGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("GenAI API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIGenerator{client: client, model: model}, nil
}

// GenerateImage returns a single JPEG for prompt.
func (g *GenAIGenerator) GenerateImage(ctx context.Context, prompt string) ([]byte, string, error) {
	resp, err := g.client.Models.GenerateImages(ctx, g.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages:   1,
		AspectRatio:      "4:3",
		OutputMIMEType:   "image/jpeg",
		IncludeRAIReason: true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("GenAI generate images failed: %w", err)
	}
	if len(resp.GeneratedImages) == 0 {
		return nil, "", fmt.Errorf("no images returned: %w", providers.ErrNoData)
	}

	img := resp.GeneratedImages[0]
	if img.RAIFilteredReason != "" {
		return nil, "", fmt.Errorf("image filtered (%s): %w", img.RAIFilteredReason, providers.ErrArtifactRejected)
	}
	if img.Image == nil || len(img.Image.ImageBytes) == 0 {
		return nil, "", fmt.Errorf("empty image returned: %w", providers.ErrNoData)
	}
	return img.Image.ImageBytes, img.Image.MIMEType, nil
}
