// Package vdg adapts the Vehicle Data Global lookup API, the primary source
// of technical data and the first source tried for images.
package vdg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"garagedata/internal/vehicledata/models"
	"garagedata/internal/vehicledata/providers"
	"garagedata/internal/vehicledata/providers/adapters"
)

const (
	ProviderID  = "vdg"
	packageName = "VehicleDetailsWithImage"
)

// Field paths, tried in order. The API has shipped several response layouts
// over the years and packages differ in which blocks they populate.
var (
	makePaths = []string{
		"Results.VehicleDetails.VehicleIdentification.DvlaMake",
		"Results.VehicleDetails.VehicleIdentification.Make",
		"Results.ModelDetails.ModelIdentification.Make",
		"Response.DataItems.VehicleRegistration.Make",
	}
	modelPaths = []string{
		"Results.VehicleDetails.VehicleIdentification.DvlaModel",
		"Results.ModelDetails.ModelIdentification.Model",
		"Results.VehicleDetails.VehicleIdentification.Model",
		"Response.DataItems.VehicleRegistration.Model",
	}
	colourPaths = []string{
		"Results.VehicleDetails.VehicleHistory.ColourDetails.CurrentColour",
		"Results.VehicleDetails.VehicleIdentification.Colour",
		"Response.DataItems.VehicleRegistration.Colour",
	}
	fuelPaths = []string{
		"Results.VehicleDetails.VehicleIdentification.DvlaFuelType",
		"Results.ModelDetails.Powertrain.FuelType",
		"Response.DataItems.VehicleRegistration.FuelType",
	}
	enginePaths = []string{
		"Results.VehicleDetails.DvlaTechnicalDetails.EngineCapacityCc",
		"Results.ModelDetails.Powertrain.IceDetails.EngineCapacityCc",
		"Response.DataItems.VehicleRegistration.EngineCapacity",
	}
	yearPaths = []string{
		"Results.VehicleDetails.VehicleIdentification.YearOfManufacture",
		"Response.DataItems.VehicleRegistration.YearOfManufacture",
	}
	motPaths = []string{
		"Results.MotHistoryDetails.MotDueDate",
		"Results.VehicleDetails.VehicleStatus.MotVed.MotDueDate",
		"Response.DataItems.MotVed.MotDue",
	}
	imagePaths = []string{
		"Results.VehicleImageDetails.VehicleImageList.0.ImageUrl",
		"Response.DataItems.VehicleImages.ImageDetailsList.0.ImageUrl",
	}
)

// New constructs the VDG provider backed by the default HTTP adapter.
func New(baseURL, apiKey string, timeout time.Duration) providers.Provider {
	return NewWithClient(baseURL, apiKey, timeout, nil)
}

// NewWithClient constructs the VDG provider with an optional HTTP client override.
func NewWithClient(baseURL, apiKey string, timeout time.Duration, client adapters.HTTPDoer) providers.Provider {
	return adapters.New(adapters.HTTPAdapterConfig{
		ID:         ProviderID,
		Source:     models.SourceVDG,
		Kinds:      []models.Kind{models.KindData, models.KindImage},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Timeout:    timeout,
		HTTPClient: client,
		BuildURL: func(base string, req providers.Request) (string, error) {
			q := url.Values{}
			q.Set("packagename", packageName)
			q.Set("apikey", apiKey)
			q.Set("key_VRM", req.Registration.String())
			return fmt.Sprintf("%s/r2/lookup?%s", base, q.Encode()), nil
		},
		Parser: parseResponse,
	})
}

func parseResponse(_ providers.Request, resp *adapters.Response) (models.Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(resp.Body))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return models.Payload{}, fmt.Errorf("failed to unmarshal vdg response: %w", err)
	}

	if err := checkStatus(doc); err != nil {
		return models.Payload{}, err
	}

	_, hasResults := doc["Results"]
	_, hasLegacy := doc["Response"]
	if !hasResults && !hasLegacy {
		return models.Payload{}, fmt.Errorf("no Results block: %w", providers.ErrUnexpectedShape)
	}

	tech := models.TechnicalData{
		Make:              firstString(doc, makePaths...),
		Model:             firstString(doc, modelPaths...),
		Colour:            firstString(doc, colourPaths...),
		FuelType:          firstString(doc, fuelPaths...),
		EngineCapacityCC:  firstInt(doc, enginePaths...),
		YearOfManufacture: firstInt(doc, yearPaths...),
		MOTExpiry:         firstString(doc, motPaths...),
	}

	payload := models.Payload{ImageURL: firstString(doc, imagePaths...)}
	if !tech.IsZero() {
		payload.Technical = &tech
	}
	if !payload.HasImage() && !payload.HasTechnical() {
		return models.Payload{}, fmt.Errorf("empty vehicle record: %w", providers.ErrNoData)
	}
	return payload, nil
}

// checkStatus reads the in-band status. VDG reports lookups that matched
// nothing with HTTP 200 and a non-success status code.
func checkStatus(doc map[string]any) error {
	ok := firstString(doc, "ResponseInformation.IsSuccessStatusCode")
	if ok == "" || ok == "true" {
		return nil
	}
	msg := firstString(doc, "ResponseInformation.StatusMessage")
	if msg == "" {
		msg = "unsuccessful lookup"
	}
	return fmt.Errorf("%s: %w", msg, providers.ErrNoData)
}
