// Package models holds the vehicle-data types shared by the cache, blacklist,
// providers and resolver.
package models

import (
	"fmt"
	"time"

	"garagedata/pkg/domain"
)

// Kind selects what a resolution must produce.
type Kind string

const (
	KindImage Kind = "image"
	KindData  Kind = "data"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return k == KindImage || k == KindData
}

// Key identifies one cache or blacklist entry. Image and technical-data
// resolutions of the same registration are memoized independently.
type Key struct {
	Kind         Kind
	Registration domain.Registration
}

// NewKey builds a Key from an already-normalized registration.
func NewKey(kind Kind, reg domain.Registration) Key {
	return Key{Kind: kind, Registration: reg}
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s", k.Kind, k.Registration)
}

// Source identifies the provider that produced a payload.
type Source string

const (
	SourceVDG       Source = "vdg"
	SourceHaynes    Source = "haynes"
	SourceScrape    Source = "scrape"
	SourceSynthetic Source = "synthetic"
)

// IsValid reports whether s is a known source.
func (s Source) IsValid() bool {
	switch s {
	case SourceVDG, SourceHaynes, SourceScrape, SourceSynthetic:
		return true
	}
	return false
}

// IsSynthetic reports whether s produces generated rather than real data.
func (s Source) IsSynthetic() bool {
	return s == SourceSynthetic
}

// TechnicalData is the normalized set of technical fields for a vehicle.
type TechnicalData struct {
	Make              string `json:"make,omitempty"`
	Model             string `json:"model,omitempty"`
	Colour            string `json:"colour,omitempty"`
	FuelType          string `json:"fuel_type,omitempty"`
	EngineCapacityCC  int    `json:"engine_capacity_cc,omitempty"`
	YearOfManufacture int    `json:"year_of_manufacture,omitempty"`
	MOTExpiry         string `json:"mot_expiry,omitempty"`
}

// IsZero reports whether no field was populated.
func (t TechnicalData) IsZero() bool {
	return t == TechnicalData{}
}

// Describe renders a short human description, e.g. "2019 blue Ford Fiesta".
func (t TechnicalData) Describe() string {
	desc := ""
	if t.YearOfManufacture > 0 {
		desc = fmt.Sprintf("%d ", t.YearOfManufacture)
	}
	if t.Colour != "" {
		desc += t.Colour + " "
	}
	desc += t.Make
	if t.Model != "" {
		desc += " " + t.Model
	}
	return desc
}

// Payload is what a provider returns and what the cache stores.
type Payload struct {
	ImageURL  string         `json:"image_url,omitempty"`
	Technical *TechnicalData `json:"technical,omitempty"`
}

// HasImage reports whether the payload carries an image.
func (p Payload) HasImage() bool {
	return p.ImageURL != ""
}

// HasTechnical reports whether the payload carries at least one technical field.
func (p Payload) HasTechnical() bool {
	return p.Technical != nil && !p.Technical.IsZero()
}

// UsableFor reports whether p satisfies a resolution of the given kind.
func (p Payload) UsableFor(kind Kind) bool {
	switch kind {
	case KindImage:
		return p.HasImage()
	case KindData:
		return p.HasTechnical()
	}
	return false
}

// CacheEntry is a memoized successful resolution.
type CacheEntry struct {
	Key       Key
	Payload   Payload
	Source    Source
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the entry may no longer be served.
func (e CacheEntry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// FailureRecord marks a key for which every provider was exhausted.
type FailureRecord struct {
	Key       Key
	Reason    string
	CreatedAt time.Time
	// ExpiresAt is nil for records that never expire.
	ExpiresAt *time.Time
}

// IsExpired reports whether the record has lapsed.
func (r FailureRecord) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// Outcome is the terminal state of a resolution.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeRateLimited Outcome = "rate_limited"
)

// Resolution is the result of one pass through the resolver state machine.
type Resolution struct {
	Outcome           Outcome
	Payload           Payload
	Source            Source
	Cached            bool
	Reason            string
	RetryAfterSeconds int
}

// ImageResult is the caller-facing result of an image resolution.
type ImageResult struct {
	Success           bool   `json:"success"`
	ImageURL          string `json:"imageUrl,omitempty"`
	Source            Source `json:"source,omitempty"`
	Cached            bool   `json:"cached"`
	Reason            string `json:"reason,omitempty"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

// DataResult is the caller-facing result of a technical-data resolution.
type DataResult struct {
	Success           bool           `json:"success"`
	Technical         *TechnicalData `json:"technical,omitempty"`
	ImageURL          string         `json:"imageUrl,omitempty"`
	Source            Source         `json:"source,omitempty"`
	Cached            bool           `json:"cached"`
	Reason            string         `json:"reason,omitempty"`
	RetryAfterSeconds int            `json:"retryAfterSeconds,omitempty"`
}

// ToImageResult converts a resolution into the caller-facing image shape.
func (r Resolution) ToImageResult() ImageResult {
	return ImageResult{
		Success:           r.Outcome == OutcomeSuccess,
		ImageURL:          r.Payload.ImageURL,
		Source:            r.Source,
		Cached:            r.Cached,
		Reason:            r.Reason,
		RetryAfterSeconds: r.RetryAfterSeconds,
	}
}

// ToDataResult converts a resolution into the caller-facing data shape.
func (r Resolution) ToDataResult() DataResult {
	return DataResult{
		Success:           r.Outcome == OutcomeSuccess,
		Technical:         r.Payload.Technical,
		ImageURL:          r.Payload.ImageURL,
		Source:            r.Source,
		Cached:            r.Cached,
		Reason:            r.Reason,
		RetryAfterSeconds: r.RetryAfterSeconds,
	}
}

// Status is an operator snapshot of the resolver's shared state.
type Status struct {
	InCooldown           bool       `json:"inCooldown"`
	CooldownUntil        *time.Time `json:"cooldownUntil,omitempty"`
	CooldownRemainingSec int        `json:"cooldownRemainingSeconds,omitempty"`
	ConsecutiveErrors    int        `json:"consecutiveErrors"`
	LastCallAt           *time.Time `json:"lastCallAt,omitempty"`
	BlacklistSize        int        `json:"blacklistSize"`
	CachedEntries        int        `json:"cachedEntries"`
	Providers            []Source   `json:"providers"`
}
