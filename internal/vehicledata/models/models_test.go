package models

import (
	"testing"
	"time"

	"garagedata/pkg/domain"

	"github.com/stretchr/testify/assert"
)

func TestPayloadUsableFor(t *testing.T) {
	tech := &TechnicalData{Make: "FORD"}

	assert.True(t, Payload{ImageURL: "https://img/1.jpg"}.UsableFor(KindImage))
	assert.False(t, Payload{Technical: tech}.UsableFor(KindImage))
	assert.True(t, Payload{Technical: tech}.UsableFor(KindData))
	assert.False(t, Payload{Technical: &TechnicalData{}}.UsableFor(KindData))
	assert.False(t, Payload{ImageURL: "x"}.UsableFor(Kind("other")))
}

func TestCacheEntryExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entry := CacheEntry{ExpiresAt: now}

	assert.False(t, entry.IsExpired(now), "valid up to and including expiresAt")
	assert.True(t, entry.IsExpired(now.Add(time.Nanosecond)))
}

func TestFailureRecordExpiry(t *testing.T) {
	now := time.Now()
	assert.False(t, FailureRecord{}.IsExpired(now.Add(100*365*24*time.Hour)))

	expires := now.Add(time.Hour)
	rec := FailureRecord{ExpiresAt: &expires}
	assert.False(t, rec.IsExpired(now))
	assert.True(t, rec.IsExpired(now.Add(2*time.Hour)))
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "image:AB12CDE", NewKey(KindImage, domain.Registration("AB12CDE")).String())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "2019 blue FORD FIESTA",
		TechnicalData{YearOfManufacture: 2019, Colour: "blue", Make: "FORD", Model: "FIESTA"}.Describe())
	assert.Equal(t, "VAUXHALL", TechnicalData{Make: "VAUXHALL"}.Describe())
}

func TestResolutionConversions(t *testing.T) {
	res := Resolution{
		Outcome: OutcomeSuccess,
		Payload: Payload{ImageURL: "https://img/1.jpg", Technical: &TechnicalData{Make: "FORD"}},
		Source:  SourceHaynes,
		Cached:  true,
	}

	img := res.ToImageResult()
	assert.True(t, img.Success)
	assert.Equal(t, "https://img/1.jpg", img.ImageURL)
	assert.Equal(t, SourceHaynes, img.Source)
	assert.True(t, img.Cached)

	limited := Resolution{Outcome: OutcomeRateLimited, RetryAfterSeconds: 30, Reason: "cooldown"}.ToDataResult()
	assert.False(t, limited.Success)
	assert.Equal(t, 30, limited.RetryAfterSeconds)
}
