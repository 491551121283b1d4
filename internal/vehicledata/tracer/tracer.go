// Package tracer is the tracing seam for vehicle-data resolution. Resolver,
// cache and providers depend on the small Tracer interface here rather than
// on OpenTelemetry directly; NoopTracer serves tests and OTelTracer serves
// production.
package tracer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span, marking it failed when err is non-nil.
	// End must be called exactly once, typically via defer.
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
//
// Example:
//
//	ctx, span := t.Start(ctx, tracer.SpanResolve,
//	    tracer.String(tracer.AttrRegistration, tracer.HashRegistration(reg)),
//	)
//	defer func() { span.End(err) }()
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int creates an integer attribute.
func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: int64(value)}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// HashRegistration returns a short SHA-256 digest of a registration so traces
// from the same vehicle correlate without carrying the plate itself.
func HashRegistration(registration string) string {
	if registration == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(registration))
	return hex.EncodeToString(hash[:8])
}

// Span names.
const (
	SpanResolve       = "vehicledata.resolve"
	SpanCacheGet      = "vehicledata.cache.get"
	SpanProviderChain = "vehicledata.providers"
	SpanProviderCall  = "vehicledata.provider.call"
)

// Attribute keys.
const (
	AttrRegistration = "vehicle.registration_hash"
	AttrKind         = "vehicledata.kind"
	AttrOutcome      = "vehicledata.outcome"
	AttrSource       = "vehicledata.source"
	AttrCacheHit     = "cache.hit"
	AttrCacheTier    = "cache.tier"
	AttrProvider     = "provider.id"
	AttrAttempt      = "provider.attempt"
	AttrErrorClass   = "provider.error_category"
)

// Event names.
const (
	EventBlacklistHit  = "blacklist.hit"
	EventCooldownOpen  = "ratelimit.cooldown_opened"
	EventBlacklistMark = "blacklist.marked"
)
