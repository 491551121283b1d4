package providers

import (
	"errors"
	"fmt"
)

// ErrorCategory defines the normalized failure taxonomy for provider errors.
//
// Adapters classify every failure into one of these so the resolver can
// decide between trying the next provider, counting a transient failure, and
// giving up, without knowing anything about the provider's wire format.
type ErrorCategory string

const (
	// ErrorTimeout indicates the provider took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the provider returned invalid/malformed data
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorAuthentication indicates credential or permission issues
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorProviderOutage indicates the provider is unavailable (5xx, network)
	ErrorProviderOutage ErrorCategory = "provider_outage"

	// ErrorContractMismatch indicates the provider API changed shape
	ErrorContractMismatch ErrorCategory = "contract_mismatch"

	// ErrorNotFound indicates the provider has nothing for the registration
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorRateLimited indicates the provider answered 429
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorArtifactRejected indicates the provider returned something that is
	// not a usable vehicle photo (diagram, schematic, undecodable bytes)
	ErrorArtifactRejected ErrorCategory = "artifact_rejected"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorCategory = "internal"
)

// IsTransient reports whether a retry of the same call may succeed.
func (c ErrorCategory) IsTransient() bool {
	return c == ErrorTimeout || c == ErrorProviderOutage || c == ErrorRateLimited
}

// IsConclusive reports whether the failure is a definitive answer about the
// registration. Only conclusive misses may be blacklisted; every other
// failure is a fault on the provider side.
func (c ErrorCategory) IsConclusive() bool {
	return c == ErrorNotFound || c == ErrorArtifactRejected
}

// IsHealthFault reports whether the failure counts towards the shared
// cooldown. Rejected credentials fail every lookup until fixed, so they count
// alongside outages.
func (c ErrorCategory) IsHealthFault() bool {
	return c.IsTransient() || c == ErrorAuthentication
}

// ProviderError wraps provider failures with normalized categorization.
type ProviderError struct {
	Category   ErrorCategory
	ProviderID string
	Message    string
	Underlying error
	Retryable  bool // set from Category: timeout, outage and rate-limited are transient
}

func (e *ProviderError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("provider %s [%s]: %s: %v", e.ProviderID, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("provider %s [%s]: %s", e.ProviderID, e.Category, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Underlying
}

// NewProviderError creates a normalized provider error. Retryable is derived
// from the category.
func NewProviderError(category ErrorCategory, providerID, message string, underlying error) *ProviderError {
	return &ProviderError{
		Category:   category,
		ProviderID: providerID,
		Message:    message,
		Underlying: underlying,
		Retryable:  category.IsTransient(),
	}
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error
func GetCategory(err error) ErrorCategory {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ErrorInternal
}

// Sentinels returned by response parsers. The HTTP adapter maps them onto
// categories; anything else a parser returns is bad data.
var (
	ErrNoData           = errors.New("no data for registration")
	ErrArtifactRejected = errors.New("artifact is not a vehicle photo")
	ErrUnexpectedShape  = errors.New("response does not match the provider contract")
)

// CategoryForParseError classifies an error returned by a response parser.
func CategoryForParseError(err error) ErrorCategory {
	switch {
	case errors.Is(err, ErrNoData):
		return ErrorNotFound
	case errors.Is(err, ErrArtifactRejected):
		return ErrorArtifactRejected
	case errors.Is(err, ErrUnexpectedShape):
		return ErrorContractMismatch
	default:
		return ErrorBadData
	}
}

// ErrNoProvidersAvailable is returned when no registered provider supports
// the requested kind.
var ErrNoProvidersAvailable = errors.New("no providers available for this kind")
