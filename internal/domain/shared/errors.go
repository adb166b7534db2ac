// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")

	// Concurrency errors
	ErrPassInFlight = errors.New("evaluation pass already in flight")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// Evaluation pass failure taxonomy. Each kind maps to a documented degraded
// state: an unavailable catalog degrades to an empty catalog, an unavailable
// cart aborts the pass, a reward that cannot be resolved is skipped, and a
// failed mutation leaves flags untouched so the transition retries later.
var (
	ErrCatalogUnavailable = errors.New("rule catalog unavailable")
	ErrCartUnavailable    = errors.New("cart snapshot unavailable")
	ErrRewardResolution   = errors.New("reward variant cannot be resolved")
	ErrMutationFailed     = errors.New("cart mutation failed")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "rule", "eligibility", "notification"
	Op      string // Operation that failed, e.g., "Normalize", "Evaluate"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Rule domain errors
var (
	ErrRuleKindMismatch = NewDomainError("rule", "Normalize", ErrInvalidInput, "raw record does not match target kind")
	ErrRuleDisabled     = NewDomainError("rule", "Normalize", ErrInvalidState, "rule is disabled")
	ErrRuleMissingGoal  = NewDomainError("rule", "Normalize", ErrEmptyValue, "rule has no resolvable goal amount")
	ErrRuleInvalidSlot  = NewDomainError("rule", "InferSlot", ErrValueOutOfRange, "step slot outside 1-4")
	ErrRuleNoIdentity   = NewDomainError("rule", "IdentityKey", ErrEmptyValue, "no identity source field present")
	ErrCatalogMalformed = NewDomainError("rule", "ParseCatalog", ErrInvalidFormat, "catalog payload is not a record set")
	ErrRuleNotFound     = NewDomainError("rule", "Find", ErrNotFound, "rule not found in catalog")
	ErrCatalogFetch     = NewDomainError("rule", "Fetch", ErrCatalogUnavailable, "catalog fetch failed")
)

// Cart domain errors
var (
	ErrCartFetch        = NewDomainError("cart", "Fetch", ErrCartUnavailable, "cart snapshot fetch failed")
	ErrCartMalformed    = NewDomainError("cart", "Parse", ErrInvalidFormat, "cart payload is malformed")
	ErrLineNotFound     = NewDomainError("cart", "FindLine", ErrNotFound, "line item not found")
	ErrVariantUnknown   = NewDomainError("cart", "ResolveVariant", ErrRewardResolution, "variant does not resolve to a line-item identifier")
	ErrAddLineFailed    = NewDomainError("cart", "AddLine", ErrMutationFailed, "add reward line failed")
	ErrChangeLineFailed = NewDomainError("cart", "ChangeLine", ErrMutationFailed, "set line quantity failed")
)

// Notification domain errors
var (
	ErrFlagStoreUnavailable = NewDomainError("notification", "Flag", ErrServiceUnavailable, "flag store unavailable")
	ErrGuardKeyEmpty        = NewDomainError("notification", "Flag", ErrEmptyValue, "guard key cannot be empty")
)

// Enforcer errors
var (
	ErrEnforcerBusy = NewDomainError("enforcer", "Run", ErrPassInFlight, "enforcement pass already running")
)

// Storefront collaborator errors
var (
	ErrStorefrontUnavailable = NewDomainError("storefront", "Request", ErrServiceUnavailable, "storefront API is unavailable")
	ErrStorefrontRateLimited = NewDomainError("storefront", "Request", ErrRateLimited, "storefront API rate limit exceeded")
	ErrStorefrontTimeout     = NewDomainError("storefront", "Request", ErrTimeout, "storefront API request timeout")
	ErrStorefrontBadPayload  = NewDomainError("storefront", "Parse", ErrInvalidFormat, "invalid response from storefront API")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrMutationFailed)
}

// IsCatalogDegrade reports whether the pass should continue with an empty
// catalog instead of failing outright.
func IsCatalogDegrade(err error) bool {
	return errors.Is(err, ErrCatalogUnavailable) || errors.Is(err, ErrInvalidFormat)
}
