package auth

import (
	"errors"
	"fmt"

	"github.com/widgetboard/widget-auth/internal/provider"
)

var (
	// ErrMissingCredentials means no client id/secret is available for a provider.
	ErrMissingCredentials = errors.New("missing client credentials")

	// ErrUnknownProvider means the provider is not in the registry.
	ErrUnknownProvider = errors.New("unknown provider")
)

// ConfigError reports missing or unusable deployment configuration.
// It is fatal for the request, never for the process.
type ConfigError struct {
	Provider provider.ID
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %v", e.Provider, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// DecodeErrorKind classifies why a state token was rejected.
type DecodeErrorKind int

const (
	Malformed DecodeErrorKind = iota
	Expired
)

// DecodeError is returned for a state token that must not be trusted.
// Both kinds end the flow.
type DecodeError struct {
	Kind DecodeErrorKind
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Kind == Expired {
		return "State parameter has expired"
	}
	return "State parameter is invalid"
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ExchangeError reports a provider rejecting a code or refresh exchange.
type ExchangeError struct {
	Provider    provider.ID
	Code        string // OAuth error code, e.g. "invalid_grant"
	Description string
	Err         error
}

func (e *ExchangeError) Error() string {
	if e.Description != "" {
		return e.Description
	}
	if e.Code != "" {
		return fmt.Sprintf("token exchange failed: %s", e.Code)
	}
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// RefreshErrorKind tells the caller whether retrying a refresh can help.
type RefreshErrorKind int

const (
	// InvalidGrant means the refresh credential is invalid or revoked.
	// The account must be reconnected.
	InvalidGrant RefreshErrorKind = iota
	// Transient covers network failures and provider 5xx/429. Safe to retry with backoff.
	Transient
	// Rejected is any other provider refusal. Retrying will not help.
	Rejected
)

func (k RefreshErrorKind) String() string {
	switch k {
	case InvalidGrant:
		return "invalid_grant"
	case Transient:
		return "transient"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// RefreshError is returned by Refresher.Refresh for provider-side failures.
type RefreshError struct {
	Kind     RefreshErrorKind
	Provider provider.ID
	Err      error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("refreshing %s token (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// IsInvalidGrant reports whether err means the account must be reconnected.
func IsInvalidGrant(err error) bool {
	var re *RefreshError
	return errors.As(err, &re) && re.Kind == InvalidGrant
}

// IsTransient reports whether err is a refresh failure worth retrying.
func IsTransient(err error) bool {
	var re *RefreshError
	return errors.As(err, &re) && re.Kind == Transient
}
