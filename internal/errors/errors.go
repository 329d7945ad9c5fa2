// Package errors defines the typed failure taxonomy for the secret
// loader. The orchestrator makes continue-vs-abort decisions from these
// types rather than from exit codes or string matching.
package errors

import (
	"errors"
	"fmt"
)

// ConfigError reports a required setting missing or malformed on an
// explicitly enabled provider. Always surfaced; under fail-on-error it
// aborts the boot.
type ConfigError struct {
	Provider   string
	Field      string
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "configuration error"
	if e.Provider != "" {
		msg += " in provider '" + e.Provider + "'"
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %s)", e.Field)
	}
	msg += ": " + e.Message
	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}
	return msg
}

// AuthError reports a failed credential exchange. The provider
// contributes zero secrets; sibling providers are unaffected.
type AuthError struct {
	Provider   string
	Method     string
	Message    string
	Suggestion string
	Err        error
}

func (e AuthError) Error() string {
	msg := fmt.Sprintf("authentication failed for provider '%s'", e.Provider)
	if e.Method != "" {
		msg += " (method " + e.Method + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}
	return msg
}

func (e AuthError) Unwrap() error { return e.Err }

// FetchError reports the failed retrieval of one secret. The secret is
// skipped with a warning; the provider's remaining secrets are still
// attempted.
type FetchError struct {
	Provider string
	Name     string
	Message  string
	Err      error
}

func (e FetchError) Error() string {
	msg := fmt.Sprintf("failed to fetch secret '%s' from provider '%s'", e.Name, e.Provider)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e FetchError) Unwrap() error { return e.Err }

// FormatError reports an unparseable provider response. Treated at
// FetchError severity by the loader.
type FormatError struct {
	Provider string
	Name     string
	Message  string
}

func (e FormatError) Error() string {
	return fmt.Sprintf("unparseable response for secret '%s' from provider '%s': %s",
		e.Name, e.Provider, e.Message)
}

// IsFatal reports whether err belongs to the class that aborts the boot
// under SECRET_LOADER_FAIL_ON_ERROR: ConfigError and AuthError. Fetch
// and format failures are per-secret and never escalate on their own.
func IsFatal(err error) bool {
	var cfg ConfigError
	var auth AuthError
	return errors.As(err, &cfg) || errors.As(err, &auth)
}

// IsConfig reports whether err is (or wraps) a ConfigError.
func IsConfig(err error) bool {
	var cfg ConfigError
	return errors.As(err, &cfg)
}

// IsAuth reports whether err is (or wraps) an AuthError.
func IsAuth(err error) bool {
	var auth AuthError
	return errors.As(err, &auth)
}
