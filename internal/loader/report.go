package loader

import (
	"fmt"

	sberrors "github.com/systmms/secretboot/internal/errors"
	"github.com/systmms/secretboot/internal/logging"
	"github.com/systmms/secretboot/internal/secure"
)

// SecretRecord describes one exported secret. The value is held in an
// encrypted in-memory buffer, never as a plain field, so the report can
// outlive the export step without retaining plaintext.
type SecretRecord struct {
	// Name is the provider-side logical name.
	Name string

	// EnvName is the normalized environment variable name.
	EnvName string

	// Provider and AuthMethod record provenance.
	Provider   string
	AuthMethod string

	value *secure.Buffer
}

// Value reveals the secret value. Returns empty after Destroy.
func (r *SecretRecord) Value() (string, error) { return r.value.Reveal() }

// Destroy drops the record's value buffer.
func (r *SecretRecord) Destroy() { r.value.Destroy() }

// LoadResult is one provider's outcome for a single pass.
type LoadResult struct {
	Provider string

	// Skipped marks a provider whose Enabled() reported false; it made
	// no network or CLI calls.
	Skipped bool

	// Loaded counts successfully exported secrets.
	Loaded int

	// Errors holds the typed failures: ConfigError, AuthError,
	// FetchError, FormatError.
	Errors []error
}

// Fatal reports whether this result carries an error that aborts the
// boot under fail-on-error policy.
func (r *LoadResult) Fatal() bool {
	for _, err := range r.Errors {
		if sberrors.IsFatal(err) {
			return true
		}
	}
	return false
}

// GlobalReport aggregates all per-provider outcomes for one pass.
type GlobalReport struct {
	Results []LoadResult
	Records []SecretRecord

	// ConventionExports counts variables set by the OP_*_REF pass.
	ConventionExports int
}

// TotalLoaded returns the number of secrets exported by providers.
func (g *GlobalReport) TotalLoaded() int {
	total := 0
	for _, r := range g.Results {
		total += r.Loaded
	}
	return total
}

// HasFatal reports whether any provider recorded a ConfigError or
// AuthError.
func (g *GlobalReport) HasFatal() bool {
	for _, r := range g.Results {
		if r.Fatal() {
			return true
		}
	}
	return false
}

// Err converts the report into the pass's final error under the given
// policy: nil under fail-open, an error naming the failed providers
// when fail-on-error is set and a fatal failure occurred.
func (g *GlobalReport) Err(failOnError bool) error {
	if !failOnError || !g.HasFatal() {
		return nil
	}
	var failed []string
	for _, r := range g.Results {
		if r.Fatal() {
			failed = append(failed, r.Provider)
		}
	}
	return fmt.Errorf("secret loading failed for provider(s) %v and SECRET_LOADER_FAIL_ON_ERROR is set", failed)
}

// Destroy drops every record's value buffer.
func (g *GlobalReport) Destroy() {
	for i := range g.Records {
		g.Records[i].Destroy()
	}
}

// Log writes the per-provider summary lines and the final banner.
// Secret values never appear here; only counts and variable-free error
// text.
func (g *GlobalReport) Log(logger *logging.Logger, failOnError bool) {
	for _, r := range g.Results {
		switch {
		case r.Skipped:
			logger.Debug("%s: disabled, skipped", r.Provider)
		case len(r.Errors) == 0:
			logger.Info("%s: %d secret(s) loaded", r.Provider, r.Loaded)
		default:
			logger.Warn("%s: %d secret(s) loaded, %d error(s)", r.Provider, r.Loaded, len(r.Errors))
			for _, err := range r.Errors {
				logger.Warn("%s: %v", r.Provider, err)
			}
		}
	}
	if g.ConventionExports > 0 {
		logger.Info("opref: %d variable(s) exported", g.ConventionExports)
	}

	if g.HasFatal() && failOnError {
		logger.Error("secret loading failed (%d loaded) and fail-on-error is set", g.TotalLoaded())
	} else if g.HasFatal() {
		logger.Warn("secret loading finished with errors, continuing (%d loaded)", g.TotalLoaded())
	} else {
		logger.Info("secret loading complete (%d loaded)", g.TotalLoaded())
	}
}
