// Package loader implements the orchestrator: a single priority-ordered
// pass over the enabled providers, partial-failure tolerant, followed by
// the OP_*_REF convention pass. One provider's failure never blocks the
// others; only the aggregate fail-on-error policy can abort the boot.
package loader

import (
	"context"
	"os"
	"time"

	"github.com/buildkite/roko"

	"github.com/systmms/secretboot/internal/config"
	"github.com/systmms/secretboot/internal/envsink"
	sberrors "github.com/systmms/secretboot/internal/errors"
	"github.com/systmms/secretboot/internal/naming"
	"github.com/systmms/secretboot/internal/opref"
	"github.com/systmms/secretboot/internal/secure"
	"github.com/systmms/secretboot/pkg/provider"
)

// Loader runs one secret-loading pass per container boot. It is safe to
// re-run on restart: the same variable set is re-exported with no
// duplication.
type Loader struct {
	cfg       *config.Settings
	providers []provider.SecretProvider
	sink      envsink.Sink
	resolver  *opref.Resolver

	// Environ supplies the listing the convention pass scans; tests
	// override it.
	Environ func() []string
}

// New creates a loader over an already-built provider set.
func New(cfg *config.Settings, providers []provider.SecretProvider, sink envsink.Sink, resolver *opref.Resolver) *Loader {
	return &Loader{
		cfg:       cfg,
		providers: providers,
		sink:      sink,
		resolver:  resolver,
		Environ:   os.Environ,
	}
}

// Run executes the pass and returns the aggregated report. The returned
// error reflects the fail-on-error policy; a nil error with a report
// containing failures is the fail-open outcome.
func (l *Loader) Run(ctx context.Context) (*GlobalReport, error) {
	report := &GlobalReport{}

	if l.cfg.Enabled {
		for _, p := range l.providers {
			if !p.Enabled() {
				report.Results = append(report.Results, LoadResult{Provider: p.Name(), Skipped: true})
				continue
			}
			report.Results = append(report.Results, l.runProvider(ctx, p, report))
		}
	} else {
		l.cfg.Logger.Debug("secret loader disabled, skipping providers")
	}

	// The convention pass is independent of the global enable flag and
	// runs last, so provider-exported variables win the skip-if-set
	// check.
	if l.resolver != nil {
		bindings := opref.Scan(l.Environ())
		report.ConventionExports = l.resolver.Apply(ctx, bindings)
	}

	report.Log(l.cfg.Logger, l.cfg.FailOnError)
	return report, report.Err(l.cfg.FailOnError)
}

// runProvider executes one adapter's authenticate/resolve/fetch/export
// sequence. Fatal (auth/config) errors end the provider's contribution;
// per-secret failures are warned and skipped.
func (l *Loader) runProvider(ctx context.Context, p provider.SecretProvider, report *GlobalReport) LoadResult {
	result := LoadResult{Provider: p.Name()}
	log := l.cfg.Logger

	var session *provider.AuthSession
	err := l.withRetry(ctx, func(callCtx context.Context) error {
		var aerr error
		session, aerr = p.Authenticate(callCtx)
		return aerr
	})
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}
	log.Debug("%s: authenticated via %s", p.Name(), session.Method)

	var names []string
	err = l.withRetry(ctx, func(callCtx context.Context) error {
		var rerr error
		names, rerr = p.ResolveNames(callCtx, session)
		return rerr
	})
	if err != nil {
		result.Errors = append(result.Errors, err)
		return result
	}

	prefix := ""
	if pfx, ok := p.(provider.EnvPrefixer); ok {
		prefix = pfx.EnvPrefix()
	}
	keepCase := false
	if cp, ok := p.(provider.CasePreserver); ok {
		keepCase = cp.PreserveCase()
	}

	for _, name := range names {
		var value string
		err := l.withRetry(ctx, func(callCtx context.Context) error {
			var ferr error
			value, ferr = p.Fetch(callCtx, session, name)
			return ferr
		})
		if err != nil {
			result.Errors = append(result.Errors, err)
			log.Warn("%s: skipping %s: %v", p.Name(), name, err)
			continue
		}

		envName := naming.Normalize(prefix, name)
		if keepCase {
			envName = naming.NormalizeKeepCase(prefix, name)
		}
		if envName == "" {
			result.Errors = append(result.Errors, sberrors.FormatError{
				Provider: p.Name(),
				Name:     name,
				Message:  "name normalizes to an empty variable name",
			})
			continue
		}

		if _, err := l.sink.Set(envName, value, true); err != nil {
			result.Errors = append(result.Errors, sberrors.FetchError{
				Provider: p.Name(),
				Name:     name,
				Message:  "cannot export variable",
				Err:      err,
			})
			continue
		}

		report.Records = append(report.Records, SecretRecord{
			Name:       name,
			EnvName:    envName,
			Provider:   p.Name(),
			AuthMethod: session.Method,
			value:      secure.NewBuffer(value),
		})
		result.Loaded++
		log.Debug("%s: exported %s", p.Name(), envName)
	}

	return result
}

// withRetry runs one provider call under the per-call timeout with
// bounded exponential backoff. Config and auth failures are not
// retryable; they break out immediately.
func (l *Loader) withRetry(ctx context.Context, call func(ctx context.Context) error) error {
	timeout := time.Duration(l.cfg.TimeoutMS) * time.Millisecond

	retrier := roko.NewRetrier(
		roko.WithMaxAttempts(l.cfg.RetryAttempts),
		roko.WithStrategy(roko.Exponential(2*time.Second, 0)),
	)
	return retrier.DoWithContext(ctx, func(r *roko.Retrier) error {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := call(callCtx)
		if err != nil && sberrors.IsFatal(err) {
			r.Break()
		}
		return err
	})
}
