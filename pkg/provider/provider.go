// Package provider defines the core interfaces and types for secret
// providers in secretboot.
//
// secretboot loads secrets from external stores at container start and
// exports them as process environment variables before the workload runs.
// Each backend (Docker secrets, HashiCorp Vault, AWS Secrets Manager,
// Azure Key Vault, GCP Secret Manager, 1Password) implements the
// SecretProvider interface so the loader can walk them uniformly in
// priority order.
//
// # Provider lifecycle
//
// For one boot pass, the loader calls each enabled provider in sequence:
//
//  1. Enabled() decides whether the provider participates at all. A
//     disabled provider must make no network or CLI calls.
//  2. Authenticate(ctx) exchanges configured credentials for an
//     AuthSession. The session is ephemeral: it lives for one invocation
//     and is never persisted.
//  3. ResolveNames(ctx, session) returns the logical secret names the
//     provider will contribute. Providers whose backend returns a whole
//     secret bundle in one round trip (Vault KV, AWS JSON payloads) may
//     fetch during this step and serve Fetch from the in-memory result.
//  4. Fetch(ctx, session, name) returns one secret value.
//
// # Error handling
//
// Providers report failures through the typed errors in
// internal/errors: AuthError when the credential exchange fails (the
// provider contributes zero secrets, siblings are unaffected), FetchError
// when one secret's retrieval fails (that secret is skipped), ConfigError
// when an explicitly enabled provider is missing required configuration.
//
// # Security
//
// Implementations must never log secret values (use logging.Secret when a
// path or reference could be sensitive) and must support context
// cancellation on every blocking call.
package provider

import "context"

// SecretProvider is the contract every backend adapter implements.
//
// Implementations are used by a single goroutine per boot pass; they do
// not need to be safe for concurrent use, but they must be safe to run
// again on the next container restart with no carried-over state.
type SecretProvider interface {
	// Name returns the provider's stable lowercase identifier, as used
	// in SECRET_LOADER_PRIORITY: "docker", "1password", "vault", "aws",
	// "azure", "gcp".
	Name() string

	// Enabled reports whether this provider should run. It is derived
	// from configuration only (including "auto" detection for Docker
	// secrets) and must not perform network calls.
	Enabled() bool

	// Authenticate exchanges the configured credentials for an ephemeral
	// session. Providers whose backends authenticate implicitly (Docker
	// file mounts, AWS credential chain) return a session describing the
	// effective method without a remote round trip.
	Authenticate(ctx context.Context) (*AuthSession, error)

	// ResolveNames returns the logical secret names this provider will
	// export, after allowlist filtering.
	ResolveNames(ctx context.Context, session *AuthSession) ([]string, error)

	// Fetch returns the value for one resolved name.
	Fetch(ctx context.Context, session *AuthSession, name string) (string, error)

	// HealthCheck reports whether the backend is reachable with the
	// current configuration. Used by `secretboot doctor`; failures are
	// diagnostic, never fatal to a load pass.
	HealthCheck(ctx context.Context) bool
}

// AuthSession is the per-invocation authentication state for one
// provider. It is created by Authenticate, threaded through ResolveNames
// and Fetch, and discarded when the pass ends. Never cache or persist a
// session across container restarts.
type AuthSession struct {
	// Method names the credential path that produced this session, e.g.
	// "token", "approle", "kubernetes", "credential-chain",
	// "managed-identity", "service-account".
	Method string

	// Token holds the bearer/client token when the method produced one.
	// It must never be logged.
	Token string

	// Identity is a loggable description of the authenticated principal
	// (role name, account id), never a credential.
	Identity string
}

// EnvPrefixer is implemented by providers that prepend a configured
// prefix to every exported variable name. The loader consults it before
// normalizing names; providers without a prefix may omit it.
type EnvPrefixer interface {
	EnvPrefix() string
}

// CasePreserver is implemented by providers whose uppercase toggle is
// configurable. When PreserveCase reports true the loader keeps the
// original letter case of resolved names instead of upper-casing them.
type CasePreserver interface {
	PreserveCase() bool
}
