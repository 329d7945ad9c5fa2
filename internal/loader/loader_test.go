package loader_test

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretboot/internal/config"
	"github.com/systmms/secretboot/internal/envsink"
	sberrors "github.com/systmms/secretboot/internal/errors"
	"github.com/systmms/secretboot/internal/loader"
	"github.com/systmms/secretboot/internal/logging"
	"github.com/systmms/secretboot/internal/opref"
	"github.com/systmms/secretboot/pkg/provider"
)

// fakeProvider is a scriptable SecretProvider for orchestrator tests.
type fakeProvider struct {
	name    string
	enabled bool
	prefix  string

	names  []string
	values map[string]string

	authErr   error
	fetchErrs map[string]error

	// transientFetchFailures fails the first N Fetch calls per name
	// with a retryable error.
	transientFetchFailures int

	authCalls    int
	resolveCalls int
	fetchCalls   int
}

func (f *fakeProvider) Name() string      { return f.name }
func (f *fakeProvider) Enabled() bool     { return f.enabled }
func (f *fakeProvider) EnvPrefix() string { return f.prefix }

func (f *fakeProvider) Authenticate(ctx context.Context) (*provider.AuthSession, error) {
	f.authCalls++
	if f.authErr != nil {
		return nil, f.authErr
	}
	return &provider.AuthSession{Method: "fake"}, nil
}

func (f *fakeProvider) ResolveNames(ctx context.Context, session *provider.AuthSession) ([]string, error) {
	f.resolveCalls++
	return f.names, nil
}

func (f *fakeProvider) Fetch(ctx context.Context, session *provider.AuthSession, name string) (string, error) {
	f.fetchCalls++
	if f.transientFetchFailures > 0 {
		f.transientFetchFailures--
		return "", sberrors.FetchError{Provider: f.name, Name: name, Message: "transient"}
	}
	if err, ok := f.fetchErrs[name]; ok {
		return "", err
	}
	return f.values[name], nil
}

func (f *fakeProvider) HealthCheck(ctx context.Context) bool { return true }

func testSettings(t *testing.T, env config.Environ) *config.Settings {
	t.Helper()
	if env == nil {
		env = config.Environ{}
	}
	// Keep retries cheap in tests unless a case overrides it.
	if _, ok := env["SECRET_LOADER_RETRY_ATTEMPTS"]; !ok {
		env["SECRET_LOADER_RETRY_ATTEMPTS"] = "1"
	}
	s, err := config.Load(env, logging.NewWithWriter(os.Stderr, false))
	require.NoError(t, err)
	return s
}

func newLoader(cfg *config.Settings, sink envsink.Sink, provs ...provider.SecretProvider) *loader.Loader {
	l := loader.New(cfg, provs, sink, nil)
	l.Environ = func() []string { return nil }
	return l
}

func TestRunDisabledLoaderIsNoOp(t *testing.T) {
	t.Parallel()

	cfg := testSettings(t, config.Environ{"SECRET_LOADER_ENABLED": "false"})
	p := &fakeProvider{name: "docker", enabled: true, names: []string{"x"}}
	sink := envsink.NewMapSink()

	report, err := newLoader(cfg, sink, p).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.TotalLoaded())
	assert.Zero(t, p.authCalls)
	assert.Empty(t, sink.Values)
}

func TestRunExportsWithNormalization(t *testing.T) {
	t.Parallel()

	cfg := testSettings(t, nil)
	p := &fakeProvider{
		name:    "docker",
		enabled: true,
		prefix:  "APP_",
		names:   []string{"db-password"},
		values:  map[string]string{"db-password": "hunter2"},
	}
	sink := envsink.NewMapSink()

	report, err := newLoader(cfg, sink, p).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalLoaded())

	got, ok := sink.Lookup("APP_DB_PASSWORD")
	require.True(t, ok)
	assert.Equal(t, "hunter2", got)

	require.Len(t, report.Records, 1)
	rec := report.Records[0]
	assert.Equal(t, "db-password", rec.Name)
	assert.Equal(t, "APP_DB_PASSWORD", rec.EnvName)
	assert.Equal(t, "docker", rec.Provider)

	value, err := rec.Value()
	require.NoError(t, err)
	assert.Equal(t, "hunter2", value)
	report.Destroy()
	value, err = rec.Value()
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestRunSkipsDisabledProvidersSilently(t *testing.T) {
	t.Parallel()

	cfg := testSettings(t, nil)
	disabled := &fakeProvider{name: "vault", enabled: false, names: []string{"x"}}
	enabled := &fakeProvider{
		name: "docker", enabled: true,
		names: []string{"token"}, values: map[string]string{"token": "v"},
	}
	sink := envsink.NewMapSink()

	report, err := newLoader(cfg, sink, disabled, enabled).Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, disabled.authCalls, "a disabled provider makes zero calls")
	assert.Zero(t, disabled.resolveCalls)
	require.Len(t, report.Results, 2)
	assert.True(t, report.Results[0].Skipped)
	assert.Equal(t, 1, report.Results[1].Loaded)
}

func TestRunFailOpenDefault(t *testing.T) {
	t.Parallel()

	cfg := testSettings(t, nil)
	failing := &fakeProvider{
		name: "vault", enabled: true,
		authErr: sberrors.AuthError{Provider: "vault", Method: "token", Message: "invalid token"},
	}
	healthy := &fakeProvider{
		name: "docker", enabled: true,
		names: []string{"db_password"}, values: map[string]string{"db_password": "hunter2"},
	}
	sink := envsink.NewMapSink()

	report, err := newLoader(cfg, sink, failing, healthy).Run(context.Background())
	require.NoError(t, err, "fail-open: an auth failure does not abort the pass")

	assert.True(t, report.HasFatal())
	assert.Equal(t, 1, report.TotalLoaded())
	got, _ := sink.Lookup("DB_PASSWORD")
	assert.Equal(t, "hunter2", got)
}

func TestRunFailClosedOverride(t *testing.T) {
	t.Parallel()

	cfg := testSettings(t, config.Environ{"SECRET_LOADER_FAIL_ON_ERROR": "true"})
	failing := &fakeProvider{
		name: "vault", enabled: true,
		authErr: sberrors.AuthError{Provider: "vault", Method: "token", Message: "invalid token"},
	}
	healthy := &fakeProvider{
		name: "docker", enabled: true,
		names: []string{"db_password"}, values: map[string]string{"db_password": "hunter2"},
	}
	sink := envsink.NewMapSink()

	report, err := newLoader(cfg, sink, failing, healthy).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault")

	// Fail-closed aborts the boot, but the healthy sibling still ran.
	assert.Equal(t, 1, report.TotalLoaded())
}

func TestRunFetchErrorSkipsOnlyThatSecret(t *testing.T) {
	t.Parallel()

	cfg := testSettings(t, nil)
	p := &fakeProvider{
		name: "azure", enabled: true,
		names:  []string{"good", "bad"},
		values: map[string]string{"good": "v1"},
		fetchErrs: map[string]error{
			"bad": sberrors.FetchError{Provider: "azure", Name: "bad", Message: "404"},
		},
	}
	sink := envsink.NewMapSink()

	report, err := newLoader(cfg, sink, p).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, 1, report.Results[0].Loaded)
	assert.Len(t, report.Results[0].Errors, 1)
	_, ok := sink.Lookup("GOOD")
	assert.True(t, ok)
	_, ok = sink.Lookup("BAD")
	assert.False(t, ok)
}

func TestRunRetriesTransientFetchFailures(t *testing.T) {
	cfg := testSettings(t, config.Environ{"SECRET_LOADER_RETRY_ATTEMPTS": "3"})
	cfg.Logger = logging.NewWithWriter(os.Stderr, false)
	p := &fakeProvider{
		name: "aws", enabled: true,
		names:                  []string{"key"},
		values:                 map[string]string{"key": "v"},
		transientFetchFailures: 1,
	}
	sink := envsink.NewMapSink()

	report, err := newLoader(cfg, sink, p).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalLoaded())
	assert.Equal(t, 2, p.fetchCalls, "first attempt fails, second succeeds")
}

func TestRunDoesNotRetryAuthErrors(t *testing.T) {
	t.Parallel()

	cfg := testSettings(t, config.Environ{"SECRET_LOADER_RETRY_ATTEMPTS": "3"})
	p := &fakeProvider{
		name: "vault", enabled: true,
		authErr: sberrors.AuthError{Provider: "vault", Message: "denied"},
	}
	sink := envsink.NewMapSink()

	_, err := newLoader(cfg, sink, p).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.authCalls, "fatal errors break out of the retry loop")
}

func TestRunIdempotence(t *testing.T) {
	t.Parallel()

	cfg := testSettings(t, nil)
	p := &fakeProvider{
		name: "docker", enabled: true,
		names: []string{"db_password"}, values: map[string]string{"db_password": "hunter2"},
	}
	sink := envsink.NewMapSink()

	_, err := newLoader(cfg, sink, p).Run(context.Background())
	require.NoError(t, err)
	first := sink.Names()

	_, err = newLoader(cfg, sink, p).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, sink.Names())
	got, _ := sink.Lookup("DB_PASSWORD")
	assert.Equal(t, "hunter2", got)
}

func TestRunConventionPassRunsAfterProviders(t *testing.T) {
	t.Parallel()

	cfg := testSettings(t, nil)
	p := &fakeProvider{
		name: "docker", enabled: true,
		names: []string{"github_token"}, values: map[string]string{"github_token": "from-docker"},
	}
	sink := envsink.NewMapSink()

	executor := &scriptedExecutor{responses: map[string]string{
		"op read -n op://Dev/GitHub-PAT/token": "from-op",
		"op read -n op://Dev/NPM/token":        "npm-value",
	}}
	resolver := opref.NewResolver(executor, sink, envsink.NewFileWriter(t.TempDir()), cfg.Logger)

	l := loader.New(cfg, []provider.SecretProvider{p}, sink, resolver)
	l.Environ = func() []string {
		return []string{
			"OP_GITHUB_TOKEN_REF=op://Dev/GitHub-PAT/token",
			"OP_NPM_TOKEN_REF=op://Dev/NPM/token",
		}
	}

	report, err := l.Run(context.Background())
	require.NoError(t, err)

	// The provider-exported variable wins the skip-if-set check.
	got, _ := sink.Lookup("GITHUB_TOKEN")
	assert.Equal(t, "from-docker", got)
	got, _ = sink.Lookup("NPM_TOKEN")
	assert.Equal(t, "npm-value", got)
	assert.Equal(t, 1, report.ConventionExports)
}

type scriptedExecutor struct {
	responses map[string]string
}

func (s *scriptedExecutor) Execute(ctx context.Context, env []string, name string, args ...string) ([]byte, []byte, error) {
	key := name
	for _, a := range args {
		key += " " + a
	}
	if out, ok := s.responses[key]; ok {
		return []byte(out), nil, nil
	}
	return nil, []byte("not found"), fmt.Errorf("exit status 1")
}
