package providers

import (
	"context"
	"fmt"

	"cloud.google.com/go/compute/metadata"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/systmms/secretboot/internal/config"
	sberrors "github.com/systmms/secretboot/internal/errors"
	"github.com/systmms/secretboot/internal/logging"
	"github.com/systmms/secretboot/pkg/provider"
)

// GCPSecretClientAPI defines the interface for GCP Secret Manager
// access operations. This allows for mocking in tests.
// Note: ListSecrets is excluded because its iterator is impractical to
// mock; fetch-all mode requires the concrete client.
type GCPSecretClientAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
}

// GCPProvider fetches secrets from Secret Manager at a specific version
// (default "latest"), from an explicit name list or in opt-in fetch-all
// mode.
type GCPProvider struct {
	cfg    config.GCPSettings
	logger *logging.Logger

	client GCPSecretClientAPI
	full   *secretmanager.Client

	// projectFromMetadata is a hook for the instance-metadata fallback;
	// tests override it.
	projectFromMetadata func(ctx context.Context) (string, error)

	projectID string
}

// GCPProviderOption configures a GCPProvider.
type GCPProviderOption func(*GCPProvider)

// WithGCPSecretClient sets a custom Secret Manager client (for testing).
func WithGCPSecretClient(client GCPSecretClientAPI) GCPProviderOption {
	return func(p *GCPProvider) { p.client = client }
}

// WithGCPMetadataProject sets a custom metadata-service lookup (for
// testing).
func WithGCPMetadataProject(fn func(ctx context.Context) (string, error)) GCPProviderOption {
	return func(p *GCPProvider) { p.projectFromMetadata = fn }
}

// NewGCPProvider creates the GCP Secret Manager adapter.
func NewGCPProvider(cfg config.GCPSettings, logger *logging.Logger, opts ...GCPProviderOption) *GCPProvider {
	p := &GCPProvider{
		cfg:                 cfg,
		logger:              logger,
		projectFromMetadata: metadata.ProjectIDWithContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns "gcp".
func (g *GCPProvider) Name() string { return "gcp" }

// EnvPrefix returns the configured variable-name prefix.
func (g *GCPProvider) EnvPrefix() string { return g.cfg.Prefix }

// Enabled reports whether GCP_SECRETS_ENABLED was set.
func (g *GCPProvider) Enabled() bool { return g.cfg.Enable == config.ToggleOn }

// Authenticate resolves the project id (explicit setting, then the
// instance metadata service) and builds the client with either the
// configured service-account key or Application Default Credentials.
func (g *GCPProvider) Authenticate(ctx context.Context) (*provider.AuthSession, error) {
	if len(g.cfg.Names) == 0 && !g.cfg.FetchAll {
		return nil, sberrors.ConfigError{
			Provider:   g.Name(),
			Field:      "GCP_SECRET_NAMES",
			Message:    "no secret list configured and fetch-all mode is off",
			Suggestion: "Set GCP_SECRET_NAMES, or opt in to the whole project with GCP_SECRET_FETCH_ALL=true",
		}
	}

	g.projectID = g.cfg.ProjectID
	if g.projectID == "" {
		id, err := g.projectFromMetadata(ctx)
		if err != nil || id == "" {
			return nil, sberrors.ConfigError{
				Provider:   g.Name(),
				Field:      "GCP_PROJECT_ID",
				Message:    "project id not configured and not resolvable from instance metadata",
				Suggestion: "Set GCP_PROJECT_ID or GOOGLE_CLOUD_PROJECT",
			}
		}
		g.projectID = id
	}

	method := "application-default"
	if g.client == nil {
		var clientOpts []option.ClientOption
		if g.cfg.CredentialsFile != "" {
			method = "service-account-key"
			clientOpts = append(clientOpts, option.WithCredentialsFile(g.cfg.CredentialsFile))
		}
		client, err := secretmanager.NewClient(ctx, clientOpts...)
		if err != nil {
			return nil, sberrors.AuthError{
				Provider:   g.Name(),
				Method:     method,
				Message:    "cannot create Secret Manager client",
				Suggestion: "Check GCP_SA_KEY_PATH or the Application Default Credentials setup",
				Err:        err,
			}
		}
		g.client = client
		g.full = client
	} else {
		method = "injected"
	}

	return &provider.AuthSession{Method: method, Identity: g.projectID}, nil
}

// ResolveNames returns the explicit list, or in fetch-all mode lists
// every secret in the project.
func (g *GCPProvider) ResolveNames(ctx context.Context, session *provider.AuthSession) ([]string, error) {
	if len(g.cfg.Names) > 0 {
		return append([]string(nil), g.cfg.Names...), nil
	}

	if g.full == nil {
		return nil, sberrors.FetchError{
			Provider: g.Name(),
			Message:  "fetch-all mode requires the full Secret Manager client",
		}
	}

	var names []string
	it := g.full.ListSecrets(ctx, &secretmanagerpb.ListSecretsRequest{
		Parent: "projects/" + g.projectID,
	})
	for {
		secret, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, sberrors.FetchError{
				Provider: g.Name(),
				Message:  "listing project secrets failed",
				Err:      err,
			}
		}
		// Resource names look like projects/<id>/secrets/<name>.
		names = append(names, lastPathSegment(secret.GetName()))
	}
	return names, nil
}

func lastPathSegment(resource string) string {
	for i := len(resource) - 1; i >= 0; i-- {
		if resource[i] == '/' {
			return resource[i+1:]
		}
	}
	return resource
}

// Fetch accesses the configured version of one secret.
func (g *GCPProvider) Fetch(ctx context.Context, session *provider.AuthSession, name string) (string, error) {
	version := g.cfg.Version
	if version == "" {
		version = "latest"
	}
	resp, err := g.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/%s", g.projectID, name, version),
	})
	if err != nil {
		return "", sberrors.FetchError{
			Provider: g.Name(),
			Name:     name,
			Message:  fmt.Sprintf("AccessSecretVersion (%s) failed", version),
			Err:      err,
		}
	}
	if resp.GetPayload() == nil {
		return "", sberrors.FormatError{
			Provider: g.Name(),
			Name:     name,
			Message:  "secret version has no payload",
		}
	}
	return string(resp.GetPayload().GetData()), nil
}

// HealthCheck reports whether the first configured secret is
// accessible.
func (g *GCPProvider) HealthCheck(ctx context.Context) bool {
	if g.client == nil {
		if _, err := g.Authenticate(ctx); err != nil {
			return false
		}
	}
	if len(g.cfg.Names) == 0 {
		return g.full != nil
	}
	_, err := g.Fetch(ctx, nil, g.cfg.Names[0])
	return err == nil
}
