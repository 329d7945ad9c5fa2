package providers_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretboot/internal/config"
	sberrors "github.com/systmms/secretboot/internal/errors"
	"github.com/systmms/secretboot/internal/providers"
)

// fakeSecretManager scripts AccessSecretVersion by full resource name.
type fakeSecretManager struct {
	secrets map[string]string // "projects/p/secrets/name/versions/v" -> value
	calls   []string
}

func (f *fakeSecretManager) AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.calls = append(f.calls, req.GetName())
	value, ok := f.secrets[req.GetName()]
	if !ok {
		return nil, fmt.Errorf("NotFound: %s", req.GetName())
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func TestGCPProviderExplicitList(t *testing.T) {
	t.Parallel()

	fake := &fakeSecretManager{secrets: map[string]string{
		"projects/my-project/secrets/db-password/versions/latest": "hunter2",
	}}
	p := providers.NewGCPProvider(config.GCPSettings{
		Enable:    config.ToggleOn,
		ProjectID: "my-project",
		Names:     []string{"db-password"},
		Version:   "latest",
	}, testLogger(), providers.WithGCPSecretClient(fake))

	session, err := p.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "my-project", session.Identity)

	names, err := p.ResolveNames(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, []string{"db-password"}, names)

	value, err := p.Fetch(context.Background(), session, "db-password")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", value)
}

func TestGCPProviderPinnedVersion(t *testing.T) {
	t.Parallel()

	fake := &fakeSecretManager{secrets: map[string]string{
		"projects/p/secrets/key/versions/7": "old-value",
	}}
	p := providers.NewGCPProvider(config.GCPSettings{
		Enable:    config.ToggleOn,
		ProjectID: "p",
		Names:     []string{"key"},
		Version:   "7",
	}, testLogger(), providers.WithGCPSecretClient(fake))

	session, err := p.Authenticate(context.Background())
	require.NoError(t, err)
	value, err := p.Fetch(context.Background(), session, "key")
	require.NoError(t, err)
	assert.Equal(t, "old-value", value)
	assert.True(t, strings.HasSuffix(fake.calls[0], "/versions/7"))
}

func TestGCPProviderProjectFromMetadata(t *testing.T) {
	t.Parallel()

	fake := &fakeSecretManager{secrets: map[string]string{}}
	p := providers.NewGCPProvider(config.GCPSettings{
		Enable: config.ToggleOn,
		Names:  []string{"key"},
	}, testLogger(),
		providers.WithGCPSecretClient(fake),
		providers.WithGCPMetadataProject(func(ctx context.Context) (string, error) {
			return "metadata-project", nil
		}))

	session, err := p.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "metadata-project", session.Identity)
}

func TestGCPProviderNoProjectAnywhere(t *testing.T) {
	t.Parallel()

	p := providers.NewGCPProvider(config.GCPSettings{
		Enable: config.ToggleOn,
		Names:  []string{"key"},
	}, testLogger(),
		providers.WithGCPSecretClient(&fakeSecretManager{}),
		providers.WithGCPMetadataProject(func(ctx context.Context) (string, error) {
			return "", fmt.Errorf("metadata server unreachable")
		}))

	_, err := p.Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, sberrors.IsConfig(err))
}

func TestGCPProviderRequiresListOrFetchAll(t *testing.T) {
	t.Parallel()

	p := providers.NewGCPProvider(config.GCPSettings{
		Enable:    config.ToggleOn,
		ProjectID: "p",
	}, testLogger(), providers.WithGCPSecretClient(&fakeSecretManager{}))

	_, err := p.Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, sberrors.IsConfig(err))
	assert.Contains(t, err.Error(), "GCP_SECRET_FETCH_ALL")
}
