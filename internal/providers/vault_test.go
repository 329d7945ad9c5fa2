package providers_test

import (
	"context"
	"fmt"
	"testing"

	vaultapi "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretboot/internal/config"
	sberrors "github.com/systmms/secretboot/internal/errors"
	"github.com/systmms/secretboot/internal/providers"
)

// fakeVaultLogical scripts responses per path.
type fakeVaultLogical struct {
	reads  map[string]*vaultapi.Secret
	writes map[string]*vaultapi.Secret
	errs   map[string]error

	readPaths  []string
	writePaths []string
}

func (f *fakeVaultLogical) ReadWithContext(ctx context.Context, path string) (*vaultapi.Secret, error) {
	f.readPaths = append(f.readPaths, path)
	if err, ok := f.errs[path]; ok {
		return nil, err
	}
	return f.reads[path], nil
}

func (f *fakeVaultLogical) WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*vaultapi.Secret, error) {
	f.writePaths = append(f.writePaths, path)
	if err, ok := f.errs[path]; ok {
		return nil, err
	}
	return f.writes[path], nil
}

func TestVaultProviderTokenAuthAndKVv2(t *testing.T) {
	t.Parallel()

	fake := &fakeVaultLogical{
		reads: map[string]*vaultapi.Secret{
			"auth/token/lookup-self": {
				Data: map[string]interface{}{"display_name": "ci-token"},
			},
			"secret/data/myapp": {
				Data: map[string]interface{}{
					"data": map[string]interface{}{
						"db_password": "hunter2",
						"api_key":     "abc123",
					},
					"metadata": map[string]interface{}{"version": 4},
				},
			},
		},
	}

	p := providers.NewVaultProvider(config.VaultSettings{
		Enable:     config.ToggleOn,
		AuthMethod: "token",
		Token:      "s.mytoken",
		SecretPath: "secret/data/myapp",
	}, testLogger(), providers.WithVaultLogical(fake))

	session, err := p.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token", session.Method)
	assert.Equal(t, "ci-token", session.Identity)

	names, err := p.ResolveNames(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, []string{"api_key", "db_password"}, names)

	value, err := p.Fetch(context.Background(), session, "db_password")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", value)

	// One KV read total; Fetch serves from the bundle.
	assert.Equal(t, []string{"auth/token/lookup-self", "secret/data/myapp"}, fake.readPaths)
}

func TestVaultProviderKVv1Envelope(t *testing.T) {
	t.Parallel()

	fake := &fakeVaultLogical{
		reads: map[string]*vaultapi.Secret{
			"auth/token/lookup-self": {Data: map[string]interface{}{}},
			"kv/myapp": {
				Data: map[string]interface{}{"db_password": "hunter2"},
			},
		},
	}

	p := providers.NewVaultProvider(config.VaultSettings{
		Enable:     config.ToggleOn,
		AuthMethod: "token",
		Token:      "s.token",
		SecretPath: "kv/myapp",
	}, testLogger(), providers.WithVaultLogical(fake))

	session, err := p.Authenticate(context.Background())
	require.NoError(t, err)
	names, err := p.ResolveNames(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, []string{"db_password"}, names)
}

func TestVaultProviderInvalidToken(t *testing.T) {
	t.Parallel()

	fake := &fakeVaultLogical{
		errs: map[string]error{
			"auth/token/lookup-self": fmt.Errorf("permission denied"),
		},
	}

	p := providers.NewVaultProvider(config.VaultSettings{
		Enable:     config.ToggleOn,
		AuthMethod: "token",
		Token:      "s.bad",
		SecretPath: "kv/myapp",
	}, testLogger(), providers.WithVaultLogical(fake))

	_, err := p.Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, sberrors.IsAuth(err))
}

func TestVaultProviderTokenMissing(t *testing.T) {
	t.Parallel()

	p := providers.NewVaultProvider(config.VaultSettings{
		Enable:     config.ToggleOn,
		AuthMethod: "token",
	}, testLogger(), providers.WithVaultLogical(&fakeVaultLogical{}))

	_, err := p.Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, sberrors.IsConfig(err))
}

func TestVaultProviderAppRole(t *testing.T) {
	t.Parallel()

	fake := &fakeVaultLogical{
		writes: map[string]*vaultapi.Secret{
			"auth/approle/login": {
				Auth: &vaultapi.SecretAuth{ClientToken: "s.issued"},
			},
		},
	}

	p := providers.NewVaultProvider(config.VaultSettings{
		Enable:     config.ToggleOn,
		AuthMethod: "approle",
		RoleID:     "role-1",
		SecretID:   "secret-1",
	}, testLogger(), providers.WithVaultLogical(fake))

	session, err := p.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "approle", session.Method)
	assert.Equal(t, "s.issued", session.Token)
	assert.Equal(t, []string{"auth/approle/login"}, fake.writePaths)
}

func TestVaultProviderKubernetes(t *testing.T) {
	t.Parallel()

	fake := &fakeVaultLogical{
		writes: map[string]*vaultapi.Secret{
			"auth/kubernetes/login": {
				Auth: &vaultapi.SecretAuth{ClientToken: "s.k8s"},
			},
		},
	}

	p := providers.NewVaultProvider(config.VaultSettings{
		Enable:       config.ToggleOn,
		AuthMethod:   "kubernetes",
		K8sRole:      "myapp",
		K8sTokenPath: "/var/run/secrets/kubernetes.io/serviceaccount/token",
		K8sAuthMount: "kubernetes",
	}, testLogger(),
		providers.WithVaultLogical(fake),
		providers.WithVaultTokenReader(func(path string) (string, error) {
			return "jwt-token", nil
		}))

	session, err := p.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "kubernetes", session.Method)
	assert.Equal(t, "myapp", session.Identity)
}

func TestVaultProviderUnsupportedAuthMethod(t *testing.T) {
	t.Parallel()

	p := providers.NewVaultProvider(config.VaultSettings{
		Enable:     config.ToggleOn,
		AuthMethod: "ldap",
	}, testLogger(), providers.WithVaultLogical(&fakeVaultLogical{}))

	_, err := p.Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, sberrors.IsConfig(err))
}

func TestVaultProviderMissingSecretPath(t *testing.T) {
	t.Parallel()

	fake := &fakeVaultLogical{
		reads: map[string]*vaultapi.Secret{
			"auth/token/lookup-self": {Data: map[string]interface{}{}},
		},
	}
	p := providers.NewVaultProvider(config.VaultSettings{
		Enable:     config.ToggleOn,
		AuthMethod: "token",
		Token:      "s.token",
	}, testLogger(), providers.WithVaultLogical(fake))

	session, err := p.Authenticate(context.Background())
	require.NoError(t, err)
	_, err = p.ResolveNames(context.Background(), session)
	require.Error(t, err)
	assert.True(t, sberrors.IsConfig(err))
}
