package providers

import (
	"context"
	"fmt"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/systmms/secretboot/internal/config"
	sberrors "github.com/systmms/secretboot/internal/errors"
	"github.com/systmms/secretboot/internal/logging"
	"github.com/systmms/secretboot/pkg/provider"
)

// AzureKeyVaultClientAPI defines the interface for Azure Key Vault
// operations. This allows for mocking in tests.
// Note: NewListSecretPropertiesPager is excluded from the interface as
// it returns a pager type that is impractical to mock; fetch-all mode
// requires the concrete client.
type AzureKeyVaultClientAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// AzureProvider fetches secrets from one Key Vault, either from an
// explicit name list or, in opt-in fetch-all mode, by listing the whole
// vault and fetching one call per secret.
type AzureProvider struct {
	cfg    config.AzureSettings
	logger *logging.Logger

	client AzureKeyVaultClientAPI
	// full is the concrete client when we built it ourselves; needed
	// for the list pager in fetch-all mode.
	full *azsecrets.Client
}

// AzureProviderOption configures an AzureProvider.
type AzureProviderOption func(*AzureProvider)

// WithAzureKeyVaultClient sets a custom Key Vault client (for testing).
func WithAzureKeyVaultClient(client AzureKeyVaultClientAPI) AzureProviderOption {
	return func(p *AzureProvider) { p.client = client }
}

// NewAzureProvider creates the Azure Key Vault adapter.
func NewAzureProvider(cfg config.AzureSettings, logger *logging.Logger, opts ...AzureProviderOption) *AzureProvider {
	p := &AzureProvider{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns "azure".
func (az *AzureProvider) Name() string { return "azure" }

// EnvPrefix returns the configured variable-name prefix.
func (az *AzureProvider) EnvPrefix() string { return az.cfg.Prefix }

// Enabled reports whether AZURE_KEYVAULT_ENABLED was set.
func (az *AzureProvider) Enabled() bool { return az.cfg.Enable == config.ToggleOn }

// vaultURL resolves the vault endpoint from the URL or name setting.
func (az *AzureProvider) vaultURL() (string, error) {
	if az.cfg.VaultURL != "" {
		if _, err := url.Parse(az.cfg.VaultURL); err != nil {
			return "", sberrors.ConfigError{
				Provider:   az.Name(),
				Field:      "AZURE_KEYVAULT_URL",
				Message:    fmt.Sprintf("invalid vault URL: %v", err),
				Suggestion: "Use the full endpoint, e.g. https://my-vault.vault.azure.net/",
			}
		}
		return az.cfg.VaultURL, nil
	}
	if az.cfg.VaultName != "" {
		return fmt.Sprintf("https://%s.vault.azure.net/", az.cfg.VaultName), nil
	}
	return "", sberrors.ConfigError{
		Provider:   az.Name(),
		Field:      "AZURE_KEYVAULT_NAME",
		Message:    "vault name or URL is required",
		Suggestion: "Set AZURE_KEYVAULT_NAME or AZURE_KEYVAULT_URL",
	}
}

// Authenticate builds the credential: explicit service principal when
// the full tenant/client/secret triple is configured, otherwise the
// default chain (managed identity, workload identity, CLI session).
func (az *AzureProvider) Authenticate(ctx context.Context) (*provider.AuthSession, error) {
	if len(az.cfg.Names) == 0 && !az.cfg.FetchAll {
		return nil, sberrors.ConfigError{
			Provider:   az.Name(),
			Field:      "AZURE_KEYVAULT_SECRETS",
			Message:    "no secret list configured and fetch-all mode is off",
			Suggestion: "Set AZURE_KEYVAULT_SECRETS, or opt in to the whole vault with AZURE_KEYVAULT_FETCH_ALL=true",
		}
	}

	if az.client != nil {
		return &provider.AuthSession{Method: "injected"}, nil
	}

	vaultURL, err := az.vaultURL()
	if err != nil {
		return nil, err
	}

	var (
		cred   azcore.TokenCredential
		method string
	)
	if az.cfg.TenantID != "" && az.cfg.ClientID != "" && az.cfg.ClientSecret != "" {
		method = "service-principal"
		cred, err = azidentity.NewClientSecretCredential(az.cfg.TenantID, az.cfg.ClientID, az.cfg.ClientSecret, nil)
	} else {
		method = "default-chain"
		cred, err = azidentity.NewDefaultAzureCredential(nil)
	}
	if err != nil {
		return nil, sberrors.AuthError{
			Provider:   az.Name(),
			Method:     method,
			Message:    "cannot build Azure credential",
			Suggestion: "Check AZURE_TENANT_ID/AZURE_CLIENT_ID/AZURE_CLIENT_SECRET or the managed-identity setup",
			Err:        err,
		}
	}

	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, sberrors.AuthError{
			Provider: az.Name(),
			Method:   method,
			Message:  "cannot create Key Vault client",
			Err:      err,
		}
	}
	az.client = client
	az.full = client

	identity := az.cfg.ClientID
	if identity == "" {
		identity = vaultURL
	}
	return &provider.AuthSession{Method: method, Identity: identity}, nil
}

// ResolveNames returns the explicit list, or in fetch-all mode lists
// every secret in the vault.
func (az *AzureProvider) ResolveNames(ctx context.Context, session *provider.AuthSession) ([]string, error) {
	if len(az.cfg.Names) > 0 {
		return append([]string(nil), az.cfg.Names...), nil
	}

	if az.full == nil {
		return nil, sberrors.FetchError{
			Provider: az.Name(),
			Message:  "fetch-all mode requires the full Key Vault client",
		}
	}

	var names []string
	pager := az.full.NewListSecretPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, sberrors.FetchError{
				Provider: az.Name(),
				Message:  "listing vault secrets failed",
				Err:      err,
			}
		}
		for _, item := range page.Value {
			if item.ID != nil {
				names = append(names, item.ID.Name())
			}
		}
	}
	return names, nil
}

// Fetch retrieves the latest version of one secret.
func (az *AzureProvider) Fetch(ctx context.Context, session *provider.AuthSession, name string) (string, error) {
	resp, err := az.client.GetSecret(ctx, name, "", nil)
	if err != nil {
		return "", sberrors.FetchError{
			Provider: az.Name(),
			Name:     name,
			Message:  "GetSecret failed",
			Err:      err,
		}
	}
	if resp.Value == nil {
		return "", sberrors.FormatError{
			Provider: az.Name(),
			Name:     name,
			Message:  "secret has no value",
		}
	}
	return *resp.Value, nil
}

// HealthCheck reports whether the first configured secret (or the vault
// listing, in fetch-all mode) is reachable.
func (az *AzureProvider) HealthCheck(ctx context.Context) bool {
	if az.client == nil {
		if _, err := az.Authenticate(ctx); err != nil {
			return false
		}
	}
	if len(az.cfg.Names) > 0 {
		_, err := az.client.GetSecret(ctx, az.cfg.Names[0], "", nil)
		return err == nil
	}
	if az.full == nil {
		return false
	}
	pager := az.full.NewListSecretPropertiesPager(nil)
	if !pager.More() {
		return true
	}
	_, err := pager.NextPage(ctx)
	return err == nil
}
