package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/systmms/secretboot/internal/config"
	sberrors "github.com/systmms/secretboot/internal/errors"
	"github.com/systmms/secretboot/internal/logging"
	"github.com/systmms/secretboot/pkg/provider"
)

// VaultLogicalAPI is the slice of the Vault client the adapter uses.
// Tests inject a fake; production wraps *vaultapi.Client.
type VaultLogicalAPI interface {
	ReadWithContext(ctx context.Context, path string) (*vaultapi.Secret, error)
	WriteWithContext(ctx context.Context, path string, data map[string]interface{}) (*vaultapi.Secret, error)
}

// VaultProvider reads all secrets at one KV path in a single round
// trip. Both KV v1 (.data) and KV v2 (.data.data) response envelopes
// are handled transparently.
type VaultProvider struct {
	cfg    config.VaultSettings
	logger *logging.Logger

	client  *vaultapi.Client
	logical VaultLogicalAPI

	// readToken is a hook for reading the Kubernetes service-account
	// JWT; tests override it.
	readToken func(path string) (string, error)

	// cache holds the bundle fetched during ResolveNames; Fetch serves
	// from it without further round trips.
	cache map[string]string
}

// VaultProviderOption configures a VaultProvider.
type VaultProviderOption func(*VaultProvider)

// WithVaultLogical sets a custom logical client (for testing).
func WithVaultLogical(logical VaultLogicalAPI) VaultProviderOption {
	return func(p *VaultProvider) { p.logical = logical }
}

// WithVaultTokenReader sets a custom JWT reader (for testing).
func WithVaultTokenReader(fn func(path string) (string, error)) VaultProviderOption {
	return func(p *VaultProvider) { p.readToken = fn }
}

// NewVaultProvider creates the HashiCorp Vault adapter. The API client
// is built lazily at Authenticate so a disabled provider never touches
// the network.
func NewVaultProvider(cfg config.VaultSettings, logger *logging.Logger, opts ...VaultProviderOption) *VaultProvider {
	p := &VaultProvider{cfg: cfg, logger: logger, readToken: readFileToken}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns "vault".
func (v *VaultProvider) Name() string { return "vault" }

// EnvPrefix returns the configured variable-name prefix.
func (v *VaultProvider) EnvPrefix() string { return v.cfg.Prefix }

// Enabled reports whether VAULT_ENABLED was set. Vault has no auto
// mode; participation is always explicit.
func (v *VaultProvider) Enabled() bool { return v.cfg.Enable == config.ToggleOn }

// connect builds the real API client unless a fake was injected.
func (v *VaultProvider) connect() error {
	if v.logical != nil {
		return nil
	}
	if v.cfg.Address == "" {
		return sberrors.ConfigError{
			Provider:   v.Name(),
			Field:      "VAULT_ADDR",
			Message:    "Vault server address is required",
			Suggestion: "Set VAULT_ADDR (e.g. https://vault.internal:8200)",
		}
	}
	apiCfg := vaultapi.DefaultConfig()
	apiCfg.Address = v.cfg.Address
	client, err := vaultapi.NewClient(apiCfg)
	if err != nil {
		return sberrors.ConfigError{
			Provider: v.Name(),
			Field:    "VAULT_ADDR",
			Message:  fmt.Sprintf("cannot create Vault client: %v", err),
		}
	}
	if v.cfg.Namespace != "" {
		client.SetNamespace(v.cfg.Namespace)
	}
	v.client = client
	v.logical = client.Logical()
	return nil
}

// ResolveNames performs the single KV read and returns the key names
// found at the configured path.
func (v *VaultProvider) ResolveNames(ctx context.Context, session *provider.AuthSession) ([]string, error) {
	if v.cfg.SecretPath == "" {
		return nil, sberrors.ConfigError{
			Provider:   v.Name(),
			Field:      "VAULT_SECRET_PATH",
			Message:    "secret path is required",
			Suggestion: "Set VAULT_SECRET_PATH (e.g. secret/data/myapp or kv/myapp)",
		}
	}

	secret, err := v.logical.ReadWithContext(ctx, v.cfg.SecretPath)
	if err != nil {
		return nil, sberrors.FetchError{
			Provider: v.Name(),
			Name:     v.cfg.SecretPath,
			Message:  "KV read failed",
			Err:      err,
		}
	}
	if secret == nil || secret.Data == nil {
		return nil, sberrors.FetchError{
			Provider: v.Name(),
			Name:     v.cfg.SecretPath,
			Message:  "no secret found at path",
		}
	}

	data := unwrapKV(secret.Data)
	v.cache = make(map[string]string, len(data))
	names := make([]string, 0, len(data))
	for key, raw := range data {
		value, err := stringifyVaultValue(raw)
		if err != nil {
			v.logger.Warn("vault: skipping key %s: %v", key, err)
			continue
		}
		v.cache[key] = value
		names = append(names, key)
	}
	sort.Strings(names)
	return names, nil
}

// unwrapKV peels the KV v2 envelope when present. A v2 response nests
// the payload under "data" alongside a "metadata" block.
func unwrapKV(data map[string]interface{}) map[string]interface{} {
	inner, ok := data["data"].(map[string]interface{})
	if !ok {
		return data
	}
	if _, hasMeta := data["metadata"]; !hasMeta {
		return data
	}
	return inner
}

func stringifyVaultValue(raw interface{}) (string, error) {
	switch val := raw.(type) {
	case string:
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool, float64, int, int64:
		return fmt.Sprint(val), nil
	case nil:
		return "", nil
	default:
		// Nested maps and arrays export as compact JSON.
		encoded, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("value is not representable as a string")
		}
		return string(encoded), nil
	}
}

// Fetch serves one key from the bundle read during ResolveNames.
func (v *VaultProvider) Fetch(ctx context.Context, session *provider.AuthSession, name string) (string, error) {
	value, ok := v.cache[name]
	if !ok {
		return "", sberrors.FetchError{
			Provider: v.Name(),
			Name:     name,
			Message:  "key not present at the configured secret path",
		}
	}
	return value, nil
}

// HealthCheck reports whether the Vault server answers. With a real
// client this queries sys/health; with an injected fake it probes the
// configured secret path.
func (v *VaultProvider) HealthCheck(ctx context.Context) bool {
	if err := v.connect(); err != nil {
		return false
	}
	if v.client != nil {
		_, err := v.client.Sys().HealthWithContext(ctx)
		return err == nil
	}
	_, err := v.logical.ReadWithContext(ctx, v.cfg.SecretPath)
	return err == nil
}
