package providers

import (
	"context"
	"fmt"
	"os"
	"strings"

	sberrors "github.com/systmms/secretboot/internal/errors"
	"github.com/systmms/secretboot/pkg/provider"
)

// Authenticate exchanges the configured credentials for a client token
// using one of the supported auth methods: token, approle, kubernetes.
func (v *VaultProvider) Authenticate(ctx context.Context) (*provider.AuthSession, error) {
	if err := v.connect(); err != nil {
		return nil, err
	}

	switch strings.ToLower(v.cfg.AuthMethod) {
	case "", "token":
		return v.authToken(ctx)
	case "approle":
		return v.authAppRole(ctx)
	case "kubernetes", "k8s":
		return v.authKubernetes(ctx)
	default:
		return nil, sberrors.ConfigError{
			Provider:   v.Name(),
			Field:      "VAULT_AUTH_METHOD",
			Message:    fmt.Sprintf("unsupported auth method %q", v.cfg.AuthMethod),
			Suggestion: "Use token, approle, or kubernetes",
		}
	}
}

// authToken validates a pre-supplied token with a lookup-self call.
func (v *VaultProvider) authToken(ctx context.Context) (*provider.AuthSession, error) {
	if v.cfg.Token == "" {
		return nil, sberrors.ConfigError{
			Provider:   v.Name(),
			Field:      "VAULT_TOKEN",
			Message:    "token auth selected but no token provided",
			Suggestion: "Set VAULT_TOKEN or switch VAULT_AUTH_METHOD to approle/kubernetes",
		}
	}
	v.setToken(v.cfg.Token)

	secret, err := v.logical.ReadWithContext(ctx, "auth/token/lookup-self")
	if err != nil {
		return nil, sberrors.AuthError{
			Provider:   v.Name(),
			Method:     "token",
			Message:    "token validation failed",
			Suggestion: "Check that VAULT_TOKEN is valid and not expired",
			Err:        err,
		}
	}

	identity := ""
	if secret != nil && secret.Data != nil {
		if name, ok := secret.Data["display_name"].(string); ok {
			identity = name
		}
	}
	return &provider.AuthSession{Method: "token", Token: v.cfg.Token, Identity: identity}, nil
}

// authAppRole exchanges role_id and secret_id for a client token.
func (v *VaultProvider) authAppRole(ctx context.Context) (*provider.AuthSession, error) {
	if v.cfg.RoleID == "" || v.cfg.SecretID == "" {
		return nil, sberrors.ConfigError{
			Provider:   v.Name(),
			Field:      "VAULT_ROLE_ID",
			Message:    "approle auth requires both VAULT_ROLE_ID and VAULT_SECRET_ID",
			Suggestion: "Provision an AppRole and mount its credentials into the container",
		}
	}

	secret, err := v.logical.WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
		"role_id":   v.cfg.RoleID,
		"secret_id": v.cfg.SecretID,
	})
	if err != nil || secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		return nil, sberrors.AuthError{
			Provider:   v.Name(),
			Method:     "approle",
			Message:    "AppRole login failed",
			Suggestion: "Verify the role_id/secret_id pair and the approle mount",
			Err:        err,
		}
	}

	v.setToken(secret.Auth.ClientToken)
	return &provider.AuthSession{
		Method:   "approle",
		Token:    secret.Auth.ClientToken,
		Identity: v.cfg.RoleID,
	}, nil
}

// authKubernetes exchanges the pod's service-account JWT for a client
// token via the configured kubernetes auth mount.
func (v *VaultProvider) authKubernetes(ctx context.Context) (*provider.AuthSession, error) {
	if v.cfg.K8sRole == "" {
		return nil, sberrors.ConfigError{
			Provider:   v.Name(),
			Field:      "VAULT_K8S_ROLE",
			Message:    "kubernetes auth requires a role name",
			Suggestion: "Set VAULT_K8S_ROLE to the role bound to this service account",
		}
	}

	jwt, err := v.readToken(v.cfg.K8sTokenPath)
	if err != nil {
		return nil, sberrors.AuthError{
			Provider:   v.Name(),
			Method:     "kubernetes",
			Message:    fmt.Sprintf("cannot read service-account token at %s", v.cfg.K8sTokenPath),
			Suggestion: "Check the pod's service-account projection",
			Err:        err,
		}
	}

	loginPath := "auth/" + strings.Trim(v.cfg.K8sAuthMount, "/") + "/login"
	secret, err := v.logical.WriteWithContext(ctx, loginPath, map[string]interface{}{
		"jwt":  jwt,
		"role": v.cfg.K8sRole,
	})
	if err != nil || secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		return nil, sberrors.AuthError{
			Provider:   v.Name(),
			Method:     "kubernetes",
			Message:    "JWT login failed",
			Suggestion: "Verify the Vault role binding and the auth mount path",
			Err:        err,
		}
	}

	v.setToken(secret.Auth.ClientToken)
	return &provider.AuthSession{
		Method:   "kubernetes",
		Token:    secret.Auth.ClientToken,
		Identity: v.cfg.K8sRole,
	}, nil
}

// setToken attaches the client token to the real client; a no-op when a
// fake logical client was injected.
func (v *VaultProvider) setToken(token string) {
	if v.client != nil {
		v.client.SetToken(token)
	}
}

func readFileToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
