package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/systmms/secretboot/internal/config"
	sberrors "github.com/systmms/secretboot/internal/errors"
	"github.com/systmms/secretboot/internal/logging"
	sbexec "github.com/systmms/secretboot/pkg/exec"
	"github.com/systmms/secretboot/pkg/provider"
)

// OnePasswordProvider is the explicit 1Password adapter: a configured
// vault/item list resolved through the `op` CLI, authenticated by a
// service-account token or a Connect server. The OP_<NAME>_REF
// convention pass is handled separately and does not use this adapter.
type OnePasswordProvider struct {
	cfg      config.OnePasswordSettings
	logger   *logging.Logger
	executor sbexec.CommandExecutor
}

// NewOnePasswordProvider creates the 1Password adapter. Pass a fake
// executor in tests; nil selects the real CLI.
func NewOnePasswordProvider(cfg config.OnePasswordSettings, logger *logging.Logger, executor sbexec.CommandExecutor) *OnePasswordProvider {
	if executor == nil {
		executor = sbexec.Default()
	}
	return &OnePasswordProvider{cfg: cfg, logger: logger, executor: executor}
}

// Name returns "1password".
func (op *OnePasswordProvider) Name() string { return "1password" }

// EnvPrefix returns the configured variable-name prefix.
func (op *OnePasswordProvider) EnvPrefix() string { return op.cfg.Prefix }

// Enabled reports whether OP_SECRETS_ENABLED was set.
func (op *OnePasswordProvider) Enabled() bool { return op.cfg.Enable == config.ToggleOn }

// cliEnv builds the extra environment for `op` invocations: either the
// service-account token or the Connect host/token pair.
func (op *OnePasswordProvider) cliEnv() []string {
	var env []string
	if op.cfg.ServiceAccountToken != "" {
		env = append(env, "OP_SERVICE_ACCOUNT_TOKEN="+op.cfg.ServiceAccountToken)
	}
	if op.cfg.ConnectHost != "" {
		env = append(env, "OP_CONNECT_HOST="+op.cfg.ConnectHost)
	}
	if op.cfg.ConnectToken != "" {
		env = append(env, "OP_CONNECT_TOKEN="+op.cfg.ConnectToken)
	}
	return env
}

// Authenticate verifies the CLI can reach an account with the
// configured credentials.
func (op *OnePasswordProvider) Authenticate(ctx context.Context) (*provider.AuthSession, error) {
	hasServiceAccount := op.cfg.ServiceAccountToken != ""
	hasConnect := op.cfg.ConnectHost != "" && op.cfg.ConnectToken != ""
	if !hasServiceAccount && !hasConnect {
		return nil, sberrors.ConfigError{
			Provider:   op.Name(),
			Field:      "OP_SERVICE_ACCOUNT_TOKEN",
			Message:    "no credentials configured",
			Suggestion: "Set OP_SERVICE_ACCOUNT_TOKEN, or OP_CONNECT_HOST with OP_CONNECT_TOKEN",
		}
	}
	if op.cfg.Vault == "" {
		return nil, sberrors.ConfigError{
			Provider:   op.Name(),
			Field:      "OP_VAULT",
			Message:    "vault name is required",
			Suggestion: "Set OP_VAULT to the 1Password vault holding the items",
		}
	}
	if len(op.cfg.Items) == 0 {
		return nil, sberrors.ConfigError{
			Provider:   op.Name(),
			Field:      "OP_ITEMS",
			Message:    "no items configured",
			Suggestion: "Set OP_ITEMS to a comma-separated list of item names",
		}
	}

	method := "service-account"
	if !hasServiceAccount {
		method = "connect"
	}

	stdout, stderr, err := op.executor.Execute(ctx, op.cliEnv(), "op", "whoami", "--format", "json")
	if err != nil {
		return nil, sberrors.AuthError{
			Provider:   op.Name(),
			Method:     method,
			Message:    strings.TrimSpace(string(stderr)),
			Suggestion: "Check the token's validity and the op CLI installation",
			Err:        err,
		}
	}

	var who struct {
		URL   string `json:"url"`
		Email string `json:"email"`
	}
	identity := ""
	if json.Unmarshal(stdout, &who) == nil {
		identity = who.Email
		if identity == "" {
			identity = who.URL
		}
	}
	return &provider.AuthSession{Method: method, Identity: identity}, nil
}

// ResolveNames returns the configured item names.
func (op *OnePasswordProvider) ResolveNames(ctx context.Context, session *provider.AuthSession) ([]string, error) {
	return append([]string(nil), op.cfg.Items...), nil
}

// opItem is the subset of `op item get --format json` output the
// adapter reads.
type opItem struct {
	Fields []struct {
		ID      string `json:"id"`
		Label   string `json:"label"`
		Purpose string `json:"purpose"`
		Type    string `json:"type"`
		Value   string `json:"value"`
	} `json:"fields"`
}

// Fetch retrieves one item and returns its password field, falling back
// to the first concealed field with a value.
func (op *OnePasswordProvider) Fetch(ctx context.Context, session *provider.AuthSession, name string) (string, error) {
	stdout, stderr, err := op.executor.Execute(ctx, op.cliEnv(),
		"op", "item", "get", name, "--vault", op.cfg.Vault, "--format", "json", "--reveal")
	if err != nil {
		return "", sberrors.FetchError{
			Provider: op.Name(),
			Name:     name,
			Message:  strings.TrimSpace(string(stderr)),
			Err:      err,
		}
	}

	var item opItem
	if err := json.Unmarshal(stdout, &item); err != nil {
		return "", sberrors.FormatError{
			Provider: op.Name(),
			Name:     name,
			Message:  fmt.Sprintf("cannot parse op output: %v", err),
		}
	}

	for _, f := range item.Fields {
		if f.Purpose == "PASSWORD" && f.Value != "" {
			return f.Value, nil
		}
	}
	for _, f := range item.Fields {
		if f.Type == "CONCEALED" && f.Value != "" {
			return f.Value, nil
		}
	}
	return "", sberrors.FormatError{
		Provider: op.Name(),
		Name:     name,
		Message:  "item has no password or concealed field with a value",
	}
}

// HealthCheck reports whether the op CLI is installed and runnable.
func (op *OnePasswordProvider) HealthCheck(ctx context.Context) bool {
	_, _, err := op.executor.Execute(ctx, nil, "op", "--version")
	return err == nil
}
