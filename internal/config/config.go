// Package config builds the loader's settings from the process
// environment. Settings are rebuilt from scratch on every invocation;
// nothing is cached across container restarts.
//
// An optional YAML overlay (SECRET_LOADER_CONFIG_FILE) can supply the
// same settings for images that prefer a mounted file over a long env
// block. Environment variables always win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	sberrors "github.com/systmms/secretboot/internal/errors"
	"github.com/systmms/secretboot/internal/logging"
)

// DefaultPriority is the provider order used when SECRET_LOADER_PRIORITY
// is unset.
var DefaultPriority = []string{"docker", "1password", "vault", "aws", "azure", "gcp"}

const (
	defaultTimeoutMS     = 30000
	defaultRetryAttempts = 3
	defaultFileDir       = "/run/secretboot"
	defaultDockerPath    = "/run/secrets"
)

// Environ is an immutable snapshot of the process environment. Tests
// pass literal maps; production code uses Snapshot.
type Environ map[string]string

// Snapshot captures the current process environment.
func Snapshot() Environ {
	env := make(Environ)
	for _, entry := range os.Environ() {
		if key, value, ok := strings.Cut(entry, "="); ok {
			env[key] = value
		}
	}
	return env
}

// Get returns the value for key, or empty.
func (e Environ) Get(key string) string { return e[key] }

// Lookup returns the value and whether the key is present.
func (e Environ) Lookup(key string) (string, bool) {
	v, ok := e[key]
	return v, ok
}

// Toggle is the tri-state enablement of a provider: off by default,
// explicitly on, or (Docker only) auto-detected from the mount.
type Toggle int

const (
	ToggleOff Toggle = iota
	ToggleOn
	ToggleAuto
)

func parseToggle(raw string) (Toggle, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "false", "0", "no", "off":
		return ToggleOff, nil
	case "true", "1", "yes", "on":
		return ToggleOn, nil
	case "auto":
		return ToggleAuto, nil
	default:
		return ToggleOff, fmt.Errorf("unrecognized toggle value %q", raw)
	}
}

// Settings is the full loader configuration for one boot pass.
type Settings struct {
	Enabled       bool
	Priority      []string
	FailOnError   bool
	TimeoutMS     int
	RetryAttempts int
	FileDir       string

	Docker      DockerSettings
	Vault       VaultSettings
	AWS         AWSSettings
	Azure       AzureSettings
	GCP         GCPSettings
	OnePassword OnePasswordSettings

	Logger *logging.Logger
}

// DockerSettings configures the Docker secrets adapter.
type DockerSettings struct {
	Enable    Toggle
	Path      string
	Prefix    string
	Names     []string
	Uppercase bool
}

// VaultSettings configures the HashiCorp Vault adapter.
type VaultSettings struct {
	Enable       Toggle
	Address      string
	AuthMethod   string
	Token        string
	RoleID       string
	SecretID     string
	K8sRole      string
	K8sTokenPath string
	K8sAuthMount string
	SecretPath   string
	Namespace    string
	Prefix       string
}

// AWSSettings configures the AWS Secrets Manager adapter.
type AWSSettings struct {
	Enable       Toggle
	SecretName   string
	Region       string
	VersionID    string
	VersionStage string
	Prefix       string
	VarName      string
	// Endpoint and static credentials exist for LocalStack-style
	// testing only; production uses the default credential chain.
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// AzureSettings configures the Azure Key Vault adapter.
type AzureSettings struct {
	Enable       Toggle
	VaultName    string
	VaultURL     string
	Names        []string
	FetchAll     bool
	Prefix       string
	TenantID     string
	ClientID     string
	ClientSecret string
}

// GCPSettings configures the GCP Secret Manager adapter.
type GCPSettings struct {
	Enable          Toggle
	ProjectID       string
	Names           []string
	FetchAll        bool
	Version         string
	Prefix          string
	CredentialsFile string
}

// OnePasswordSettings configures the explicit 1Password adapter. The
// OP_*_REF convention pass is independent of these settings.
type OnePasswordSettings struct {
	Enable              Toggle
	ServiceAccountToken string
	ConnectHost         string
	ConnectToken        string
	Vault               string
	Items               []string
	Prefix              string
}

// Load builds Settings from the environment snapshot, applying the
// optional YAML overlay underneath it.
func Load(env Environ, logger *logging.Logger) (*Settings, error) {
	s := &Settings{
		Enabled:       true,
		Priority:      append([]string(nil), DefaultPriority...),
		TimeoutMS:     defaultTimeoutMS,
		RetryAttempts: defaultRetryAttempts,
		FileDir:       defaultFileDir,
		Docker: DockerSettings{
			Enable:    ToggleAuto,
			Path:      defaultDockerPath,
			Uppercase: true,
		},
		Vault: VaultSettings{
			AuthMethod:   "token",
			K8sTokenPath: "/var/run/secrets/kubernetes.io/serviceaccount/token",
			K8sAuthMount: "kubernetes",
		},
		GCP: GCPSettings{
			Version: "latest",
		},
		Logger: logger,
	}

	if path := env.Get("SECRET_LOADER_CONFIG_FILE"); path != "" {
		if err := applyFile(s, path); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(s, env); err != nil {
		return nil, err
	}

	for _, name := range s.Priority {
		switch name {
		case "docker", "1password", "vault", "aws", "azure", "gcp":
		default:
			return nil, sberrors.ConfigError{
				Field:      "SECRET_LOADER_PRIORITY",
				Message:    fmt.Sprintf("unknown provider %q in priority list", name),
				Suggestion: "Valid providers: docker, 1password, vault, aws, azure, gcp",
			}
		}
	}

	return s, nil
}

// applyEnv copies environment values over the current settings.
func applyEnv(s *Settings, env Environ) error {
	var err error

	if raw, ok := env.Lookup("SECRET_LOADER_ENABLED"); ok {
		s.Enabled = parseBool(raw, true)
	}
	if raw, ok := env.Lookup("SECRET_LOADER_PRIORITY"); ok {
		s.Priority = splitList(raw)
	}
	if raw, ok := env.Lookup("SECRET_LOADER_FAIL_ON_ERROR"); ok {
		s.FailOnError = parseBool(raw, false)
	}
	if raw, ok := env.Lookup("SECRET_LOADER_TIMEOUT_MS"); ok {
		if s.TimeoutMS, err = parsePositiveInt("SECRET_LOADER_TIMEOUT_MS", raw); err != nil {
			return err
		}
	}
	if raw, ok := env.Lookup("SECRET_LOADER_RETRY_ATTEMPTS"); ok {
		if s.RetryAttempts, err = parsePositiveInt("SECRET_LOADER_RETRY_ATTEMPTS", raw); err != nil {
			return err
		}
	}
	if raw, ok := env.Lookup("SECRET_LOADER_FILE_DIR"); ok && raw != "" {
		s.FileDir = raw
	}

	// Docker
	if raw, ok := env.Lookup("DOCKER_SECRETS_ENABLED"); ok {
		if s.Docker.Enable, err = toggleOrErr("docker", "DOCKER_SECRETS_ENABLED", raw); err != nil {
			return err
		}
	}
	setString(env, "DOCKER_SECRETS_PATH", &s.Docker.Path)
	setString(env, "DOCKER_SECRETS_PREFIX", &s.Docker.Prefix)
	if raw, ok := env.Lookup("DOCKER_SECRETS_LIST"); ok {
		s.Docker.Names = splitList(raw)
	}
	if raw, ok := env.Lookup("DOCKER_SECRETS_UPPERCASE"); ok {
		s.Docker.Uppercase = parseBool(raw, true)
	}

	// Vault
	if raw, ok := env.Lookup("VAULT_ENABLED"); ok {
		if s.Vault.Enable, err = toggleOrErr("vault", "VAULT_ENABLED", raw); err != nil {
			return err
		}
	}
	setString(env, "VAULT_ADDR", &s.Vault.Address)
	setString(env, "VAULT_AUTH_METHOD", &s.Vault.AuthMethod)
	setString(env, "VAULT_TOKEN", &s.Vault.Token)
	setString(env, "VAULT_ROLE_ID", &s.Vault.RoleID)
	setString(env, "VAULT_SECRET_ID", &s.Vault.SecretID)
	setString(env, "VAULT_K8S_ROLE", &s.Vault.K8sRole)
	setString(env, "VAULT_K8S_TOKEN_PATH", &s.Vault.K8sTokenPath)
	setString(env, "VAULT_K8S_AUTH_MOUNT", &s.Vault.K8sAuthMount)
	setString(env, "VAULT_SECRET_PATH", &s.Vault.SecretPath)
	setString(env, "VAULT_NAMESPACE", &s.Vault.Namespace)
	setString(env, "VAULT_ENV_PREFIX", &s.Vault.Prefix)

	// AWS
	if raw, ok := env.Lookup("AWS_SECRETS_ENABLED"); ok {
		if s.AWS.Enable, err = toggleOrErr("aws", "AWS_SECRETS_ENABLED", raw); err != nil {
			return err
		}
	}
	setString(env, "AWS_SECRET_NAME", &s.AWS.SecretName)
	setString(env, "AWS_SECRETS_REGION", &s.AWS.Region)
	if s.AWS.Region == "" {
		setString(env, "AWS_REGION", &s.AWS.Region)
	}
	setString(env, "AWS_SECRET_VERSION_ID", &s.AWS.VersionID)
	setString(env, "AWS_SECRET_VERSION_STAGE", &s.AWS.VersionStage)
	setString(env, "AWS_SECRETS_PREFIX", &s.AWS.Prefix)
	setString(env, "AWS_SECRET_VAR_NAME", &s.AWS.VarName)
	setString(env, "AWS_SECRETS_ENDPOINT", &s.AWS.Endpoint)
	setString(env, "AWS_ACCESS_KEY_ID", &s.AWS.AccessKeyID)
	setString(env, "AWS_SECRET_ACCESS_KEY", &s.AWS.SecretAccessKey)

	// Azure
	if raw, ok := env.Lookup("AZURE_KEYVAULT_ENABLED"); ok {
		if s.Azure.Enable, err = toggleOrErr("azure", "AZURE_KEYVAULT_ENABLED", raw); err != nil {
			return err
		}
	}
	setString(env, "AZURE_KEYVAULT_NAME", &s.Azure.VaultName)
	setString(env, "AZURE_KEYVAULT_URL", &s.Azure.VaultURL)
	if raw, ok := env.Lookup("AZURE_KEYVAULT_SECRETS"); ok {
		s.Azure.Names = splitList(raw)
	}
	if raw, ok := env.Lookup("AZURE_KEYVAULT_FETCH_ALL"); ok {
		s.Azure.FetchAll = parseBool(raw, false)
	}
	setString(env, "AZURE_KEYVAULT_PREFIX", &s.Azure.Prefix)
	setString(env, "AZURE_TENANT_ID", &s.Azure.TenantID)
	setString(env, "AZURE_CLIENT_ID", &s.Azure.ClientID)
	setString(env, "AZURE_CLIENT_SECRET", &s.Azure.ClientSecret)

	// GCP
	if raw, ok := env.Lookup("GCP_SECRETS_ENABLED"); ok {
		if s.GCP.Enable, err = toggleOrErr("gcp", "GCP_SECRETS_ENABLED", raw); err != nil {
			return err
		}
	}
	setString(env, "GCP_PROJECT_ID", &s.GCP.ProjectID)
	if s.GCP.ProjectID == "" {
		setString(env, "GOOGLE_CLOUD_PROJECT", &s.GCP.ProjectID)
	}
	if raw, ok := env.Lookup("GCP_SECRET_NAMES"); ok {
		s.GCP.Names = splitList(raw)
	}
	if raw, ok := env.Lookup("GCP_SECRET_FETCH_ALL"); ok {
		s.GCP.FetchAll = parseBool(raw, false)
	}
	setString(env, "GCP_SECRET_VERSION", &s.GCP.Version)
	setString(env, "GCP_SECRETS_PREFIX", &s.GCP.Prefix)
	setString(env, "GCP_SA_KEY_PATH", &s.GCP.CredentialsFile)
	if s.GCP.CredentialsFile == "" {
		setString(env, "GOOGLE_APPLICATION_CREDENTIALS", &s.GCP.CredentialsFile)
	}

	// 1Password (explicit provider)
	if raw, ok := env.Lookup("OP_SECRETS_ENABLED"); ok {
		if s.OnePassword.Enable, err = toggleOrErr("1password", "OP_SECRETS_ENABLED", raw); err != nil {
			return err
		}
	}
	setString(env, "OP_SERVICE_ACCOUNT_TOKEN", &s.OnePassword.ServiceAccountToken)
	setString(env, "OP_CONNECT_HOST", &s.OnePassword.ConnectHost)
	setString(env, "OP_CONNECT_TOKEN", &s.OnePassword.ConnectToken)
	setString(env, "OP_VAULT", &s.OnePassword.Vault)
	if raw, ok := env.Lookup("OP_ITEMS"); ok {
		s.OnePassword.Items = splitList(raw)
	}
	setString(env, "OP_SECRETS_PREFIX", &s.OnePassword.Prefix)

	return nil
}

// fileSettings mirrors Settings for the YAML overlay. Only fields that
// make sense in a mounted file are representable; credentials still
// belong in the environment or their provider's own mount.
type fileSettings struct {
	Loader struct {
		Enabled       *bool    `yaml:"enabled"`
		Priority      []string `yaml:"priority"`
		FailOnError   *bool    `yaml:"fail_on_error"`
		TimeoutMS     *int     `yaml:"timeout_ms"`
		RetryAttempts *int     `yaml:"retry_attempts"`
		FileDir       string   `yaml:"file_dir"`
	} `yaml:"loader"`
	Docker struct {
		Enabled   string   `yaml:"enabled"`
		Path      string   `yaml:"path"`
		Prefix    string   `yaml:"prefix"`
		Secrets   []string `yaml:"secrets"`
		Uppercase *bool    `yaml:"uppercase"`
	} `yaml:"docker"`
	Vault struct {
		Enabled    string `yaml:"enabled"`
		Address    string `yaml:"address"`
		AuthMethod string `yaml:"auth_method"`
		SecretPath string `yaml:"secret_path"`
		Namespace  string `yaml:"namespace"`
		Prefix     string `yaml:"prefix"`
	} `yaml:"vault"`
	AWS struct {
		Enabled    string `yaml:"enabled"`
		SecretName string `yaml:"secret_name"`
		Region     string `yaml:"region"`
		Prefix     string `yaml:"prefix"`
		VarName    string `yaml:"var_name"`
	} `yaml:"aws"`
	Azure struct {
		Enabled  string   `yaml:"enabled"`
		VaultURL string   `yaml:"vault_url"`
		Secrets  []string `yaml:"secrets"`
		FetchAll *bool    `yaml:"fetch_all"`
		Prefix   string   `yaml:"prefix"`
	} `yaml:"azure"`
	GCP struct {
		Enabled   string   `yaml:"enabled"`
		ProjectID string   `yaml:"project_id"`
		Secrets   []string `yaml:"secrets"`
		FetchAll  *bool    `yaml:"fetch_all"`
		Version   string   `yaml:"version"`
		Prefix    string   `yaml:"prefix"`
	} `yaml:"gcp"`
	OnePassword struct {
		Enabled string   `yaml:"enabled"`
		Vault   string   `yaml:"vault"`
		Items   []string `yaml:"items"`
		Prefix  string   `yaml:"prefix"`
	} `yaml:"onepassword"`
}

func applyFile(s *Settings, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return sberrors.ConfigError{
			Field:      "SECRET_LOADER_CONFIG_FILE",
			Message:    fmt.Sprintf("cannot read config file: %v", err),
			Suggestion: "Check that the file exists and is readable inside the container",
		}
	}

	var f fileSettings
	if err := yaml.Unmarshal(data, &f); err != nil {
		return sberrors.ConfigError{
			Field:      "SECRET_LOADER_CONFIG_FILE",
			Message:    fmt.Sprintf("invalid YAML: %v", err),
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if f.Loader.Enabled != nil {
		s.Enabled = *f.Loader.Enabled
	}
	if len(f.Loader.Priority) > 0 {
		s.Priority = f.Loader.Priority
	}
	if f.Loader.FailOnError != nil {
		s.FailOnError = *f.Loader.FailOnError
	}
	if f.Loader.TimeoutMS != nil {
		s.TimeoutMS = *f.Loader.TimeoutMS
	}
	if f.Loader.RetryAttempts != nil {
		s.RetryAttempts = *f.Loader.RetryAttempts
	}
	if f.Loader.FileDir != "" {
		s.FileDir = f.Loader.FileDir
	}

	var terr error
	if f.Docker.Enabled != "" {
		if s.Docker.Enable, terr = toggleOrErr("docker", "docker.enabled", f.Docker.Enabled); terr != nil {
			return terr
		}
	}
	if f.Docker.Path != "" {
		s.Docker.Path = f.Docker.Path
	}
	if f.Docker.Prefix != "" {
		s.Docker.Prefix = f.Docker.Prefix
	}
	if len(f.Docker.Secrets) > 0 {
		s.Docker.Names = f.Docker.Secrets
	}
	if f.Docker.Uppercase != nil {
		s.Docker.Uppercase = *f.Docker.Uppercase
	}

	if f.Vault.Enabled != "" {
		if s.Vault.Enable, terr = toggleOrErr("vault", "vault.enabled", f.Vault.Enabled); terr != nil {
			return terr
		}
	}
	if f.Vault.Address != "" {
		s.Vault.Address = f.Vault.Address
	}
	if f.Vault.AuthMethod != "" {
		s.Vault.AuthMethod = f.Vault.AuthMethod
	}
	if f.Vault.SecretPath != "" {
		s.Vault.SecretPath = f.Vault.SecretPath
	}
	if f.Vault.Namespace != "" {
		s.Vault.Namespace = f.Vault.Namespace
	}
	if f.Vault.Prefix != "" {
		s.Vault.Prefix = f.Vault.Prefix
	}

	if f.AWS.Enabled != "" {
		if s.AWS.Enable, terr = toggleOrErr("aws", "aws.enabled", f.AWS.Enabled); terr != nil {
			return terr
		}
	}
	if f.AWS.SecretName != "" {
		s.AWS.SecretName = f.AWS.SecretName
	}
	if f.AWS.Region != "" {
		s.AWS.Region = f.AWS.Region
	}
	if f.AWS.Prefix != "" {
		s.AWS.Prefix = f.AWS.Prefix
	}
	if f.AWS.VarName != "" {
		s.AWS.VarName = f.AWS.VarName
	}

	if f.Azure.Enabled != "" {
		if s.Azure.Enable, terr = toggleOrErr("azure", "azure.enabled", f.Azure.Enabled); terr != nil {
			return terr
		}
	}
	if f.Azure.VaultURL != "" {
		s.Azure.VaultURL = f.Azure.VaultURL
	}
	if len(f.Azure.Secrets) > 0 {
		s.Azure.Names = f.Azure.Secrets
	}
	if f.Azure.FetchAll != nil {
		s.Azure.FetchAll = *f.Azure.FetchAll
	}
	if f.Azure.Prefix != "" {
		s.Azure.Prefix = f.Azure.Prefix
	}

	if f.GCP.Enabled != "" {
		if s.GCP.Enable, terr = toggleOrErr("gcp", "gcp.enabled", f.GCP.Enabled); terr != nil {
			return terr
		}
	}
	if f.GCP.ProjectID != "" {
		s.GCP.ProjectID = f.GCP.ProjectID
	}
	if len(f.GCP.Secrets) > 0 {
		s.GCP.Names = f.GCP.Secrets
	}
	if f.GCP.FetchAll != nil {
		s.GCP.FetchAll = *f.GCP.FetchAll
	}
	if f.GCP.Version != "" {
		s.GCP.Version = f.GCP.Version
	}
	if f.GCP.Prefix != "" {
		s.GCP.Prefix = f.GCP.Prefix
	}

	if f.OnePassword.Enabled != "" {
		if s.OnePassword.Enable, terr = toggleOrErr("1password", "onepassword.enabled", f.OnePassword.Enabled); terr != nil {
			return terr
		}
	}
	if f.OnePassword.Vault != "" {
		s.OnePassword.Vault = f.OnePassword.Vault
	}
	if len(f.OnePassword.Items) > 0 {
		s.OnePassword.Items = f.OnePassword.Items
	}
	if f.OnePassword.Prefix != "" {
		s.OnePassword.Prefix = f.OnePassword.Prefix
	}

	return nil
}

func toggleOrErr(provider, field, raw string) (Toggle, error) {
	t, err := parseToggle(raw)
	if err != nil {
		return ToggleOff, sberrors.ConfigError{
			Provider:   provider,
			Field:      field,
			Message:    err.Error(),
			Suggestion: "Use true, false, or auto",
		}
	}
	return t, nil
}

func setString(env Environ, key string, dst *string) {
	if raw, ok := env.Lookup(key); ok && raw != "" {
		*dst = raw
	}
}

func parseBool(raw string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return fallback
	}
}

func parsePositiveInt(field, raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0, sberrors.ConfigError{
			Field:      field,
			Message:    fmt.Sprintf("expected a positive integer, got %q", raw),
			Suggestion: "Set a positive number of milliseconds/attempts",
		}
	}
	return n, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
