// Package providers contains the backend adapters the loader walks in
// priority order. Each adapter implements provider.SecretProvider and
// reports failures through the typed errors in internal/errors.
package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/systmms/secretboot/internal/config"
	sberrors "github.com/systmms/secretboot/internal/errors"
	"github.com/systmms/secretboot/internal/logging"
	"github.com/systmms/secretboot/pkg/provider"
)

// secretFileName rejects anything that could escape the secrets
// directory. Names are plain file names, never paths.
var secretFileName = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// DockerProvider reads secrets from the files Docker (or Kubernetes)
// mounts under the secrets directory. There is no authentication step;
// the mount itself is the credential boundary.
type DockerProvider struct {
	cfg    config.DockerSettings
	logger *logging.Logger
}

// NewDockerProvider creates the Docker secrets adapter.
func NewDockerProvider(cfg config.DockerSettings, logger *logging.Logger) *DockerProvider {
	return &DockerProvider{cfg: cfg, logger: logger}
}

// Name returns "docker".
func (d *DockerProvider) Name() string { return "docker" }

// EnvPrefix returns the configured variable-name prefix.
func (d *DockerProvider) EnvPrefix() string { return d.cfg.Prefix }

// Enabled reports whether the adapter should run. In auto mode the
// adapter participates only when the secrets directory exists, is
// readable, and contains at least one entry.
func (d *DockerProvider) Enabled() bool {
	switch d.cfg.Enable {
	case config.ToggleOn:
		return true
	case config.ToggleAuto:
		entries, err := os.ReadDir(d.cfg.Path)
		return err == nil && len(entries) > 0
	default:
		return false
	}
}

// Authenticate is a no-op for file-mounted secrets.
func (d *DockerProvider) Authenticate(ctx context.Context) (*provider.AuthSession, error) {
	return &provider.AuthSession{Method: "mount", Identity: d.cfg.Path}, nil
}

// ResolveNames lists the secrets directory, filters against the
// allowlist if one is configured, and rejects names that could not be
// plain file names.
func (d *DockerProvider) ResolveNames(ctx context.Context, session *provider.AuthSession) ([]string, error) {
	entries, err := os.ReadDir(d.cfg.Path)
	if err != nil {
		if os.IsNotExist(err) && d.cfg.Enable == config.ToggleOn {
			return nil, sberrors.ConfigError{
				Provider:   d.Name(),
				Field:      "DOCKER_SECRETS_PATH",
				Message:    fmt.Sprintf("secrets directory %s does not exist", d.cfg.Path),
				Suggestion: "Mount secrets into the container or set DOCKER_SECRETS_PATH",
			}
		}
		return nil, sberrors.FetchError{
			Provider: d.Name(),
			Message:  fmt.Sprintf("cannot read secrets directory %s", d.cfg.Path),
			Err:      err,
		}
	}

	allow := map[string]bool{}
	for _, name := range d.cfg.Names {
		allow[name] = true
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !secretFileName.MatchString(name) {
			d.logger.Warn("docker: skipping secret with invalid name %q", name)
			continue
		}
		if len(allow) > 0 && !allow[name] {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// Fetch reads one secret file and returns its trimmed contents.
func (d *DockerProvider) Fetch(ctx context.Context, session *provider.AuthSession, name string) (string, error) {
	if !secretFileName.MatchString(name) {
		return "", sberrors.FetchError{
			Provider: d.Name(),
			Name:     name,
			Message:  "secret name contains characters outside [a-zA-Z0-9._-]",
		}
	}
	data, err := os.ReadFile(filepath.Join(d.cfg.Path, name))
	if err != nil {
		return "", sberrors.FetchError{
			Provider: d.Name(),
			Name:     name,
			Message:  "cannot read secret file",
			Err:      err,
		}
	}
	return strings.TrimSpace(string(data)), nil
}

// HealthCheck reports whether the secrets directory is readable.
func (d *DockerProvider) HealthCheck(ctx context.Context) bool {
	_, err := os.ReadDir(d.cfg.Path)
	return err == nil
}

// PreserveCase reports whether the uppercase toggle is off, in which
// case exported names keep the secret file's original casing.
func (d *DockerProvider) PreserveCase() bool { return !d.cfg.Uppercase }
