package providers

import (
	"github.com/systmms/secretboot/internal/config"
	sbexec "github.com/systmms/secretboot/pkg/exec"
	"github.com/systmms/secretboot/pkg/provider"
)

// Build constructs the adapter set in the configured priority order.
// Every known provider is constructed (construction is cheap and makes
// no network calls); the loader consults Enabled() before touching one.
// The executor is shared by CLI-backed adapters; pass nil for the real
// one.
func Build(cfg *config.Settings, executor sbexec.CommandExecutor) []provider.SecretProvider {
	factories := map[string]func() provider.SecretProvider{
		"docker": func() provider.SecretProvider {
			return NewDockerProvider(cfg.Docker, cfg.Logger)
		},
		"1password": func() provider.SecretProvider {
			return NewOnePasswordProvider(cfg.OnePassword, cfg.Logger, executor)
		},
		"vault": func() provider.SecretProvider {
			return NewVaultProvider(cfg.Vault, cfg.Logger)
		},
		"aws": func() provider.SecretProvider {
			return NewAWSProvider(cfg.AWS, cfg.Logger)
		},
		"azure": func() provider.SecretProvider {
			return NewAzureProvider(cfg.Azure, cfg.Logger)
		},
		"gcp": func() provider.SecretProvider {
			return NewGCPProvider(cfg.GCP, cfg.Logger)
		},
	}

	out := make([]provider.SecretProvider, 0, len(cfg.Priority))
	for _, name := range cfg.Priority {
		if factory, ok := factories[name]; ok {
			out = append(out, factory())
		}
	}
	return out
}
