// Package commands implements the secretboot CLI commands.
package commands

import (
	"github.com/systmms/secretboot/internal/config"
	"github.com/systmms/secretboot/internal/logging"
)

// Options carries the state shared by all commands. Logger is set by
// the root command's PersistentPreRun after flag parsing; Env is an
// override hook for tests and defaults to the real process environment.
type Options struct {
	Logger *logging.Logger
	Env    config.Environ
}

// Settings builds the loader configuration from the environment.
func (o *Options) Settings() (*config.Settings, error) {
	env := o.Env
	if env == nil {
		env = config.Snapshot()
	}
	return config.Load(env, o.Logger)
}
