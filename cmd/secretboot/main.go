package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systmms/secretboot/cmd/secretboot/commands"
	"github.com/systmms/secretboot/internal/logging"
	"github.com/systmms/secretboot/internal/secure"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	defer secure.Purge()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		secure.Purge()
		os.Exit(1)
	}
}

func run() error {
	var (
		noColor bool
		debug   bool
	)

	opts := &commands.Options{}

	rootCmd := &cobra.Command{
		Use:   "secretboot",
		Short: "Load container secrets from external stores at boot",
		Long: `secretboot runs at container start, pulls secrets from the configured
providers (Docker secrets, 1Password, Vault, AWS Secrets Manager, Azure
Key Vault, GCP Secret Manager), and exports them as environment
variables before the main workload runs.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.Logger = logging.New(debug, noColor)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewLoadCommand(opts),
		commands.NewProvidersCommand(opts),
		commands.NewDoctorCommand(opts),
		commands.NewCompletionCommand(opts),
	)

	return rootCmd.Execute()
}
