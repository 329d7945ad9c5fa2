package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/secretboot/internal/envsink"
	"github.com/systmms/secretboot/internal/loader"
	"github.com/systmms/secretboot/internal/opref"
	"github.com/systmms/secretboot/internal/providers"
)

// NewLoadCommand creates the load command: the startup integration
// point, invoked once per container boot before workload processes
// start.
func NewLoadCommand(opts *Options) *cobra.Command {
	var printNames bool

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load secrets from all enabled providers into the environment",
		Long: `Run one secret-loading pass: walk the enabled providers in priority
order, export every resolved secret as an environment variable, then
resolve OP_<NAME>_REF / OP_<NAME>_FILE_REF convention variables.

Safe to re-run on container restart; the same variable set is
re-exported. Exit code 0 means the loader is disabled or loading
succeeded (fully, or partially under the fail-open default); a non-zero
exit means a fatal failure with SECRET_LOADER_FAIL_ON_ERROR set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Settings()
			if err != nil {
				return err
			}

			sink := envsink.NewProcessSink()
			files := envsink.NewFileWriter(cfg.FileDir)
			resolver := opref.NewResolver(nil, sink, files, cfg.Logger)
			adapters := providers.Build(cfg, nil)

			report, err := loader.New(cfg, adapters, sink, resolver).Run(cmd.Context())
			defer report.Destroy()

			if printNames && len(report.Records) > 0 {
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "VARIABLE\tPROVIDER\tAUTH\n")
				for _, rec := range report.Records {
					fmt.Fprintf(w, "%s\t%s\t%s\n", rec.EnvName, rec.Provider, rec.AuthMethod)
				}
				w.Flush()
			}

			return err
		},
	}

	cmd.Flags().BoolVar(&printNames, "print", false, "Print the exported variable names (never values)")

	return cmd
}
