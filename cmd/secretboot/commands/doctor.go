package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/secretboot/internal/providers"
)

func NewDoctorCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check provider connectivity and configuration",
		Long: `Verify that each enabled provider can authenticate and reach its
backend with the current environment. Disabled providers are listed but
not contacted. Exits non-zero when any enabled provider fails its
check, so the command can gate a deployment pipeline.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Settings()
			if err != nil {
				return err
			}

			opts.Logger.Info("Checking secretboot configuration...")

			failed := 0
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "PROVIDER\tSTATE\tHEALTH\n")
			for _, p := range providers.Build(cfg, nil) {
				if !p.Enabled() {
					fmt.Fprintf(w, "%s\tdisabled\t-\n", p.Name())
					continue
				}

				ctx, cancel := context.WithTimeout(cmd.Context(),
					time.Duration(cfg.TimeoutMS)*time.Millisecond)
				health := "ok"
				if !p.HealthCheck(ctx) {
					health = "failed"
					failed++
				}
				cancel()
				fmt.Fprintf(w, "%s\tenabled\t%s\n", p.Name(), health)
			}
			w.Flush()

			if failed > 0 {
				return fmt.Errorf("%d provider check(s) failed", failed)
			}
			opts.Logger.Info("All enabled providers are healthy")
			return nil
		},
	}

	return cmd
}
