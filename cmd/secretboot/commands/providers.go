package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/systmms/secretboot/internal/providers"
)

func NewProvidersCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List providers and their configured state",
		Long: `Display the provider priority order and whether each provider would
participate in a load pass with the current environment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.Settings()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "POSITION\tPROVIDER\tSTATE\n")
			for i, p := range providers.Build(cfg, nil) {
				state := "disabled"
				if p.Enabled() {
					state = "enabled"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, p.Name(), state)
			}
			return w.Flush()
		},
	}

	return cmd
}
