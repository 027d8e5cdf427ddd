package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newTargetsCmd(cfg *Config) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "targets",
		Short: "List terminal targets known to the hub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := newHubClient(cfg.Hub.URL).listTargets(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list targets: %w", err)
			}

			out := cmd.OutOrStdout()
			if output == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATUS\tIMAGE\tUPTIME")
			for _, t := range list.Targets {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Status, t.Image, t.Uptime)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d target(s) from %s\n", list.Total, list.Backend)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format (table|json)")
	return cmd
}
