package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newSessionsCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List and manage sessions on the hub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := newHubClient(cfg.Hub.URL).listSessions(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTARGET\tSTATE\tLINES\tAGE")
			for _, s := range sessions {
				age := time.Since(s.CreatedAt).Truncate(time.Second)
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.TargetName, s.State, s.LineCount, age)
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "open <target-id>",
			Short: "Open a session on the hub",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := newHubClient(cfg.Hub.URL).openSession(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to open session: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), s.ID)
				return nil
			},
		},
		&cobra.Command{
			Use:   "send <session-id> <text>",
			Short: "Send one line of input to a hub session",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				sent, err := newHubClient(cfg.Hub.URL).sendInput(cmd.Context(), args[0], args[1]+"\n")
				if err != nil {
					return fmt.Errorf("failed to send input: %w", err)
				}
				if !sent {
					return fmt.Errorf("session %s is not connected", args[0])
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "logs <session-id>",
			Short: "Print a hub session's output",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := newHubClient(cfg.Hub.URL).getSession(cmd.Context(), args[0], 1)
				if err != nil {
					return fmt.Errorf("failed to get session: %w", err)
				}
				for _, line := range s.Lines {
					fmt.Fprintln(cmd.OutOrStdout(), line.Render())
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "close <session-id>",
			Short: "Close a hub session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := newHubClient(cfg.Hub.URL).closeSession(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to close session: %w", err)
				}
				return nil
			},
		},
	)
	return cmd
}
