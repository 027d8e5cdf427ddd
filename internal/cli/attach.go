package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gluk-w/termhub/internal/console"
	"github.com/gluk-w/termhub/internal/inventory"
	"github.com/gluk-w/termhub/internal/termsession"
	"github.com/spf13/cobra"
)

func newAttachCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "attach <target-id>",
		Short: "Attach the local terminal to a target",
		Long: `Open a terminal session directly against the terminal backend and bridge
it to the local terminal. Press Ctrl+] then 'q' to detach.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return attach(ctx, cmd, cfg, args[0])
		},
	}
}

func attach(ctx context.Context, cmd *cobra.Command, cfg *Config, targetID string) error {
	target, err := inventory.Find(ctx, inventory.NewRESTSource(cfg.Backend.URL), targetID)
	if err != nil {
		return fmt.Errorf("failed to look up target: %w", err)
	}

	registry := termsession.NewRegistry(
		&termsession.WSDialer{Backend: cfg.Backend.URL},
		termsession.RegistryConfig{HandshakeTimeout: cfg.Backend.HandshakeTimeout},
		nil,
	)
	defer registry.CloseAll()

	s, err := registry.Open(target)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}

	errOut := cmd.ErrOrStderr()
	fmt.Fprintf(errOut, "Attaching to %s (%s). Press Ctrl+] then 'q' to exit.\r\n", target.Name, target.ID)

	bridge := &console.Bridge{Session: s, In: cmd.InOrStdin(), Out: cmd.OutOrStdout()}
	if f, ok := bridge.In.(*os.File); ok {
		restore, err := console.MakeRaw(f)
		if err != nil {
			return err
		}
		defer restore()
	}

	err = bridge.Run(ctx)
	switch {
	case errors.Is(err, console.ErrDetached):
		fmt.Fprintf(errOut, "\r\nDetached from %s.\r\n", target.Name)
		return nil
	case errors.Is(err, context.Canceled):
		return nil
	case err != nil:
		return err
	}
	if s.State() == termsession.StateError {
		return fmt.Errorf("session ended with an error")
	}
	fmt.Fprintf(errOut, "\r\nSession %s.\r\n", s.State())
	return nil
}
