package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/njoerd114/availsync/internal/channelmanager"
	"github.com/njoerd114/availsync/internal/setup"
)

// --- setup -------------------------------------------------------------------

func newSetupCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive first-run wizard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			connect := func(apiURL, token string) (setup.Connector, error) {
				client, err := channelmanager.NewClient(apiURL, token, a.logger)
				if err != nil {
					return nil, err
				}
				return client, nil
			}
			wiz := setup.NewWizard(cmd.InOrStdin(), cmd.OutOrStdout(), a.cfgPath, connect, a.logger)
			return wiz.Run(ctx)
		},
	}
}

// --- uninstall ---------------------------------------------------------------

func newUninstallCommand(a *app) *cobra.Command {
	var purge bool
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Stop the service and remove installed files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("resolving home directory: %w", err)
			}
			runUninstall(cmd.OutOrStdout(), homeDir, purge)
			return nil
		},
	}
	cmd.Flags().BoolVar(&purge, "purge", false, "also remove config and cell cache")
	return cmd
}

// runUninstall reports each step and carries on past failures so a partial
// install is still cleaned up.
func runUninstall(w io.Writer, homeDir string, purge bool) {
	fmt.Fprintln(w, "Uninstalling availsync...")

	if err := setup.DisableUnit(homeDir); err != nil {
		fmt.Fprintf(w, "  ⚠ %v\n", err)
	} else {
		fmt.Fprintln(w, "  ✓ Service stopped")
	}

	if err := setup.RemoveUnit(homeDir); err != nil {
		fmt.Fprintf(w, "  ⚠ %v\n", err)
	} else {
		fmt.Fprintln(w, "  ✓ Unit removed")
	}

	if purge {
		fmt.Fprintln(w, "  Purging config and cell cache...")
		if err := setup.PurgeUserData(homeDir); err != nil {
			fmt.Fprintf(w, "  ⚠ %v\n", err)
		} else {
			fmt.Fprintln(w, "  ✓ User data purged")
		}
	} else {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "  Config and cell cache preserved.")
		fmt.Fprintln(w, "  Run with --purge to also remove them:")
		fmt.Fprintln(w, "    availsync uninstall --purge")
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "✓ availsync uninstalled.")
}
