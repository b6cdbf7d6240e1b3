package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that clamd answers PING and print its version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.newClient()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := client.Ping(ctx); err != nil {
				return fmt.Errorf("ping %s: %w", client.Address(), err)
			}
			version, err := client.Version(ctx)
			if err != nil {
				return fmt.Errorf("version %s: %w", client.Address(), err)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "PONG from %s\n", client.Address())
			_, _ = fmt.Fprintln(out, version.Raw)
			return nil
		},
	}
}
