package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one pass of the expired checkout sweeper and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.Close()

		result, err := rt.app.Service.Reconcile.ExpireStale(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		return printJSON(result)
	},
}
