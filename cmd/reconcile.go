package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"court-booking/internal/dto/response"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [source-id]",
	Short: "Charge a chargeable source and converge its reservation",
	Long: `Run one reconciliation pass for a checkout source.

Safe to repeat: a payment already charged is only repaired, never charged again.

Examples:
  court-booking reconcile src_WcMUq9BjvVw1YdA2HNbYf3mY`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcile(func(rt *runtime) (*response.ReconcileResponse, error) {
			return rt.app.Service.Reconcile.Reconcile(cmd.Context(), args[0])
		})
	},
}

var reconcileReservationCmd = &cobra.Command{
	Use:   "reconcile-reservation [reservation-id]",
	Short: "Reconcile the latest payment of a reservation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReconcile(func(rt *runtime) (*response.ReconcileResponse, error) {
			return rt.app.Service.Reconcile.ReconcileByReservation(cmd.Context(), args[0])
		})
	},
}

func runReconcile(run func(rt *runtime) (*response.ReconcileResponse, error)) error {
	rt, err := bootstrap()
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := run(rt)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	return printJSON(result)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
