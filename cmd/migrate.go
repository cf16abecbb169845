package cmd

import (
	"fmt"

	"court-booking/pkg/database"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := database.Migrate(cmd.Context(), rt.db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		rt.logger.Info("Schema applied")
		return nil
	},
}
