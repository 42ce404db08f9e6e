package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"factcheck/api/internal/store"
)

var dryRun bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			pending, err := store.PendingMigrations(ctx, rt.db, migrationsDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(pending) == 0 {
				fmt.Fprintln(out, "schema is up to date")
				return nil
			}
			for _, version := range pending {
				fmt.Fprintf(out, "pending: %s\n", version)
			}
			if dryRun {
				return nil
			}
			if err := store.ApplyMigrations(ctx, rt.db, migrationsDir); err != nil {
				return err
			}
			fmt.Fprintf(out, "applied %d migration(s)\n", len(pending))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
}
