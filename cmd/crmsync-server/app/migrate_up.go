package app

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stacklok/crmsync/database"
)

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending database migrations",
	Long: `Apply all pending database migrations to bring the schema up to date.
This command will read the database connection parameters from the config file
and apply all migrations that haven't been run yet.`,
	RunE: runMigrateUp,
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	dbCfg, connString, err := migrationTarget(cmd)
	if err != nil {
		return err
	}

	user := dbCfg.GetMigrationUser()
	ok, err := confirm(cmd, fmt.Sprintf("About to apply migrations to %s@%s:%d/%s. Continue?",
		user, dbCfg.Host, dbCfg.Port, dbCfg.Database))
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("Migration cancelled by user")
		return nil
	}

	slog.Info("Applying database migrations", "user", user)
	if err := database.MigrateUp(connString); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logMigrationVersion(connString)
	return nil
}
