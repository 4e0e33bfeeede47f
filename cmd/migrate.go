package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/database/sqlite"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply pending schema migrations to the PostgreSQL database at DATABASE_URL,
or to the SQLite database at SQLITE_PATH. Use --status to list pending
PostgreSQL migrations without applying them.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().Bool("status", false, "Only list pending migrations (PostgreSQL)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	switch {
	case cfg.Database.URL != "":
		pool, err := postgres.NewPool(ctx, &cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		if mustGetBool(cmd, "status") {
			pending, err := pool.PendingMigrations(ctx)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println("No pending migrations")
			}
			for _, name := range pending {
				fmt.Printf("pending  %s\n", name)
			}
			return nil
		}

		applied, err := pool.Migrate(ctx)
		if err != nil {
			return err
		}
		if len(applied) == 0 {
			fmt.Println("Database schema is up to date")
		}
		for _, name := range applied {
			fmt.Printf("applied  %s\n", name)
		}
		return nil

	case cfg.SQLite.Path != "":
		// Open migrates as part of connecting.
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		fmt.Printf("SQLite schema at %s is up to date\n", cfg.SQLite.Path)
		return nil
	}
	return errors.New("DATABASE_URL or SQLITE_PATH environment variable is required")
}
