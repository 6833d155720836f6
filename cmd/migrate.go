package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hearthside/domo/internal/config"
	"github.com/hearthside/domo/internal/store"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Run: func(cmd *cobra.Command, args []string) {
				withMigrateDB(func(db *sql.DB, driver string) error {
					if err := store.MigrateUp(db, driver); err != nil {
						return err
					}
					version, _, err := store.MigrationVersion(db, driver)
					if err != nil {
						return err
					}
					fmt.Printf("schema at version %d\n", version)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration (destroys all data)",
			Run: func(cmd *cobra.Command, args []string) {
				withMigrateDB(func(db *sql.DB, driver string) error {
					if err := store.MigrateDown(db, driver); err != nil {
						return err
					}
					fmt.Println("schema rolled back")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Run: func(cmd *cobra.Command, args []string) {
				withMigrateDB(func(db *sql.DB, driver string) error {
					version, dirty, err := store.MigrationVersion(db, driver)
					if err != nil {
						return err
					}
					state := "clean"
					if dirty {
						state = "dirty"
					}
					fmt.Printf("version %d (%s)\n", version, state)
					return nil
				})
			},
		},
	)
	return cmd
}

func withMigrateDB(fn func(db *sql.DB, driver string) error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	if cfg.Storage.Driver == "json" {
		fmt.Fprintln(os.Stderr, "migrate: storage driver is json; nothing to migrate")
		os.Exit(1)
	}
	db, driver, err := store.OpenRaw(context.Background(), store.OpenOptions{
		Driver:      cfg.Storage.Driver,
		SQLitePath:  cfg.SQLitePath(),
		PostgresDSN: cfg.Storage.PostgresDSN,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := fn(db, driver); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}
