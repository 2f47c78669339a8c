package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"simkyc/internal/platform/config"
	"simkyc/internal/platform/postgres"
	"simkyc/migrations"
)

func migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDatabase(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := migrations.Up(db.SQL)
			if err != nil {
				return err
			}
			cmd.Printf("applied %d migrations\n", n)
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDatabase(cmd)
			if err != nil {
				return err
			}
			defer db.Close()
			n, err := migrations.Down(db.SQL, steps)
			if err != nil {
				return err
			}
			cmd.Printf("rolled back %d migrations\n", n)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back (0 rolls back all)")

	cmd.AddCommand(up, down)
	return cmd
}

func openDatabase(cmd *cobra.Command) (*postgres.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for migrations")
	}
	return postgres.Open(cmd.Context(), cfg.Database)
}
