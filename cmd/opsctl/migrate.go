package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/solarvest/platform/internal/repository"
	"github.com/solarvest/platform/migrations"
)

var downSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or revert database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMigrate(cmd, true)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the newest applied migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if downSteps < 1 {
			return fmt.Errorf("--steps must be at least 1")
		}
		return runMigrate(cmd, false)
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to revert")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
}

func runMigrate(cmd *cobra.Command, up bool) error {
	ctx := cmd.Context()
	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	migs, err := repository.LoadMigrations(migrations.FS)
	if err != nil {
		return err
	}

	var n int
	if up {
		n, err = e.repo.MigrateUp(ctx, migs, e.logger)
	} else {
		n, err = e.repo.MigrateDown(ctx, migs, downSteps, e.logger)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) %s\n", n, map[bool]string{true: "applied", false: "reverted"}[up])
	return nil
}
