// Command opsctl runs operator tasks against a SolarVest deployment:
// schema migrations, tenant bootstrap and one-off export polls.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/solarvest/platform/internal/config"
	"github.com/solarvest/platform/internal/repository"
)

var (
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "opsctl",
	Short:         "Operator tooling for the SolarVest platform",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file read before the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(migrateCmd, bootstrapCmd, exportsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env bundles what every subcommand needs.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	repo   *repository.Repository
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.LoadFiles(envFile)
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})).With("component", "opsctl")

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return &env{cfg: cfg, logger: logger, repo: repo}, nil
}

func (e *env) Close() {
	e.repo.Close()
}
