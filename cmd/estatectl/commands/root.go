package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	dbfs "github.com/garnizeh/estate/db"
	"github.com/garnizeh/estate/internal/config"
	"github.com/garnizeh/estate/internal/db"
)

var (
	// Global flags
	configPath string
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:   "estatectl",
	Short: "Maintenance tool for the estate listing service",
	Long: `estatectl manages the estate database and background jobs.

Configuration is read the same way the server reads it: defaults, .env,
ESTATE_* variables and finally the optional YAML file given with --config.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides configuration)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		cfg.DatabasePath = dbPath
	}
	return cfg, nil
}

// openDB opens the configured database and applies pending migrations.
func openDB(ctx context.Context) (*config.Config, *db.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	conn, err := db.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx, conn, dbfs.Migrations); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return cfg, conn, nil
}
