package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mcp-glucose-insights/internal/app"
	"mcp-glucose-insights/internal/config"
	"mcp-glucose-insights/internal/logger"
)

var (
	configPath string
	dbPath     string
	timezone   string
	logMode    string
	outFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "glucose-insights",
	Short: "Meal and glucose analytics over logged meals and CGM readings",
	Long: `glucose-insights correlates logged meals with the glucose readings that
follow them, aggregates hourly and daily timelines, and generates cached
daily and weekly summaries.

It runs either as an MCP tool server (serve) or as one-shot commands
against the same SQLite database.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db-path", "", "Database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&timezone, "timezone", "", "IANA timezone for day boundaries (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "Log mode: dev|prod (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&outFormat, "format", "f", formatText, "Output format: text|json")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(dailyCmd)
	rootCmd.AddCommand(weeklyCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(patternsCmd)
	rootCmd.AddCommand(correlateCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig resolves file, environment and flag settings in that order.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Storage.DBPath = dbPath
	}
	if timezone != "" {
		cfg.Timezone = timezone
	}
	if logMode != "" {
		cfg.LogMode = logMode
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openApp loads configuration and wires the analytics components. The caller
// closes the app and syncs the logger.
func openApp(ctx context.Context) (*app.App, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Sync()
		return nil, nil, err
	}
	return a, cfg, nil
}

func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		a.Log.Warn("Failed to close storage", "error", err)
	}
	a.Log.Sync()
}
