package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/yungbote/docprov-backend/internal/app"
	"github.com/yungbote/docprov-backend/internal/pkg/logger"
)

const (
	exitSuccess = 0
	exitError   = 1
)

var (
	configPath string
	logMode    string
)

func main() {
	root := &cobra.Command{
		Use:           "provctl",
		Short:         "Operate the document provenance store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides DOCPROV_CONFIG)")
	root.PersistentFlags().StringVar(&logMode, "log-mode", "test", "logger mode: development, production or test")

	root.AddCommand(
		newMigrateCmd(),
		newExportCmd(),
		newPurgeCmd(),
		newBackfillCmd(),
		newRecommendCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "provctl: %v\n", err)
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}

func loadConfig() (app.Config, *logger.Logger, error) {
	log, err := logger.New(logMode)
	if err != nil {
		return app.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	if configPath != "" {
		if err := os.Setenv("DOCPROV_CONFIG", configPath); err != nil {
			return app.Config{}, nil, err
		}
	}
	cfg, err := app.LoadConfig(log)
	if err != nil {
		return app.Config{}, nil, err
	}
	return cfg, log, nil
}

// openApp wires the store and services without the Temporal worker; provctl never serves.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Temporal.Address = ""
	return app.New(ctx, cfg, log)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
