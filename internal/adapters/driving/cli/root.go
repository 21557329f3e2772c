// Package cli implements the finqa command line interface.
//
// Commands reach the core through driving ports. The settings service
// is injected at startup; the analysis, search and ingest services are
// built on demand by a ServiceLoader so that commands like version and
// settings never touch a provider.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/finqa/internal/core/ports/driving"
	"github.com/custodia-labs/finqa/internal/logger"
)

// version is set at build time via SetVersion.
var version = "dev"

// Services holds the driving ports used by the data commands.
type Services struct {
	Analysis driving.AnalysisService
	Search   driving.SearchService
	Ingest   driving.IngestService

	// Warnings are shown once before the command output.
	Warnings []string

	// Close releases the underlying adapters. Optional.
	Close func()
}

// ServiceLoader builds the data services from the current settings.
type ServiceLoader func(ctx context.Context) (*Services, error)

var (
	settingsService driving.SettingsService
	serviceLoader   ServiceLoader

	verbose bool
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "finqa",
	Short: "Financial question answering over bank filings",
	Long: `finqa ingests financial statements, earnings presentations and results
call transcripts, then answers questions about them with cited sources
and verified calculations.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show workflow progress and debug output")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from this file (default .env if present)")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// SetSettingsService sets the settings service used by the settings command.
func SetSettingsService(s driving.SettingsService) {
	settingsService = s
}

// SetServiceLoader sets the loader for the data services.
func SetServiceLoader(l ServiceLoader) {
	serviceLoader = l
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// setup loads the environment file and applies logging flags.
func setup(_ *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)
	return loadEnv(envFile)
}

// loadEnv reads path into the environment without overriding variables
// that are already set. An empty path loads .env when it exists.
func loadEnv(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Ignoring .env: %v", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// loadServices builds the data services and prints any warnings.
// The caller must call the returned release function.
func loadServices(cmd *cobra.Command) (*Services, func(), error) {
	if serviceLoader == nil {
		return nil, nil, errors.New("services not configured")
	}
	svc, err := serviceLoader(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	for _, w := range svc.Warnings {
		logger.Warn("%s", w)
	}
	release := func() {
		if svc.Close != nil {
			svc.Close()
		}
	}
	return svc, release, nil
}
