// Package cli provides the command-line interface for careguide.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/careguide/careguide-go/internal/chat"
	"github.com/careguide/careguide-go/internal/client"
	"github.com/careguide/careguide-go/internal/config"
	"github.com/careguide/careguide-go/internal/metrics"
	"github.com/careguide/careguide-go/internal/models"
	"github.com/careguide/careguide-go/internal/store"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose     bool
	profileFlag string

	// Shared state built in PersistentPreRunE
	cfg       config.Config
	api       *client.Client
	collector *metrics.Collector
	closeLog  func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "careguide",
	Short: "Chat client for the CareGuide kidney-health education agent",
	Long: `CareGuide is a chat client for a CKD patient-education agent.

Ask questions about kidney health pitched at a general, patient or researcher
audience, with answers backed by literature citations.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()

		var logger *slog.Logger
		logger, closeLog = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)

		collector = metrics.NewCollector()
		api = client.New(cfg.AgentURL, cfg.AgentID, cfg.AgentName,
			client.WithTimeout(cfg.ClientTimeout),
			client.WithMetrics(collector),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// resolveProfile applies the --profile flag over the configured default.
func resolveProfile() (models.AudienceProfile, error) {
	if profileFlag == "" {
		return cfg.DefaultProfile, nil
	}
	return models.ParseProfile(profileFlag)
}

// newOrchestrator builds the conversation orchestrator shared by chat and
// ask. withCache enables session persistence; the returned cleanup closes
// the cache database.
func newOrchestrator(profile models.AudienceProfile, withCache bool) (*chat.Orchestrator, func(), error) {
	opts := []chat.Option{
		chat.WithLogger(slog.Default()),
		chat.WithMetrics(collector),
	}

	cleanup := func() {}
	if withCache {
		cache, err := store.Open(cfg.SessionCachePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open session cache: %w", err)
		}
		opts = append(opts, chat.WithCache(cache))
		cleanup = func() { cache.Close() }
	}

	return chat.New(api, profile, cfg.AgentID, opts...), cleanup, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&profileFlag, "profile", "p", "", "audience profile: general, patient or researcher")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(sessionCmd)
}
