// Package cli provides the command-line interface for lenny.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/marcus-pm/lenny-cli/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool
	saveDir string

	// Global config, loaded in PersistentPreRunE
	cfg config.Config

	closeLog func() error
)

// rootCmd represents the base command. Running it without a subcommand
// starts the interactive chat loop.
var rootCmd = &cobra.Command{
	Use:   "lenny",
	Short: "Ask questions about Lenny's Podcast transcripts",
	Long: `Lenny answers natural-language questions about Lenny's Podcast transcripts.

Simple lookups run through fast BM25 retrieval plus a single synthesis
call; analytical questions run through a deep multi-step agent that
reads transcripts and fans analysis out to sub-models. A hybrid router
picks the path per question.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		loadUserConfigEnv()
		cfg = config.Load()
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}

		logger, closer := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		slog.SetDefault(logger)
		closeLog = closer

		slog.Debug("starting", "version", Version, "command", cmd.Name())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&saveDir, "save-dir", "", "directory for /save output (default: working directory)")

	rootCmd.AddCommand(episodesCmd)
	rootCmd.AddCommand(searchCmd)
}
