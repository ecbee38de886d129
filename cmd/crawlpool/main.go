// Package main provides the entry point for crawlpool.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Rorqualx/crawlpool/internal/config"
	"github.com/Rorqualx/crawlpool/pkg/version"
)

var (
	cfg *config.Config

	logLevel string
	logFile  string
	headless bool
)

var rootCmd = &cobra.Command{
	Use:   "crawlpool",
	Short: "Bounded browser page pool for product crawling",
	Long: `crawlpool keeps a small pool of browser pages behind one stealth
browser session and runs product detail crawls and keyword searches on them.
The session is launched on the first request and torn down when idle.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()

		flags := cmd.Flags()
		if flags.Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if flags.Changed("log-file") {
			cfg.LogFile = logFile
		}
		if flags.Changed("headless") {
			cfg.Headless = headless
		}

		// Logging first so validation warnings are visible.
		setupLogging(cfg.LogLevel, cfg.LogFile)
		cfg.Validate()
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("crawlpool %s (%s)\n", version.Full(), version.GoVersion())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug|info|warn|error), overrides LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "rotating log file, overrides LOG_FILE")
	rootCmd.PersistentFlags().BoolVar(&headless, "headless", true, "run the browser headless, overrides HEADLESS")

	rootCmd.AddCommand(serveCmd, crawlCmd, searchCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
