// Package main provides the ctr_agent CLI that runs the CTR experiment engine.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ctr_agent",
	Short: "Search CTR experiment engine",
	Long: `ctr_agent finds pages whose click-through rate trails the site's own benchmark,
runs title and structure experiments on them through the WordPress REST API and
learns which kinds of change work.

Scheduled use: "monthly" once a month and "weekly" once a week.`,
	SilenceUsage: true,
}

var (
	configPath  string
	databaseURL string
	logLevel    string
	verbose     bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (values can be overridden by flags and env vars)")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print detailed debug information")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
