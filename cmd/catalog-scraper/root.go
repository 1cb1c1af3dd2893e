package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog-scraper",
		Short: "Resumable harvester for a city-partitioned web catalog",
		Long: `catalog-scraper walks every (city, filter) listing of the catalog, collects
each new entry once and keeps the collection in a JSON checkpoint that later
runs resume from. A sorted CSV export is written at the end of every run.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "config.yaml", "Path to YAML config file (built-in defaults when absent)")
	cmd.PersistentFlags().String("loglevel", "", "Log level (debug, info, warn, error); overrides log_level from config")
	cmd.PersistentFlags().String("env-file", ".env", "Dotenv file with CATALOG_* overrides")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewWatchCmd())
	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewPruneCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewValidateCmd())
	cmd.AddCommand(NewPartitionsCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
