package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sriram-PR/catalog-scraper/pkg/config"
	"github.com/Sriram-PR/catalog-scraper/pkg/crawler"
	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
	"github.com/Sriram-PR/catalog-scraper/pkg/watch"
)

// NewCrawlCmd creates the crawl command
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Harvest the catalog once, resuming from the last checkpoint",
		Long: `Crawl walks every (city, filter) pair, appends entries not yet collected and
checkpoints the collection after each pair that produced new records. The
CSV export is rewritten at the end.

When the catalog starts answering with a challenge page the crawl pauses and
asks you to solve it in a browser, then retries the same page.`,
		Args: cobra.NoArgs,
		RunE: runCrawlCmd,
	}
	cmd.Flags().Bool("fresh", false, "Ignore the existing checkpoint and pair journal")
	cmd.Flags().Bool("skip-completed", false, "Skip pairs the journal records as complete (enables the journal)")
	return cmd
}

func runCrawlCmd(cmd *cobra.Command, _ []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	fresh, _ := cmd.Flags().GetBool("fresh")
	skip, _ := cmd.Flags().GetBool("skip-completed")
	if skip {
		a.cfg.SkipCompletedPairs = true
		a.cfg.EnableJournal = true
	}

	ctx, stop := signalContext(cmd.Context(), a.log)
	defer stop()

	h, err := newHarvester(ctx, a, crawler.Options{Fresh: fresh, SkipCompleted: a.cfg.SkipCompletedPairs}, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer h.Close()

	var result *crawler.RunResult
	err = h.serve(ctx, func(ctx context.Context) error {
		var runErr error
		result, runErr = h.Run(ctx)
		return runErr
	})
	return reportRun(cmd.OutOrStdout(), cmd.ErrOrStderr(), a.cfg, result, err)
}

// reportRun prints the outcome of a harvest. Cancellation is not an error:
// the last checkpoint is intact and the next crawl resumes from it.
func reportRun(stdout, stderr io.Writer, cfg *config.AppConfig, result *crawler.RunResult, err error) error {
	switch {
	case err == nil:
		fmt.Fprintf(stdout, "Collected %d new records (%d total) in %s. Export: %s\n",
			result.NewRecords, result.TotalRecords, result.Duration.Round(time.Second), cfg.ExportFile)
		if result.CheckpointFailures > 0 {
			fmt.Fprintf(stderr, "Warning: %d checkpoints failed; %s may be behind the export\n",
				result.CheckpointFailures, cfg.CheckpointFile)
		}
		return nil
	case errors.Is(err, context.Canceled):
		fmt.Fprintf(stderr, "Crawl cancelled. Progress is kept in %s.\n", cfg.CheckpointFile)
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("crawl timed out (global_crawl_timeout %v): %w", cfg.GlobalCrawlTimeout, err)
	case errors.Is(err, utils.ErrFatal):
		fmt.Fprintln(stderr, "Fatal error. Shutting down.")
		return err
	default:
		return fmt.Errorf("crawl finished with error: %w", err)
	}
}

// NewWatchCmd creates the watch command
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Re-harvest the catalog on a fixed interval",
		Long: `Watch runs a crawl immediately when one is due and then again every
--interval. The time and outcome of the last run are kept in the state
directory so restarting watch does not trigger an early run.

Intervals accept Go durations plus days, e.g. 30m, 12h, 7d, 1d12h.`,
		Args: cobra.NoArgs,
		RunE: runWatchCmd,
	}
	cmd.Flags().String("interval", "24h", "Time between harvests")
	return cmd
}

func runWatchCmd(cmd *cobra.Command, _ []string) error {
	intervalStr, _ := cmd.Flags().GetString("interval")
	interval, err := watch.ParseInterval(intervalStr)
	if err != nil {
		return err
	}
	if interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", watch.ErrInvalidInterval)
	}

	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context(), a.log)
	defer stop()

	h, err := newHarvester(ctx, a, crawler.Options{SkipCompleted: a.cfg.SkipCompletedPairs}, cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer h.Close()

	s := watch.NewScheduler(a.cfg.StateDir, jobKey(a.cfg), interval, h.Run, a.log)
	return h.serve(ctx, s.Run)
}

// jobKey identifies the harvested catalog section in the watch state
func jobKey(cfg *config.AppConfig) string {
	return cfg.Catalog.Host + "/" + strings.Trim(cfg.Catalog.SearchPath, "/")
}
