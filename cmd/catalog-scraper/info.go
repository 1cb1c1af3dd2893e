package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sriram-PR/catalog-scraper/pkg/config"
	"github.com/Sriram-PR/catalog-scraper/pkg/extract"
	"github.com/Sriram-PR/catalog-scraper/pkg/models"
	"github.com/Sriram-PR/catalog-scraper/pkg/partition"
	"github.com/Sriram-PR/catalog-scraper/pkg/storage"
	"github.com/Sriram-PR/catalog-scraper/pkg/watch"
)

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show per-pair progress from the journal and the last watch run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			journal, err := storage.NewBadgerStore(cmd.Context(), a.cfg.StateDir, a.cfg.Catalog.Host, false, a.log)
			if err != nil {
				return err
			}
			defer journal.Close()

			if out, _ := cmd.Flags().GetString("out"); out != "" {
				if err := journal.WriteJournalLog(out); err != nil {
					return err
				}
			}
			return doStatus(cmd.Context(), a.cfg, journal, cmd.OutOrStdout())
		},
	}
	cmd.Flags().String("out", "", "Also write the journal as a TSV file")
	return cmd
}

func doStatus(ctx context.Context, cfg *config.AppConfig, journal storage.StoreAdmin, stdout io.Writer) error {
	entries, err := journal.ListPairs(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PARTITION\tFILTER\tSTATUS\tPAGES\tNEW\tERROR\tSTARTED")
	counts := make(map[models.PairStatus]int)
	for _, je := range entries {
		id, filter := je.Key.Split()
		started := "-"
		if !je.Entry.StartedAt.IsZero() {
			started = je.Entry.StartedAt.Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			id, filter, je.Entry.Status, je.Entry.Pages, je.Entry.NewRecords, dash(je.Entry.ErrorType), started)
		counts[je.Entry.Status]++
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	complete, failed := counts[models.PairStatusComplete], counts[models.PairStatusFailure]
	fmt.Fprintf(stdout, "\n%d pairs in journal: %d complete, %d failed, %d unfinished\n",
		len(entries), complete, failed, len(entries)-complete-failed)

	sm := watch.NewStateManager(cfg.StateDir)
	if err := sm.Load(); err != nil {
		fmt.Fprintf(stdout, "Watch state unreadable: %v\n", err)
		return nil
	}
	if js, ok := sm.GetJobState(jobKey(cfg)); ok {
		outcome := "success"
		if !js.LastRunSuccess {
			outcome = "failed: " + js.ErrorMessage
		}
		fmt.Fprintf(stdout, "Last watch run %s (%s), %d new / %d total records\n",
			js.LastRunTime.Format(time.DateTime), outcome, js.NewRecords, js.TotalRecords)
	}
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// NewValidateCmd creates the validate command
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and the filters file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return doValidate(configPath, cmd.Flags().Changed("config"), cmd.OutOrStdout())
		},
	}
}

// doValidate loads the config the way crawl does and checks the filters file parses
func doValidate(configPath string, required bool, stdout io.Writer) error {
	cfg, warnings, err := config.Load(configPath, required)
	for _, w := range warnings {
		fmt.Fprintf(stdout, "warning: %s\n", w)
	}
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	filters, err := extract.FileFilterSource{Path: cfg.FiltersFile}.LoadFilters()
	if err != nil {
		return fmt.Errorf("filters: %w", err)
	}
	if len(filters) == 0 {
		fmt.Fprintf(stdout, "warning: %s contains no filters, crawl would visit nothing\n", cfg.FiltersFile)
	}

	fmt.Fprintf(stdout, "OK: %d partitions x %d filters = %d pairs, up to %d pages each\n",
		len(cfg.Catalog.Partitions), len(filters), len(cfg.Catalog.Partitions)*len(filters), cfg.Catalog.PageLimit)
	return nil
}

// NewPartitionsCmd creates the partitions command
func NewPartitionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "partitions",
		Short: "List configured partitions and their listing endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			return doListPartitions(a.cfg, cmd.OutOrStdout())
		},
	}
}

func doListPartitions(cfg *config.AppConfig, stdout io.Writer) error {
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCITY\tREGION\tLISTING")
	for _, t := range partition.New(cfg.Catalog).Targets() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Partition.ID, t.Partition.City, t.Partition.Region, t.ListingURL)
	}
	return tw.Flush()
}
