package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Sriram-PR/catalog-scraper/pkg/collection"
	"github.com/Sriram-PR/catalog-scraper/pkg/config"
	"github.com/Sriram-PR/catalog-scraper/pkg/partition"
	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
)

// NewExportCmd creates the export command
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Rewrite the CSV export from the checkpoint without crawling",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			if out, _ := cmd.Flags().GetString("output"); out != "" {
				a.cfg.ExportFile = out
			}
			return doExport(a.cfg, a.log, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringP("output", "o", "", "Export path (default: export_file from config)")
	return cmd
}

// doExport loads the checkpoint, drops repeated references and writes the export
func doExport(cfg *config.AppConfig, log *logrus.Entry, stdout io.Writer) error {
	store := newStore(cfg, log)
	records, err := store.LoadRecords()
	if err != nil {
		return fmt.Errorf("reading checkpoint %s: %w", cfg.CheckpointFile, err)
	}

	state := collection.NewState()
	dropped := 0
	for _, rec := range records {
		if err := state.Append(rec); err != nil {
			if !errors.Is(err, utils.ErrDuplicateRecord) {
				log.WithError(err).Warn("Skipping checkpoint record")
			}
			dropped++
		}
	}
	if err := store.Finalize(state); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Exported %d records to %s", state.Len(), cfg.ExportFile)
	if dropped > 0 {
		fmt.Fprintf(stdout, " (%d skipped)", dropped)
	}
	fmt.Fprintln(stdout)
	return nil
}

// NewPruneCmd creates the prune command
func NewPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove damaged records from the checkpoint",
		Long: `Prune drops checkpoint records that lack the social links map, which marks
entries written by older versions or damaged by an interrupted edit.

With --relabel the city and region columns of every remaining record are
recomputed from the subdomain of its URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			relabel, _ := cmd.Flags().GetBool("relabel")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			return doPrune(a.cfg, relabel, dryRun, a.log, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Bool("relabel", false, "Recompute city and region from each record's URL")
	cmd.Flags().Bool("dry-run", false, "Report what would change without writing the checkpoint")
	return cmd
}

func doPrune(cfg *config.AppConfig, relabel, dryRun bool, log *logrus.Entry, stdout io.Writer) error {
	store := newStore(cfg, log)
	records, err := store.LoadRecords()
	if err != nil {
		return fmt.Errorf("reading checkpoint %s: %w", cfg.CheckpointFile, err)
	}

	kept, removed := collection.Prune(records)
	relabelled := 0
	if relabel {
		relabelled = collection.Relabel(kept, partition.New(cfg.Catalog).PartitionForURL)
	}
	fmt.Fprintf(stdout, "Removed %d records, relabelled %d, %d remain\n", len(removed), relabelled, len(kept))

	if dryRun || (len(removed) == 0 && relabelled == 0) {
		return nil
	}
	return store.SaveRecords(kept)
}
