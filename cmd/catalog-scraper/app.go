package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/catalog-scraper/pkg/collection"
	"github.com/Sriram-PR/catalog-scraper/pkg/config"
	"github.com/Sriram-PR/catalog-scraper/pkg/crawler"
	"github.com/Sriram-PR/catalog-scraper/pkg/extract"
	"github.com/Sriram-PR/catalog-scraper/pkg/fetch"
	applog "github.com/Sriram-PR/catalog-scraper/pkg/log"
	"github.com/Sriram-PR/catalog-scraper/pkg/models"
	"github.com/Sriram-PR/catalog-scraper/pkg/partition"
	"github.com/Sriram-PR/catalog-scraper/pkg/storage"
	"github.com/Sriram-PR/catalog-scraper/pkg/walker"
)

const (
	journalGCInterval = 10 * time.Minute
	shutdownGrace     = 30 * time.Second
)

// app is the state every command starts from: validated config and a logger
type app struct {
	cfg *config.AppConfig
	log *logrus.Entry
}

// loadApp reads .env, the config file and sets up logging. The config file is
// only required when --config was given explicitly.
func loadApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")
	levelFlag, _ := cmd.Flags().GetString("loglevel")

	if err := config.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	cfg, warnings, err := config.Load(configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	level := cfg.LogLevel
	if levelFlag != "" {
		level = levelFlag
	}
	logger, logErr := applog.Setup(level, cfg.LogFile)
	entry := logrus.NewEntry(logger)
	if logErr != nil {
		entry.Warnf("Logger setup: %v", logErr)
	}
	for _, w := range warnings {
		entry.Warn(w)
	}

	return &app{cfg: cfg, log: entry}, nil
}

// newStore builds the collection store for cfg
func newStore(cfg *config.AppConfig, log *logrus.Entry) *collection.Store {
	schema := collection.NewSchema(models.DefaultColumns, cfg.Catalog.SocialAnchor)
	return collection.NewStore(cfg.CheckpointFile, cfg.ExportFile, schema, config.GetEffectiveDelimiter(*cfg), log)
}

// signalContext cancels on SIGINT/SIGTERM. A second signal, or a shutdown that
// takes longer than shutdownGrace, exits the process.
func signalContext(parent context.Context, log *logrus.Entry) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
			cancel()
		case <-ctx.Done():
			return
		}

		select {
		case sig := <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(shutdownGrace):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// harvester owns the long-lived collaborators and starts a fresh Crawler per run
type harvester struct {
	cfg     *config.AppConfig
	deps    crawler.Deps
	opts    crawler.Options
	journal *storage.BadgerStore
	log     *logrus.Entry
}

// newHarvester wires fetcher, extractor, store and the optional pair journal.
// Operator prompts for blocked listings are written to out and answered from in.
func newHarvester(ctx context.Context, a *app, opts crawler.Options, in io.Reader, out io.Writer) (*harvester, error) {
	client, err := fetch.NewClient(a.cfg.HTTPClientSettings, a.cfg.ProxyAddress, a.log)
	if err != nil {
		return nil, err
	}
	limiter := fetch.NewRateLimiter(a.cfg.RequestDelay, a.log)

	h := &harvester{
		cfg:  a.cfg,
		opts: opts,
		log:  a.log,
		deps: crawler.Deps{
			Fetcher:   fetch.NewFetcher(client, a.cfg, limiter, a.log),
			Extractor: extract.New(a.cfg.Catalog, a.log),
			Recoverer: walker.NewPromptRecoverer(in, out, recoveryHint(a.cfg), a.log),
			Filters:   extract.FileFilterSource{Path: a.cfg.FiltersFile},
			Store:     newStore(a.cfg, a.log),
		},
	}

	if a.cfg.EnableJournal {
		journal, err := storage.NewBadgerStore(ctx, a.cfg.StateDir, a.cfg.Catalog.Host, opts.Fresh, a.log)
		if err != nil {
			return nil, err
		}
		h.journal = journal
		h.deps.Journal = journal
	}
	return h, nil
}

// Run performs one harvest
func (h *harvester) Run(ctx context.Context) (*crawler.RunResult, error) {
	c := crawler.NewCrawler(h.cfg, h.deps, h.opts, h.log)
	h.log.Infof("Run %s", c.RunID())
	result, err := c.Run(ctx)
	// Later runs of the same process resume from what this one collected and
	// walk every pair again, since the journal still has this run's pairs as complete
	h.opts.Fresh = false
	h.opts.SkipCompleted = false
	return result, err
}

// serve runs fn with the journal garbage collector alongside it. The collector
// stops when fn returns, so Close never races a GC pass.
func (h *harvester) serve(ctx context.Context, fn func(context.Context) error) error {
	if h.journal == nil {
		return fn(ctx)
	}
	ctx, stopGC := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		h.journal.RunGC(gctx, journalGCInterval)
		return nil
	})
	g.Go(func() error {
		defer stopGC()
		return fn(gctx)
	})
	return g.Wait()
}

// Close releases the journal
func (h *harvester) Close() {
	if h.journal == nil {
		return
	}
	if err := h.journal.Close(); err != nil {
		h.log.Warnf("Closing journal: %v", err)
	}
}

// recoveryHint is the page the operator opens to clear a challenge
func recoveryHint(cfg *config.AppConfig) string {
	enum := partition.New(cfg.Catalog)
	def := enum.Default()
	for _, t := range enum.Targets() {
		if t.Partition.ID == def.ID {
			return t.ListingURL
		}
	}
	return cfg.Catalog.Scheme + "://" + cfg.Catalog.Host + "/"
}
