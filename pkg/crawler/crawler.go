package crawler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/catalog-scraper/pkg/collection"
	"github.com/Sriram-PR/catalog-scraper/pkg/config"
	"github.com/Sriram-PR/catalog-scraper/pkg/models"
	"github.com/Sriram-PR/catalog-scraper/pkg/partition"
	"github.com/Sriram-PR/catalog-scraper/pkg/storage"
	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
	"github.com/Sriram-PR/catalog-scraper/pkg/walker"
)

// FilterSource yields the filter names to crawl; extract.FileFilterSource satisfies it
type FilterSource interface {
	LoadFilters() ([]models.Filter, error)
}

// Deps are the collaborators a Crawler drives
type Deps struct {
	Fetcher   walker.Fetcher
	Extractor walker.Extractor
	Recoverer walker.Recoverer
	Filters   FilterSource
	Store     *collection.Store
	Journal   storage.PairJournal // Optional; nil disables per-pair progress tracking
}

// Options adjust a single run
type Options struct {
	Fresh         bool // Ignore the existing checkpoint and start from an empty collection
	SkipCompleted bool // Skip pairs the journal already has as complete
}

// Crawler runs one harvest: every (partition, filter) pair is walked in order,
// new records are checkpointed after each productive pair and the export is
// written at the end.
type Crawler struct {
	cfg        *config.AppConfig
	enumerator *partition.Enumerator
	walker     *walker.Walker
	filters    FilterSource
	store      *collection.Store
	journal    storage.PairJournal
	opts       Options

	runID string
	phase atomic.Int32
	log   *logrus.Entry // Logger contextualized with run_id
}

// NewCrawler creates a Crawler. cfg is expected to be validated.
func NewCrawler(cfg *config.AppConfig, deps Deps, opts Options, baseLogger *logrus.Entry) *Crawler {
	runID := uuid.NewString()
	logger := baseLogger.WithField("run_id", runID)

	c := &Crawler{
		cfg:        cfg,
		enumerator: partition.New(cfg.Catalog),
		filters:    deps.Filters,
		store:      deps.Store,
		journal:    deps.Journal,
		opts:       opts,
		runID:      runID,
		log:        logger,
	}
	c.walker = walker.New(deps.Fetcher, deps.Extractor, &phaseRecoverer{c: c, inner: deps.Recoverer}, cfg, logger)
	c.phase.Store(int32(PhaseInit))
	return c
}

// RunID returns the identifier attached to every log line of this run
func (c *Crawler) RunID() string { return c.runID }

// Phase returns the current phase
func (c *Crawler) Phase() Phase { return Phase(c.phase.Load()) }

func (c *Crawler) setPhase(p Phase) {
	prev := Phase(c.phase.Swap(int32(p)))
	if prev != p {
		c.log.Debugf("Phase %s -> %s", prev, p)
	}
}

// Run executes the harvest. Fatal errors are wrapped in utils.ErrFatal.
// Cancellation returns the context error and leaves the last checkpoint as it was.
func (c *Crawler) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{RunID: c.runID}

	if c.cfg.GlobalCrawlTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.GlobalCrawlTimeout)
		defer cancel()
	}

	// --- Init ---
	c.setPhase(PhaseInit)
	c.log.WithFields(logrus.Fields{
		"checkpoint": c.store.CheckpointPath(),
		"export":     c.store.ExportPath(),
		"fresh":      c.opts.Fresh,
	}).Info("Crawl starting")

	var state *collection.State
	if c.opts.Fresh {
		c.log.Warn("Fresh run: ignoring existing checkpoint")
		state = collection.NewState()
	} else {
		state = c.store.Load()
	}
	loaded := state.Len()

	filters, err := c.filters.LoadFilters()
	if err != nil {
		result.TotalRecords = loaded
		return c.fail(result, start, fmt.Errorf("%w: loading filters: %w", utils.ErrFatal, err))
	}

	// --- Enumerating ---
	c.setPhase(PhaseEnumerating)
	pairs := c.enumerator.Worklist(filters)
	c.log.Infof("Worklist: %d partitions x %d filters = %d pairs (%d records already collected)",
		len(c.cfg.Catalog.Partitions), len(filters), len(pairs), loaded)
	c.reportIncomplete(ctx)

	// --- Walking ---
	for i, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return c.cancelled(result, start, state, err)
		}
		pairLog := c.log.WithFields(logrus.Fields{
			"partition": pair.Target.Partition.ID,
			"filter":    string(pair.Filter),
		})

		if c.shouldSkip(pair, pairLog) {
			result.PairsSkipped++
			continue
		}

		c.setPhase(PhaseWalkingPair)
		pairLog.Infof("Walking pair %d/%d", i+1, len(pairs))
		pairStart := time.Now()
		c.journalStarted(pair, pairLog)

		before := state.Len()
		stats, err := c.walker.Walk(ctx, pair, state.Ledger(), state.Append)
		added := state.Len() - before

		result.Pairs++
		result.PagesFetched += stats.Pages
		result.NewRecords += added
		result.ItemFailures += stats.ItemFailures
		result.BlockedRounds += stats.BlockedRounds

		if err != nil {
			if utils.IsCancellation(err) {
				return c.cancelled(result, start, state, err)
			}
			c.journalFinished(pair, pairStart, stats, added, err, pairLog)
			result.TotalRecords = state.Len()
			return c.fail(result, start, fmt.Errorf("%w: walking %s: %w", utils.ErrFatal, pair, err))
		}

		pairLog.WithFields(logrus.Fields{
			"pages":         stats.Pages,
			"new_records":   added,
			"known":         stats.Known,
			"item_failures": stats.ItemFailures,
		}).Info("Pair finished")

		// --- Checkpointing ---
		var checkpointErr error
		if added > 0 {
			c.setPhase(PhaseCheckpointing)
			if checkpointErr = c.store.Checkpoint(state); checkpointErr != nil {
				result.CheckpointFailures++
				pairLog.WithError(checkpointErr).WithField("error_type", utils.CategorizeError(checkpointErr)).
					Error("Checkpoint failed, continuing with records held in memory")
			}
		}
		c.journalFinished(pair, pairStart, stats, added, checkpointErr, pairLog)
	}

	if err := ctx.Err(); err != nil {
		return c.cancelled(result, start, state, err)
	}

	// --- Finalizing ---
	c.setPhase(PhaseFinalizing)
	if err := c.store.Finalize(state); err != nil {
		result.TotalRecords = state.Len()
		return c.fail(result, start, fmt.Errorf("%w: writing export: %w", utils.ErrFatal, err))
	}

	c.setPhase(PhaseDone)
	result.TotalRecords = state.Len()
	result.Duration = time.Since(start)
	c.logSummary(result)
	return result, nil
}

// fail moves to PhaseFailed and logs the fatal error
func (c *Crawler) fail(result *RunResult, start time.Time, err error) (*RunResult, error) {
	c.setPhase(PhaseFailed)
	result.Duration = time.Since(start)
	c.log.WithError(err).WithField("error_type", utils.CategorizeError(err)).Error("Crawl failed")
	c.logSummary(result)
	return result, err
}

// cancelled stops without writing anything further
func (c *Crawler) cancelled(result *RunResult, start time.Time, state *collection.State, err error) (*RunResult, error) {
	c.setPhase(PhaseFailed)
	result.TotalRecords = state.Len()
	result.Duration = time.Since(start)
	c.log.Warnf("Crawl cancelled: %v", err)
	c.logSummary(result)
	return result, err
}

// shouldSkip reports whether the journal already has pair as complete
func (c *Crawler) shouldSkip(pair models.Pair, log *logrus.Entry) bool {
	if !c.opts.SkipCompleted || c.journal == nil {
		return false
	}
	status, _, err := c.journal.CheckPairStatus(pair.Key())
	if err != nil {
		log.WithError(err).Warn("Journal lookup failed, walking pair")
		return false
	}
	if status == models.PairStatusComplete {
		log.Info("Pair already complete in journal, skipping")
		return true
	}
	return false
}

// reportIncomplete logs pairs an earlier run left unfinished
func (c *Crawler) reportIncomplete(ctx context.Context) {
	if c.journal == nil {
		return
	}
	keys, _, err := c.journal.IncompletePairs(ctx)
	if err != nil {
		if !utils.IsCancellation(err) {
			c.log.WithError(err).Warn("Journal scan failed")
		}
		return
	}
	if len(keys) > 0 {
		c.log.Infof("%d pairs were left unfinished by an earlier run", len(keys))
	}
}

func (c *Crawler) journalStarted(pair models.Pair, log *logrus.Entry) {
	if c.journal == nil {
		return
	}
	if _, err := c.journal.MarkPairStarted(pair.Key()); err != nil {
		log.WithError(err).Warn("Journal update failed")
	}
}

// journalFinished records the outcome of a pair. A pair whose new records
// could not be checkpointed is recorded as failed so it is never skipped.
func (c *Crawler) journalFinished(pair models.Pair, started time.Time, stats walker.Stats, added int, err error, log *logrus.Entry) {
	if c.journal == nil {
		return
	}
	entry := &models.PairEntry{
		Status:     models.PairStatusComplete,
		Pages:      stats.Pages,
		NewRecords: added,
		StartedAt:  started,
	}
	if err != nil {
		entry.Status = models.PairStatusFailure
		entry.ErrorType = utils.CategorizeError(err)
	} else {
		entry.CompletedAt = time.Now()
	}
	if jErr := c.journal.UpdatePairStatus(pair.Key(), entry); jErr != nil {
		log.WithError(jErr).Warn("Journal update failed")
	}
}

// phaseRecoverer reports the blocked phase while the operator is consulted
type phaseRecoverer struct {
	c     *Crawler
	inner walker.Recoverer
}

func (r *phaseRecoverer) AwaitRecovery(ctx context.Context, cause error) error {
	if r.inner == nil {
		return fmt.Errorf("%w: no recovery available: %w", utils.ErrRecoveryAborted, cause)
	}
	r.c.setPhase(PhaseBlocked)
	defer r.c.setPhase(PhaseWalkingPair)
	return r.inner.AwaitRecovery(ctx, cause)
}
