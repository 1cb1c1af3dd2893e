package crawler

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Phase is a state of the crawl state machine
type Phase int32

const (
	PhaseInit          Phase = iota // Loading the checkpoint and filters
	PhaseEnumerating                // Building the worklist
	PhaseWalkingPair                // Walking one (partition, filter) pair
	PhaseBlocked                    // Waiting for the operator to clear a block
	PhaseCheckpointing              // Persisting the collection after a productive pair
	PhaseFinalizing                 // Writing the export
	PhaseDone
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseInit:          "init",
	PhaseEnumerating:   "enumerating",
	PhaseWalkingPair:   "walking_pair",
	PhaseBlocked:       "blocked",
	PhaseCheckpointing: "checkpointing",
	PhaseFinalizing:    "finalizing",
	PhaseDone:          "done",
	PhaseFailed:        "failed",
}

// String implements fmt.Stringer for logging
func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// RunResult summarizes one harvest
type RunResult struct {
	RunID              string
	Pairs              int // Pairs walked
	PairsSkipped       int // Pairs skipped as already complete in the journal
	PagesFetched       int
	NewRecords         int
	TotalRecords       int // Records in the collection at the end of the run
	ItemFailures       int
	BlockedRounds      int
	CheckpointFailures int
	Duration           time.Duration
}

func (c *Crawler) logSummary(r *RunResult) {
	c.log.WithFields(logrus.Fields{
		"pairs":               r.Pairs,
		"pairs_skipped":       r.PairsSkipped,
		"pages":               r.PagesFetched,
		"new_records":         r.NewRecords,
		"total_records":       r.TotalRecords,
		"item_failures":       r.ItemFailures,
		"blocked_rounds":      r.BlockedRounds,
		"checkpoint_failures": r.CheckpointFailures,
		"duration":            r.Duration.Round(time.Millisecond).String(),
		"phase":               c.Phase().String(),
	}).Info("Crawl summary")
}
