package watch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/catalog-scraper/pkg/crawler"
	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
)

// HarvestFunc runs one full harvest
type HarvestFunc func(ctx context.Context) (*crawler.RunResult, error)

// Scheduler re-runs a harvest on a fixed interval. Runs never overlap; a run
// that is still going when the next one falls due delays it.
type Scheduler struct {
	jobKey       string
	interval     time.Duration
	tickInterval time.Duration
	harvest      HarvestFunc
	log          *logrus.Entry
	stateManager *StateManager

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewScheduler creates a new watch scheduler
func NewScheduler(stateDir, jobKey string, interval time.Duration, harvest HarvestFunc, log *logrus.Entry) *Scheduler {
	s := &Scheduler{
		jobKey:       jobKey,
		interval:     interval,
		harvest:      harvest,
		log:          log.WithField("component", "watch"),
		stateManager: NewStateManager(stateDir),
	}
	s.tickInterval = s.calculateTickInterval()
	return s
}

// Run starts the scheduler and blocks until ctx is cancelled. A harvest in
// progress at that point is cancelled through the same ctx and waited for.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.stateManager.Load(); err != nil {
		s.log.Warnf("Failed to load watch state: %v (starting fresh)", err)
	}

	s.log.Infof("Starting watch mode for %s with interval %s", s.jobKey, FormatInterval(s.interval))
	s.logSchedule()

	s.runIfDue(ctx)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Watch scheduler shutting down...")
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.runIfDue(ctx)
		}
	}
}

// runIfDue starts a harvest when the job is due and none is running
func (s *Scheduler) runIfDue(ctx context.Context) {
	if s.running.Load() {
		return
	}
	if !s.stateManager.ShouldRun(s.jobKey, s.interval) {
		return
	}

	s.running.Store(true)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		s.log.Infof("Running harvest for %s", s.jobKey)
		result, err := s.harvest(ctx)
		if err != nil && utils.IsCancellation(err) && ctx.Err() != nil {
			s.log.Info("Harvest interrupted by shutdown; not recording run")
			return
		}
		if err != nil {
			s.log.WithError(err).WithField("error_type", utils.CategorizeError(err)).Error("Harvest failed")
		}

		s.stateManager.RecordRun(s.jobKey, result, err)
		if saveErr := s.stateManager.Save(); saveErr != nil {
			s.log.Errorf("Failed to save watch state: %v", saveErr)
		}
		s.logNextRun()
	}()
}

// calculateTickInterval returns how often to check whether the job is due
func (s *Scheduler) calculateTickInterval() time.Duration {
	// Check at least every minute, or every 1/10th of the interval
	checkInterval := s.interval / 10
	if checkInterval < time.Minute {
		checkInterval = time.Minute
	}
	if checkInterval > 10*time.Minute {
		checkInterval = 10 * time.Minute
	}
	return checkInterval
}

// logSchedule logs the last run and when the next one is due
func (s *Scheduler) logSchedule() {
	state, exists := s.stateManager.GetJobState(s.jobKey)
	if !exists {
		s.log.Infof("%s: never run, will run immediately", s.jobKey)
		return
	}
	status := "success"
	if !state.LastRunSuccess {
		status = "failed"
	}
	s.log.Infof("%s: last run %v (%s, %d new / %d total records), next run %v",
		s.jobKey,
		state.LastRunTime.Format(time.RFC3339),
		status,
		state.NewRecords,
		state.TotalRecords,
		s.stateManager.GetNextRunTime(s.jobKey, s.interval).Format(time.RFC3339))
}

// logNextRun logs when the next run will occur
func (s *Scheduler) logNextRun() {
	next := s.stateManager.GetNextRunTime(s.jobKey, s.interval)
	until := time.Until(next)
	if until < 0 {
		until = 0
	}
	s.log.Infof("Next harvest in %v (at %s)", until.Round(time.Second), next.Format("15:04:05"))
}

// Status returns the last recorded run and the next due time
func (s *Scheduler) Status() JobStatus {
	state, exists := s.stateManager.GetJobState(s.jobKey)
	return JobStatus{
		JobKey:      s.jobKey,
		Last:        state,
		NextRunTime: s.stateManager.GetNextRunTime(s.jobKey, s.interval),
		NeverRun:    !exists,
	}
}

// JobStatus contains the status of the watched job
type JobStatus struct {
	JobKey      string
	Last        JobState
	NextRunTime time.Time
	NeverRun    bool
}

// FormatInterval formats a duration for display
func FormatInterval(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		hours := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins > 0 {
			return fmt.Sprintf("%dh%dm", hours, mins)
		}
		return fmt.Sprintf("%dh", hours)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours > 0 {
		return fmt.Sprintf("%dd%dh", days, hours)
	}
	return fmt.Sprintf("%dd", days)
}

// ErrInvalidInterval is returned by ParseInterval
var ErrInvalidInterval = errors.New("invalid interval format")

// ParseInterval parses a duration string with support for days
func ParseInterval(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	var days int
	var remaining string
	n, _ := fmt.Sscanf(s, "%dd%s", &days, &remaining)
	if n >= 1 {
		d = time.Duration(days) * 24 * time.Hour
		if remaining != "" {
			extra, err := time.ParseDuration(remaining)
			if err != nil {
				return 0, fmt.Errorf("%w: %s", ErrInvalidInterval, s)
			}
			d += extra
		}
		return d, nil
	}

	return 0, fmt.Errorf("%w: %s (examples: 30m, 1h, 24h, 7d)", ErrInvalidInterval, s)
}
