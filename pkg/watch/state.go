package watch

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Sriram-PR/catalog-scraper/pkg/crawler"
	"github.com/Sriram-PR/catalog-scraper/pkg/utils"
)

const stateFileName = "watch_state.json"

// JobState contains the last run information for a harvest job
type JobState struct {
	LastRunTime    time.Time `json:"last_run_time"`
	LastRunSuccess bool      `json:"last_run_success"`
	RunID          string    `json:"run_id,omitempty"`
	NewRecords     int       `json:"new_records"`
	TotalRecords   int       `json:"total_records"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// WatchState contains the persistent state for the watch scheduler
type WatchState struct {
	Jobs      map[string]JobState `json:"jobs"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// StateManager handles persisting and loading watch state
type StateManager struct {
	stateDir  string
	statePath string
	state     WatchState
	mu        sync.RWMutex
}

// NewStateManager creates a new state manager
func NewStateManager(stateDir string) *StateManager {
	return &StateManager{
		stateDir:  stateDir,
		statePath: filepath.Join(stateDir, stateFileName),
		state: WatchState{
			Jobs: make(map[string]JobState),
		},
	}
}

// Load loads the state from disk
func (m *StateManager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			m.state = WatchState{Jobs: make(map[string]JobState)}
			return nil
		}
		return fmt.Errorf("%w: failed to read state file: %w", utils.ErrFilesystem, err)
	}

	if err := json.Unmarshal(data, &m.state); err != nil {
		return fmt.Errorf("%w: failed to parse state file: %w", utils.ErrParsing, err)
	}
	if m.state.Jobs == nil {
		m.state.Jobs = make(map[string]JobState)
	}
	return nil
}

// Save atomically writes the state to disk
func (m *StateManager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return utils.WriteFileAtomic(m.statePath, 0644, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// GetJobState returns the state for a specific job
func (m *StateManager) GetJobState(jobKey string) (JobState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.state.Jobs[jobKey]
	return state, ok
}

// RecordRun stores the outcome of a harvest. result may be nil when the run
// failed before producing one.
func (m *StateManager) RecordRun(jobKey string, result *crawler.RunResult, runErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := JobState{
		LastRunTime:    time.Now(),
		LastRunSuccess: runErr == nil,
	}
	if result != nil {
		state.RunID = result.RunID
		state.NewRecords = result.NewRecords
		state.TotalRecords = result.TotalRecords
	}
	if runErr != nil {
		state.ErrorMessage = runErr.Error()
	}
	m.state.Jobs[jobKey] = state
}

// ShouldRun checks if a job should run based on the interval
func (m *StateManager) ShouldRun(jobKey string, interval time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Jobs[jobKey]
	if !ok {
		return true
	}
	return time.Since(state.LastRunTime) >= interval
}

// GetNextRunTime returns when the job should next run
func (m *StateManager) GetNextRunTime(jobKey string, interval time.Duration) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.state.Jobs[jobKey]
	if !ok {
		return time.Now()
	}
	return state.LastRunTime.Add(interval)
}
