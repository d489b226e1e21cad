package state

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/palma21/referral-drip-bot/internal/models"
	"github.com/sirupsen/logrus"
)

// MaxLogEntries bounds the run log; the oldest entries are evicted first
const MaxLogEntries = 2000

// RunState is the process-wide record shared by the worker and the control surface
type RunState struct {
	mu sync.RWMutex

	runID         string
	startedAt     time.Time
	running       bool
	stopRequested bool
	stopCh        chan struct{}
	logs          []models.LogEntry
	summary       map[string]int
	user          string

	maxEntries int
	now        func() time.Time
}

// New creates an idle run state
func New() *RunState {
	return &RunState{
		stopCh:     make(chan struct{}),
		summary:    make(map[string]int),
		maxEntries: MaxLogEntries,
		now:        time.Now,
	}
}

// SetClock replaces the timestamp source used for log entries
func (s *RunState) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// TryBegin atomically claims the single worker slot and resets the run
// record. It returns false when a run is already active.
func (s *RunState) TryBegin() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return "", false
	}

	s.runID = uuid.New().String()
	s.startedAt = s.now()
	s.running = true
	s.stopRequested = false
	s.stopCh = make(chan struct{})
	s.logs = nil
	s.summary = make(map[string]int)

	return s.runID, true
}

// Finish clears the running flag
func (s *RunState) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// RequestStop sets the stop flag and wakes any sleeping worker
func (s *RunState) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopRequested {
		return
	}
	s.stopRequested = true
	close(s.stopCh)
}

// StopRequested reports whether a stop was requested for the current run
func (s *RunState) StopRequested() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopRequested
}

// StopSignal is closed once a stop is requested for the current run
func (s *RunState) StopSignal() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopCh
}

// Running reports whether a worker holds the run slot
func (s *RunState) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// StartedAt is when the current run claimed the slot
func (s *RunState) StartedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startedAt
}

// SetUser records the authenticated account shown by the status endpoint
func (s *RunState) SetUser(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
}

// User returns the authenticated account, empty when logged out
func (s *RunState) User() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// IncrementCommunity records one post into community and returns its new count
func (s *RunState) IncrementCommunity(community string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary[community]++
	return s.summary[community]
}

// Append adds an entry to the log, stamping it if needed and evicting the
// oldest entries past the cap.
func (s *RunState) Append(entry models.LogEntry) {
	s.mu.Lock()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	s.logs = append(s.logs, entry)
	if overflow := len(s.logs) - s.maxEntries; overflow > 0 {
		s.logs = append([]models.LogEntry(nil), s.logs[overflow:]...)
	}
	runID := s.runID
	s.mu.Unlock()

	mirror(runID, entry)
}

// Logs returns a copy of the current log
func (s *RunState) Logs() []models.LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.LogEntry(nil), s.logs...)
}

// Snapshot returns a consistent copy of the run record
func (s *RunState) Snapshot() models.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := make(map[string]int, len(s.summary))
	for k, v := range s.summary {
		summary[k] = v
	}

	return models.Status{
		RunID:         s.runID,
		Running:       s.running,
		StopRequested: s.stopRequested,
		Logs:          append([]models.LogEntry{}, s.logs...),
		Summary:       summary,
		User:          s.user,
	}
}

func mirror(runID string, entry models.LogEntry) {
	fields := logrus.Fields{"event": entry.Event}
	if runID != "" {
		fields["run_id"] = runID
	}
	if entry.Community != "" {
		fields["community"] = entry.Community
	}
	if entry.Title != "" {
		fields["title"] = entry.Title
	}
	if entry.URL != "" {
		fields["url"] = entry.URL
	}
	if entry.ID != "" {
		fields["id"] = entry.ID
	}
	if entry.Query != "" {
		fields["query"] = entry.Query
	}
	if entry.Error != "" {
		fields["error"] = entry.Error
	}
	if entry.Seconds != nil {
		fields["seconds"] = *entry.Seconds
	}
	if entry.Count != nil {
		fields["count"] = *entry.Count
	}

	logger := logrus.WithFields(fields)
	switch entry.Level {
	case models.LevelWarn:
		logger.Warn("run event")
	case models.LevelError:
		logger.Error("run event")
	default:
		logger.Info("run event")
	}
}
