package drip

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/palma21/referral-drip-bot/internal/models"
	"github.com/palma21/referral-drip-bot/internal/platform"
	"github.com/palma21/referral-drip-bot/internal/state"
	"github.com/sirupsen/logrus"
)

var (
	// ErrAlreadyRunning rejects a start while a worker is active
	ErrAlreadyRunning = errors.New("a job is already running")
	// ErrNotAuthenticated rejects a start when no credential is held
	ErrNotAuthenticated = errors.New("not logged in via Reddit OAuth")
)

// Credentials yields the durable refresh credential, if one is held
type Credentials interface {
	RefreshToken() (string, bool)
}

// Notifier receives a summary when a run finishes
type Notifier interface {
	SendRunSummary(summary *models.RunSummary) error
}

// Archiver persists the log of a finished run
type Archiver interface {
	ArchiveRun(summary *models.RunSummary, entries []models.LogEntry) error
}

// Sleeper blocks for d, returning early when wake is closed or ctx is done
type Sleeper func(ctx context.Context, d time.Duration, wake <-chan struct{})

// Service owns the single drip worker and the start/stop/status operations
type Service struct {
	state    *state.RunState
	creds    Credentials
	factory  platform.Factory
	notifier Notifier
	archiver Archiver

	ctx   context.Context
	now   func() time.Time
	sleep Sleeper

	wg sync.WaitGroup
}

// Option customizes a Service
type Option func(*Service)

// WithNotifier sends run summaries through n
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithArchiver archives finished run logs through a
func WithArchiver(a Archiver) Option {
	return func(s *Service) { s.archiver = a }
}

// WithClock replaces the time source and sleep implementation
func WithClock(now func() time.Time, sleep Sleeper) Option {
	return func(s *Service) {
		s.now = now
		s.sleep = sleep
	}
}

// WithContext bounds the worker's external calls to ctx
func WithContext(ctx context.Context) Option {
	return func(s *Service) { s.ctx = ctx }
}

// NewService creates a new drip service
func NewService(st *state.RunState, creds Credentials, factory platform.Factory, opts ...Option) *Service {
	s := &Service{
		state:   st,
		creds:   creds,
		factory: factory,
		ctx:     context.Background(),
		now:     time.Now,
		sleep:   timerSleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start validates cfg and launches the worker in the background.
// It returns the new run identifier without waiting for the worker.
func (s *Service) Start(cfg models.RunConfig) (string, error) {
	if s.state.Running() {
		return "", ErrAlreadyRunning
	}

	token, ok := s.creds.RefreshToken()
	if !ok {
		return "", ErrNotAuthenticated
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	runID, ok := s.state.TryBegin()
	if !ok {
		return "", ErrAlreadyRunning
	}

	w := &worker{
		Service: s,
		runID:   runID,
		cfg:     cfg,
		client:  s.factory(token),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		w.run()
	}()

	logrus.Infof("Started drip run %s (dry_run=%t)", runID, cfg.DryRun)
	return runID, nil
}

// Stop requests the active worker to stop; it always succeeds
func (s *Service) Stop() {
	s.state.RequestStop()
}

// Status returns a snapshot of the run state
func (s *Service) Status() models.Status {
	status := s.state.Snapshot()
	_, status.LoggedIn = s.creds.RefreshToken()
	return status
}

// Wait blocks until the active worker, if any, has finished or ctx is done
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for worker: %w", ctx.Err())
	}
}

func timerSleep(ctx context.Context, d time.Duration, wake <-chan struct{}) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-wake:
	case <-ctx.Done():
	}
}
