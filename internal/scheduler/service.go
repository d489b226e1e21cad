package scheduler

import (
	"errors"
	"fmt"

	"github.com/palma21/referral-drip-bot/internal/config"
	"github.com/palma21/referral-drip-bot/internal/drip"
	"github.com/palma21/referral-drip-bot/internal/models"
	"github.com/palma21/referral-drip-bot/internal/presets"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Starter launches a drip run
type Starter interface {
	Start(cfg models.RunConfig) (string, error)
}

// Service handles scheduling of drip runs
type Service struct {
	config  *config.Config
	starter Starter
	presets map[string]models.Preset
	cron    *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, starter Starter, available map[string]models.Preset) *Service {
	return &Service{
		config:  cfg,
		starter: starter,
		presets: available,
		cron:    cron.New(cron.WithSeconds()),
	}
}

// Start begins the scheduled runs; an empty schedule leaves the scheduler idle
func (s *Service) Start() error {
	if s.config.RunSchedule == "" {
		logrus.Info("No run schedule configured, scheduled runs disabled")
		return nil
	}

	runCfg, err := s.runConfig()
	if err != nil {
		return err
	}

	_, err = s.cron.AddFunc(s.config.RunSchedule, func() {
		s.trigger(runCfg)
	})
	if err != nil {
		return fmt.Errorf("invalid run schedule %q: %w", s.config.RunSchedule, err)
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with schedule %q for preset %s", s.config.RunSchedule, s.config.RunPreset)
	return nil
}

// Stop stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}

func (s *Service) runConfig() (models.RunConfig, error) {
	preset, ok := s.presets[s.config.RunPreset]
	if !ok {
		return models.RunConfig{}, fmt.Errorf("unknown preset %q", s.config.RunPreset)
	}

	cfg := models.RunConfig{
		Message:   s.config.RunMessage,
		RefCode:   s.config.RunRefCode,
		RefLink:   s.config.RunRefLink,
		DryRun:    s.config.RunDryRun,
		Allowlist: models.StringList(s.config.RunAllowlist),
	}
	return presets.Apply(cfg, preset), nil
}

func (s *Service) trigger(cfg models.RunConfig) {
	logrus.Infof("Starting scheduled drip run for %s", cfg.Brand)

	runID, err := s.starter.Start(cfg)
	switch {
	case errors.Is(err, drip.ErrAlreadyRunning):
		logrus.Warn("Skipping scheduled run: a job is already running")
	case err != nil:
		logrus.Errorf("Scheduled drip run failed to start: %v", err)
	default:
		logrus.Infof("Scheduled drip run %s started", runID)
	}
}
