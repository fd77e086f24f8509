package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/azure/brand-mentions-bot/internal/config"
	"github.com/azure/brand-mentions-bot/internal/monitoring"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Runner is the polling work the scheduler drives
type Runner interface {
	RunComments(ctx context.Context) (*monitoring.RunSummary, error)
	RunPosts(ctx context.Context) (*monitoring.RunSummary, error)
}

// Service handles scheduling of polling runs
type Service struct {
	config *config.Config
	runner Runner
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, runner Runner) *Service {
	logger := cron.PrintfLogger(logrus.StandardLogger())
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		config: cfg,
		runner: runner,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start registers the polling jobs and begins scheduling
func (s *Service) Start() error {
	if _, err := s.cron.AddFunc(every(s.config.PollInterval), s.job("comments", s.runner.RunComments)); err != nil {
		return fmt.Errorf("failed to schedule comment polling: %w", err)
	}

	if s.config.EnablePostSearch {
		if _, err := s.cron.AddFunc(every(s.config.PostSearchInterval), s.job("posts", s.runner.RunPosts)); err != nil {
			return fmt.Errorf("failed to schedule post search: %w", err)
		}
	}

	s.cron.Start()
	logrus.Infof("Scheduler started: comments every %v, post search enabled=%v every %v",
		s.config.PollInterval, s.config.EnablePostSearch, s.config.PostSearchInterval)
	return nil
}

// Stop stops the scheduler and waits for running jobs to finish
func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	logrus.Info("Scheduler stopped")
}

// Entries returns the number of registered jobs
func (s *Service) Entries() int {
	return len(s.cron.Entries())
}

func (s *Service) job(name string, run func(context.Context) (*monitoring.RunSummary, error)) func() {
	return func() {
		ctx := s.ctx
		if s.config.RunBudget > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.config.RunBudget)
			defer cancel()
		}

		logrus.Infof("Starting scheduled %s run", name)
		summary, err := run(ctx)
		switch {
		case errors.Is(err, monitoring.ErrRunInProgress):
			logrus.Warnf("Scheduled %s run skipped: previous run still active", name)
		case err != nil:
			logrus.Errorf("Scheduled %s run failed: %v", name, err)
		default:
			logrus.Infof("Scheduled %s run finished: %d new mentions, %d notified", name, summary.Inserted, summary.Notified)
		}
	}
}

func every(d time.Duration) string {
	return "@every " + d.String()
}
