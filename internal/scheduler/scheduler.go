package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/weather-etl/internal/weather"
)

// Runner is the single entry point the scheduler invokes.
type Runner interface {
	Run(ctx context.Context) (weather.RunResult, error)
}

// Scheduler periodically runs the weather pipeline.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	runner     Runner
	interval   time.Duration
	cronExpr   string
	runTimeout time.Duration
	logger     *logrus.Entry
}

// New creates a new Scheduler. cronExpr, when non-empty, takes precedence
// over interval.
func New(runner Runner, interval time.Duration, cronExpr string, runTimeout time.Duration, logger *logrus.Entry) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	// A run still in flight when the next tick fires is not duplicated.
	s.SingletonModeAll()
	return &Scheduler{
		scheduler:  s,
		runner:     runner,
		interval:   interval,
		cronExpr:   cronExpr,
		runTimeout: runTimeout,
		logger:     logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler. The
// first run fires immediately in interval mode.
func (s *Scheduler) Start() error {
	var err error
	if s.cronExpr != "" {
		_, err = s.scheduler.Cron(s.cronExpr).Do(s.runOnce)
	} else {
		if s.interval <= 0 {
			return errors.New("scheduler: interval must be positive")
		}
		_, err = s.scheduler.Every(s.interval).Do(s.runOnce)
	}
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.WithFields(logrus.Fields{
		"interval": s.interval.String(),
		"cron":     s.cronExpr,
	}).Info("scheduler started")
	return nil
}

func (s *Scheduler) runOnce() {
	s.logger.Info("scheduler: running weather etl job")

	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	// The pipeline logs its own failures; the scheduler only notes the tick.
	if _, err := s.runner.Run(ctx); err != nil {
		s.logger.WithError(err).Warn("scheduler: weather etl job failed")
		return
	}
	s.logger.Info("scheduler: completed weather etl job")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
