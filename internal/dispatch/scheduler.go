package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Materializer generates events for every template.
type Materializer interface {
	MaterializeAll(ctx context.Context) (int, error)
}

// Scheduler drives the dispatch tick and the periodic materialization sweep.
type Scheduler struct {
	cron         *cron.Cron
	dispatcher   *Dispatcher
	materializer Materializer
	tickSpec     string
	sweepSpec    string
	logger       *slog.Logger
}

// NewScheduler creates a scheduler. Specs use the robfig/cron syntax with
// an optional seconds field, e.g. "@every 1m" or "0 * * * * *".
func NewScheduler(dispatcher *Dispatcher, materializer Materializer, tickSpec, sweepSpec string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger: logger.With("component", "cron")}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cron.NewParser(cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		dispatcher:   dispatcher,
		materializer: materializer,
		tickSpec:     tickSpec,
		sweepSpec:    sweepSpec,
		logger:       logger,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	s.logger.Info("starting reminder scheduler", "tick", s.tickSpec, "materialize", s.sweepSpec)

	if _, err := s.cron.AddFunc(s.tickSpec, s.tick); err != nil {
		return fmt.Errorf("scheduling tick %q: %w", s.tickSpec, err)
	}
	if s.materializer != nil && s.sweepSpec != "" {
		if _, err := s.cron.AddFunc(s.sweepSpec, s.sweep); err != nil {
			return fmt.Errorf("scheduling materialization %q: %w", s.sweepSpec, err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop waits for running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping reminder scheduler")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("reminder scheduler stopped")
}

func (s *Scheduler) tick() {
	if _, err := s.dispatcher.Tick(context.Background()); err != nil {
		s.logger.Error("dispatch tick failed", "error", err)
	}
}

func (s *Scheduler) sweep() {
	created, err := s.materializer.MaterializeAll(context.Background())
	if err != nil {
		s.logger.Error("materialization sweep failed", "error", err)
		return
	}
	if created > 0 {
		s.logger.Info("materialized events", "count", created)
	}
}
