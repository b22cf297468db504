package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/i474232898/forecast-panels/internal/logger"
	"go.uber.org/atomic"
)

var ErrInvalidInterval = errors.New("refresh interval must be positive")

// Scheduler emits a tick on every interval. The first tick comes one interval
// after Start. Ticks are buffered one deep: while the consumer is busy, later
// ticks are dropped rather than queued.
type Scheduler struct {
	scheduler *gocron.Scheduler
	interval  time.Duration
	ticks     chan time.Time
	dropped   atomic.Int64
	log       logger.Logger
}

// New creates a Scheduler. A nil logger discards scheduler logs.
func New(interval time.Duration, log logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		interval:  interval,
		ticks:     make(chan time.Time, 1),
		log:       log,
	}
}

// Ticks is the channel the refresh loop subscribes to.
func (s *Scheduler) Ticks() <-chan time.Time {
	return s.ticks
}

// Dropped counts ticks discarded because the previous one was still pending.
func (s *Scheduler) Dropped() int64 {
	return s.dropped.Load()
}

// Start schedules the interval job and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		return ErrInvalidInterval
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(s.tick)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.log.Info(context.Background(), "scheduler started", logger.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) tick() {
	select {
	case s.ticks <- time.Now():
	default:
		s.dropped.Inc()
		s.log.Debug(context.Background(), "tick dropped, refresh still pending")
	}
}

// Stop stops the scheduler and cancels any future ticks.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
