package gc

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/shipyard-neo/bay/internal/metrics"
)

// Scheduler runs its Tasks in order once per Interval, or immediately on
// demand via RunOnce. A run_lock ensures the periodic loop and a manual
// trigger (e.g. an admin HTTP endpoint) never execute a cycle
// concurrently; a fixed cron expression was considered and rejected for
// this reason (see DESIGN.md) in favor of this ticker-and-mutex loop.
type Scheduler struct {
	tasks       []Task
	interval    time.Duration
	coordinator Coordinator
	instanceID  string
	log         zerolog.Logger

	runLock sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewScheduler(tasks []Task, interval time.Duration, coordinator Coordinator, instanceID string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		tasks:       tasks,
		interval:    interval,
		coordinator: coordinator,
		instanceID:  instanceID,
		log:         log.With().Str("component", "gc.scheduler").Logger(),
	}
}

// Start runs the periodic loop in a background goroutine until Stop is
// called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.backgroundLoop(ctx)
}

func (s *Scheduler) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) backgroundLoop(ctx context.Context) {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single GC cycle if this instance holds the
// coordinator's lease and no other cycle is already in progress on this
// instance. It starts a fresh pass over current state each call: there is
// no transaction spanning the whole cycle, since a long-lived snapshot
// would go stale under SQLite's isolation model while tasks run.
func (s *Scheduler) RunOnce(ctx context.Context) []Result {
	if !s.runLock.TryLock() {
		s.log.Debug().Msg("GC cycle already running on this instance, skipping")
		return nil
	}
	defer s.runLock.Unlock()

	acquired, err := s.coordinator.Acquire(ctx, s.instanceID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to acquire GC coordinator lease")
		return nil
	}
	if !acquired {
		s.log.Debug().Msg("another instance holds the GC lease, skipping cycle")
		return nil
	}
	defer s.coordinator.Release(ctx, s.instanceID)

	results := make([]Result, 0, len(s.tasks))
	for _, task := range s.tasks {
		results = append(results, s.runTask(ctx, task))
	}
	return results
}

func (s *Scheduler) runTask(ctx context.Context, task Task) Result {
	start := time.Now()
	result := task.Run(ctx)

	metrics.GCCleanedTotal.WithLabelValues(result.TaskName).Add(float64(result.Cleaned))
	metrics.GCErrorsTotal.WithLabelValues(result.TaskName).Add(float64(len(result.Errors)))

	logEvent := s.log.Info()
	if len(result.Errors) > 0 {
		logEvent = s.log.Warn()
	}
	logEvent.
		Str("task", result.TaskName).
		Int("cleaned", result.Cleaned).
		Int("errors", len(result.Errors)).
		Dur("duration", time.Since(start)).
		Msg("GC task completed")
	return result
}
