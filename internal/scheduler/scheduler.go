// Package scheduler runs named cron jobs and records every firing in
// the ledger.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/homed/internal/ledger"
)

// Job is a scheduled callback. It receives the scheduler's run context,
// which is cancelled on shutdown.
type Job func(ctx context.Context)

// Scheduler wraps a cron runner with named jobs and occurrence
// bookkeeping. Each firing is recorded under an occurrence key derived
// from the scheduled time, so two instances sharing a database cannot
// both handle the same occurrence.
type Scheduler struct {
	cron   *cron.Cron
	ledger *ledger.Ledger

	mu      sync.Mutex
	jobs    map[string]cron.EntryID
	baseCtx context.Context
}

// New creates a scheduler firing in the given timezone.
func New(l *ledger.Ledger, tz *time.Location) *Scheduler {
	if tz == nil {
		tz = time.Local
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(tz),
			cron.WithChain(cron.Recover(cronLogger{})),
		),
		ledger:  l,
		jobs:    make(map[string]cron.EntryID),
		baseCtx: context.Background(),
	}
}

// Add registers a job under an id. Registering the same id again
// replaces the previous schedule.
func (s *Scheduler) Add(id, expr string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.jobs[id]; ok {
		s.cron.Remove(old)
	}

	eid, err := s.cron.AddFunc(expr, func() { s.fire(id, job) })
	if err != nil {
		return fmt.Errorf("schedule %q (%q): %w", id, expr, err)
	}
	s.jobs[id] = eid

	log.Debug().
		Str("schedule_id", id).
		Str("expr", expr).
		Msg("Schedule registered")
	return nil
}

// Remove drops a schedule. Unknown ids are ignored.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if eid, ok := s.jobs[id]; ok {
		s.cron.Remove(eid)
		delete(s.jobs, id)
	}
}

// Len returns the number of registered schedules.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Start begins firing jobs. The context is handed to every job; it does
// not stop the cron loop, use Stop for that.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	count := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	log.Info().Int("schedules", count).Msg("Scheduler started")
}

// Stop halts firing and waits for running jobs to finish, bounded by
// the context.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		log.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) fire(id string, job Job) {
	s.mu.Lock()
	eid, ok := s.jobs[id]
	ctx := s.baseCtx
	s.mu.Unlock()
	if !ok {
		return
	}

	s.runOccurrence(ctx, id, s.cron.Entry(eid).Prev, job)
}

// runOccurrence records one firing and runs the job. The zero time
// disables deduplication.
func (s *Scheduler) runOccurrence(ctx context.Context, id string, occurredAt time.Time, job Job) {
	var key string
	if !occurredAt.IsZero() {
		key = fmt.Sprintf("%s/%d", id, occurredAt.Unix())
	}

	if key != "" && s.ledger.HasCompleted(key) {
		log.Debug().Str("occurrence", key).Msg("Occurrence already handled, skipping")
		return
	}
	if err := s.ledger.Append(ledger.EventScheduleFired, key, map[string]any{"schedule_id": id}); err != nil {
		log.Error().Err(err).Str("schedule_id", id).Msg("Failed to record schedule firing")
	}

	log.Debug().
		Str("schedule_id", id).
		Str("occurrence", key).
		Msg("Schedule fired")
	job(ctx)
}

// cronLogger adapts the cron library's logging calls to zerolog. Info
// chatter is dropped, only panics recovered by the job chain surface.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Msg("Scheduler: " + msg)
}
