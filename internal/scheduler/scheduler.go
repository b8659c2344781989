package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"postovik/internal/domain"
	"postovik/internal/events"
	"postovik/internal/metrics"
	"postovik/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handler runs one firing of a job. The payload is the job's own JSON.
type Handler func(ctx context.Context, job *models.Job) error

// Options tunes the scheduler loop. Zero values fall back to defaults.
type Options struct {
	Tick           time.Duration
	Grace          time.Duration
	HandlerTimeout time.Duration
	HistoryKeep    int
	DueBatchLimit  int
}

// Scheduler owns the timer loop. Jobs are persisted in the store and picked
// up by fire time; handlers are registered per job kind. All job mutation
// goes through this object, external callers only schedule, cancel and read.
type Scheduler struct {
	store    domain.JobStore
	bus      domain.EventPublisher
	logger   *zerolog.Logger
	handlers map[string]Handler
	mu       sync.RWMutex
	wg       sync.WaitGroup

	tick           time.Duration
	grace          time.Duration
	handlerTimeout time.Duration
	historyKeep    int
	dueBatchLimit  int
}

func NewScheduler(store domain.JobStore, bus domain.EventPublisher, opts Options, logger *zerolog.Logger) *Scheduler {
	if opts.Tick == 0 {
		opts.Tick = time.Second
	}
	if opts.Grace == 0 {
		opts.Grace = models.DefaultMisfireGraceMinutes * time.Minute
	}
	if opts.HandlerTimeout == 0 {
		opts.HandlerTimeout = models.DefaultHandlerTimeoutMinutes * time.Minute
	}
	if opts.HistoryKeep == 0 {
		opts.HistoryKeep = models.DefaultHistoryKeep
	}
	if opts.DueBatchLimit == 0 {
		opts.DueBatchLimit = 100
	}

	return &Scheduler{
		store:          store,
		bus:            bus,
		logger:         logger,
		handlers:       make(map[string]Handler),
		tick:           opts.Tick,
		grace:          opts.Grace,
		handlerTimeout: opts.HandlerTimeout,
		historyKeep:    opts.HistoryKeep,
		dueBatchLimit:  opts.DueBatchLimit,
	}
}

// Register binds a handler to a job kind. Must be called before Start.
func (s *Scheduler) Register(kind string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = handler
}

// Start launches the timer loop in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop waits for the loop to drain after its context is cancelled.
func (s *Scheduler) Stop() {
	s.wg.Wait()
}

// Schedule validates the job and puts it into the registry. The job id is
// assigned here when empty. Past fire times are allowed, they fire on the
// next tick as long as they are still inside the grace window.
func (s *Scheduler) Schedule(ctx context.Context, job *models.Job) (string, error) {
	if err := s.validate(job); err != nil {
		return "", err
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = models.StatusPending

	if job.Kind == models.KindFolderWatch && job.FireAt.IsZero() {
		job.FireAt = time.Now().Add(time.Duration(job.IntervalMinutes) * time.Minute)
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return "", err
	}

	metrics.IncScheduled(job.Kind)
	_ = s.bus.PublishJSON(events.EventJobScheduled, events.JobEventPayload{
		JobID:  job.ID,
		Kind:   job.Kind,
		Status: job.Status,
		FireAt: job.FireAt,
	})

	s.logger.Info().
		Str("job_id", job.ID).
		Str("kind", job.Kind).
		Time("fire_at", job.FireAt).
		Msg("Job scheduled")

	return job.ID, nil
}

// Cancel takes a pending job out of the rotation. A running job is accepted
// too, but the in-flight attempt is not interrupted; it just does not come
// back afterwards.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	if err := s.store.CancelJob(ctx, id); err != nil {
		return err
	}

	_ = s.bus.PublishJSON(events.EventJobCancelled, events.JobEventPayload{
		JobID:  id,
		Status: models.StatusCancelled,
	})

	s.logger.Info().Str("job_id", id).Msg("Job cancelled")
	return nil
}

// List returns summaries of active jobs ordered by next fire time.
func (s *Scheduler) List(ctx context.Context) ([]models.JobSummary, error) {
	jobs, err := s.store.ListActiveJobs(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.JobSummary, 0, len(jobs))
	for i := range jobs {
		summaries = append(summaries, jobs[i].Summary())
	}
	return summaries, nil
}

// Reconfigure atomically replaces payload and interval of a recurring job.
// The fire time only moves forward to an earlier slot when the new interval
// would reach it sooner than the currently planned one.
func (s *Scheduler) Reconfigure(ctx context.Context, id, payload string, intervalMinutes int) error {
	if intervalMinutes < 1 {
		return models.NewConfigError("interval_minutes", "must be at least 1")
	}

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Kind != models.KindFolderWatch {
		return models.NewConfigError("kind", "only folder watch jobs can be reconfigured")
	}

	next := job.FireAt
	if proposed := time.Now().Add(time.Duration(intervalMinutes) * time.Minute); proposed.Before(next) {
		next = proposed
	}

	if err := s.store.UpdateJobPayload(ctx, id, payload, intervalMinutes, next); err != nil {
		return err
	}

	s.logger.Info().
		Str("job_id", id).
		Int("interval_minutes", intervalMinutes).
		Time("fire_at", next).
		Msg("Job reconfigured")
	return nil
}

func (s *Scheduler) validate(job *models.Job) error {
	switch job.Kind {
	case models.KindOneShotEmail:
		if job.FireAt.IsZero() {
			return models.NewConfigError("fire_time", "is required")
		}
		var payload models.EmailPayload
		if err := json.Unmarshal([]byte(job.Payload), &payload); err != nil {
			return models.NewConfigError("payload", "is not valid JSON")
		}
		if strings.TrimSpace(payload.To) == "" {
			return models.NewConfigError("to", "recipient is required")
		}
	case models.KindFolderWatch:
		if job.IntervalMinutes < 1 {
			return models.NewConfigError("interval_minutes", "must be at least 1")
		}
	default:
		return models.NewConfigError("kind", fmt.Sprintf("unknown job kind %q", job.Kind))
	}
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	// Возвращаем задачи, зависшие в running после аварийного завершения
	if n, err := s.store.ResetRunningJobs(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Failed to reset interrupted jobs")
	} else if n > 0 {
		s.logger.Warn().Int64("count", n).Msg("Returned interrupted jobs to pending")
	}

	s.logger.Info().Dur("tick", s.tick).Msg("Scheduler started")
	defer s.logger.Info().Msg("Scheduler stopped")

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickOnce(ctx)
		}
	}
}

func (s *Scheduler) tickOnce(ctx context.Context) {
	now := time.Now()
	due, err := s.store.DueJobs(ctx, now, s.dueBatchLimit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to query due jobs")
		return
	}

	for i := range due {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.dispatch(ctx, &due[i], now)
	}
}

// dispatch claims one due job and runs it. Jobs run sequentially within a
// tick; one job's failure never reaches another job's timer.
func (s *Scheduler) dispatch(ctx context.Context, job *models.Job, now time.Time) {
	if err := s.store.MarkJobRunning(ctx, job.ID, now); err != nil {
		// Задача была отменена между выборкой и захватом
		if !errors.Is(err, models.ErrJobNotFound) {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to claim job")
		}
		return
	}

	if late := now.Sub(job.FireAt); late > s.grace {
		s.expireMissed(ctx, job, late)
		return
	}

	s.runHandler(ctx, job)
}

// expireMissed resolves a job whose fire time plus grace elapsed before the
// scheduler could run it. One-shot jobs fail with the missed-window reason,
// the handler never runs. Recurring jobs skip the missed run and realign,
// there is no catch-up burst after an outage.
func (s *Scheduler) expireMissed(ctx context.Context, job *models.Job, late time.Duration) {
	wctx := context.WithoutCancel(ctx)

	if job.Kind == models.KindFolderWatch {
		next := time.Now().Add(time.Duration(job.IntervalMinutes) * time.Minute)
		if err := s.store.CompleteJob(wctx, job.ID, "", job.LastError, &next); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to realign missed job")
		}
		s.logger.Warn().
			Str("job_id", job.ID).
			Dur("late", late).
			Time("next_fire_at", next).
			Msg("Skipping missed watch run")
		return
	}

	reason := models.ErrMissedWindow.Error()
	if err := s.store.CompleteJob(wctx, job.ID, models.StatusFailed, &reason, nil); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to expire missed job")
	}

	metrics.IncCompleted(job.Kind, models.StatusFailed)
	_ = s.bus.PublishJSON(events.EventJobFailed, events.JobEventPayload{
		JobID:  job.ID,
		Kind:   job.Kind,
		Status: models.StatusFailed,
		FireAt: job.FireAt,
		Error:  reason,
	})

	s.logger.Warn().
		Str("job_id", job.ID).
		Dur("late", late).
		Msg("Job missed its window")

	s.prune(wctx)
}

func (s *Scheduler) runHandler(ctx context.Context, job *models.Job) {
	s.mu.RLock()
	handler := s.handlers[job.Kind]
	s.mu.RUnlock()

	start := time.Now()
	var err error
	if handler == nil {
		err = fmt.Errorf("no handler registered for kind %q", job.Kind)
	} else {
		hctx, cancel := context.WithTimeout(ctx, s.handlerTimeout)
		err = s.invoke(hctx, handler, job)
		cancel()
	}
	duration := time.Since(start)

	metrics.ObserveJobDuration(job.Kind, duration)
	s.finish(ctx, job, err, duration)
}

// invoke shields the loop from a panicking handler.
func (s *Scheduler) invoke(ctx context.Context, handler Handler, job *models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("job_id", job.ID).
				Interface("panic", r).
				Msg("Job handler panicked")
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return handler(ctx, job)
}

// finish writes the outcome. Recurring jobs go back into the rotation at
// now + interval whether the run succeeded or not; one-shot jobs go
// terminal. The write survives shutdown so a finished run is never refired.
func (s *Scheduler) finish(ctx context.Context, job *models.Job, runErr error, duration time.Duration) {
	wctx := context.WithoutCancel(ctx)

	var errMsg *string
	if runErr != nil {
		m := runErr.Error()
		errMsg = &m
	}

	if job.Kind == models.KindFolderWatch {
		next := time.Now().Add(time.Duration(job.IntervalMinutes) * time.Minute)
		if err := s.store.CompleteJob(wctx, job.ID, "", errMsg, &next); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to re-enqueue watch job")
		}

		if runErr != nil {
			metrics.IncCompleted(job.Kind, models.StatusFailed)
			_ = s.bus.PublishJSON(events.EventJobFailed, events.JobEventPayload{
				JobID:      job.ID,
				Kind:       job.Kind,
				Status:     models.StatusPending,
				FireAt:     next,
				Error:      runErr.Error(),
				DurationMS: duration.Milliseconds(),
			})
			s.logger.Error().
				Err(runErr).
				Str("job_id", job.ID).
				Time("next_fire_at", next).
				Msg("Watch run failed, job stays active")
		} else {
			metrics.IncCompleted(job.Kind, models.StatusSucceeded)
			s.logger.Debug().
				Str("job_id", job.ID).
				Dur("duration", duration).
				Time("next_fire_at", next).
				Msg("Watch run finished")
		}
		return
	}

	status := models.StatusSucceeded
	eventType := events.EventJobCompleted
	if runErr != nil {
		status = models.StatusFailed
		eventType = events.EventJobFailed
	}

	if err := s.store.CompleteJob(wctx, job.ID, status, errMsg, nil); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to complete job")
	}

	metrics.IncCompleted(job.Kind, status)
	payload := events.JobEventPayload{
		JobID:      job.ID,
		Kind:       job.Kind,
		Status:     status,
		FireAt:     job.FireAt,
		DurationMS: duration.Milliseconds(),
	}
	if runErr != nil {
		payload.Error = runErr.Error()
	}
	_ = s.bus.PublishJSON(eventType, payload)

	if runErr != nil {
		s.logger.Error().
			Err(runErr).
			Str("job_id", job.ID).
			Str("kind", job.Kind).
			Msg("Job failed")
	} else {
		s.logger.Info().
			Str("job_id", job.ID).
			Str("kind", job.Kind).
			Dur("duration", duration).
			Msg("Job finished")
	}

	s.prune(wctx)
}

func (s *Scheduler) prune(ctx context.Context) {
	if err := s.store.PruneTerminalJobs(ctx, s.historyKeep); err != nil {
		s.logger.Error().Err(err).Msg("Failed to prune job history")
	}
}
