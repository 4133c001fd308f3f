package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lakeside-credit/spread-cli/internal/model"
	"github.com/lakeside-credit/spread-cli/internal/store"
)

// Handler processes one leased job. It must be safe to re-run from scratch:
// any side effects are idempotent upserts.
type Handler func(ctx context.Context, job *model.Job) error

// WorkerConfig tunes the polling loop.
type WorkerConfig struct {
	Concurrency  int           `yaml:"concurrency" mapstructure:"concurrency"`
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// Worker polls the scheduler for due jobs and dispatches them to registered
// stage handlers. Multiple workers may run against the same queue; lease
// exclusivity is enforced by the store, not by anything in-process.
type Worker struct {
	sched    *Scheduler
	filter   store.JobFilter
	handlers map[model.JobKind]Handler
	cfg      WorkerConfig
}

// NewWorker creates a Worker with no handlers registered.
func NewWorker(sched *Scheduler, filter store.JobFilter, cfg WorkerConfig) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Worker{
		sched:    sched,
		filter:   filter,
		handlers: make(map[model.JobKind]Handler),
		cfg:      cfg,
	}
}

// Register binds a handler to a job kind, replacing any previous binding.
func (w *Worker) Register(kind model.JobKind, h Handler) {
	w.handlers[kind] = h
}

// Run polls until ctx is canceled. Each of the configured goroutines leases
// and processes jobs independently.
func (w *Worker) Run(ctx context.Context) error {
	log := zap.L().With(zap.Int("concurrency", w.cfg.Concurrency))
	log.Info("worker: starting poll loop")

	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error {
			return w.poll(gCtx)
		})
	}
	err := g.Wait()
	if err != nil && !eris.Is(err, context.Canceled) {
		return eris.Wrap(err, "worker: poll loop")
	}
	log.Info("worker: stopped")
	return nil
}

func (w *Worker) poll(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// Drain everything currently due before sleeping.
		for {
			job, err := w.sched.Lease(ctx, w.filter)
			if err != nil {
				zap.L().Warn("worker: lease failed", zap.Error(err))
				break
			}
			if job == nil {
				break
			}
			w.process(ctx, job)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// process dispatches one leased job and records the outcome. Handler panics
// are converted to ordinary failures so a bad document cannot kill the loop.
func (w *Worker) process(ctx context.Context, job *model.Job) {
	log := zap.L().With(
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("case_id", job.CaseID),
		zap.Int("attempt", job.Attempt),
	)

	handler, ok := w.handlers[job.Kind]
	if !ok {
		// Unknown kinds are terminal: retrying cannot help.
		log.Error("worker: no handler registered")
		_ = w.sched.FailOrRetry(ctx, &model.Job{
			ID: job.ID, Kind: job.Kind, Attempt: job.MaxAttempts, MaxAttempts: job.MaxAttempts,
		}, eris.Errorf("no handler registered for kind %s", job.Kind))
		return
	}

	start := time.Now()
	err := runHandler(ctx, handler, job)
	duration := time.Since(start)

	if err != nil {
		if retryErr := w.sched.FailOrRetry(ctx, job, err); retryErr != nil {
			log.Error("worker: failed to record job failure", zap.Error(retryErr))
		}
		return
	}

	if completeErr := w.sched.Complete(ctx, job.ID); completeErr != nil {
		log.Error("worker: failed to record job success", zap.Error(completeErr))
		return
	}
	log.Info("worker: job complete", zap.Duration("duration", duration))
}

func runHandler(ctx context.Context, handler Handler, job *model.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.New(fmt.Sprintf("handler panic: %v", r))
		}
	}()
	return handler(ctx, job)
}
