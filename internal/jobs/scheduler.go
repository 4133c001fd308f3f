// Package jobs implements the generic lease-based job engine that drives the
// extraction and rendering pipeline. Workers poll for due jobs; the
// datastore's atomic conditional update is the sole mutual-exclusion
// mechanism, so any number of worker processes may run concurrently.
package jobs

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lakeside-credit/spread-cli/internal/model"
	"github.com/lakeside-credit/spread-cli/internal/resilience"
	"github.com/lakeside-credit/spread-cli/internal/store"
)

// SchedulerConfig tunes lease TTL and retry backoff.
type SchedulerConfig struct {
	LeaseTTL    time.Duration `yaml:"lease_ttl" mapstructure:"lease_ttl"`
	BackoffBase time.Duration `yaml:"backoff_base" mapstructure:"backoff_base"`
	BackoffCap  time.Duration `yaml:"backoff_cap" mapstructure:"backoff_cap"`
}

// DefaultSchedulerConfig returns the scheduler defaults: 3 minute leases,
// 30s base backoff capped at 15 minutes.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		LeaseTTL:    3 * time.Minute,
		BackoffBase: 30 * time.Second,
		BackoffCap:  15 * time.Minute,
	}
}

// Scheduler owns all job status transitions. Handlers must be idempotent
// because a lease can expire mid-run and the job be re-leased from scratch.
type Scheduler struct {
	store store.Store
	cfg   SchedulerConfig
	owner string
	now   func() time.Time
}

// NewScheduler creates a Scheduler leasing on behalf of the named owner
// (typically hostname + pid).
func NewScheduler(st store.Store, cfg SchedulerConfig, owner string) *Scheduler {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 3 * time.Minute
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 30 * time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 15 * time.Minute
	}
	return &Scheduler{store: st, cfg: cfg, owner: owner, now: func() time.Time { return time.Now().UTC() }}
}

// Enqueue creates a queued job, due immediately.
func (s *Scheduler) Enqueue(ctx context.Context, kind model.JobKind, tenantID, caseID string, metadata map[string]any) (*model.Job, error) {
	job, err := s.store.EnqueueJob(ctx, model.Job{
		TenantID: tenantID,
		CaseID:   caseID,
		Kind:     kind,
		Metadata: metadata,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "jobs: enqueue %s", kind)
	}
	zap.L().Info("jobs: enqueued",
		zap.String("job_id", job.ID),
		zap.String("kind", string(kind)),
		zap.String("case_id", caseID),
	)
	return job, nil
}

// Lease claims the next due job matching the filter, or returns nil when the
// queue has nothing due. A lease that expires without completion becomes
// re-leasable once leased_until passes; the lease predicate itself reclaims
// stale leases, there is no separate reaper.
func (s *Scheduler) Lease(ctx context.Context, filter store.JobFilter) (*model.Job, error) {
	job, err := s.store.LeaseJob(ctx, filter, s.owner, s.cfg.LeaseTTL)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: lease")
	}
	return job, nil
}

// Complete marks a leased job as succeeded and clears its error.
func (s *Scheduler) Complete(ctx context.Context, jobID string) error {
	if err := s.store.CompleteJob(ctx, jobID); err != nil {
		return eris.Wrapf(err, "jobs: complete %s", jobID)
	}
	return nil
}

// FailOrRetry records a handler failure: requeue with exponential backoff, or
// mark terminally failed once attempts are exhausted. The error message is
// retained in both cases for diagnosis.
func (s *Scheduler) FailOrRetry(ctx context.Context, job *model.Job, handlerErr error) error {
	errMsg := handlerErr.Error()

	if job.Attempt >= job.MaxAttempts {
		zap.L().Error("jobs: terminal failure",
			zap.String("job_id", job.ID),
			zap.String("kind", string(job.Kind)),
			zap.Int("attempt", job.Attempt),
			zap.Error(handlerErr),
		)
		if err := s.store.FailJob(ctx, job.ID, job.Attempt, errMsg); err != nil {
			return eris.Wrapf(err, "jobs: fail %s", job.ID)
		}
		return nil
	}

	delay := Backoff(job.Attempt, s.cfg.BackoffBase, s.cfg.BackoffCap)
	nextRunAt := s.now().Add(delay)

	zap.L().Warn("jobs: retrying after failure",
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.Int("attempt", job.Attempt),
		zap.Duration("backoff", delay),
		zap.Error(handlerErr),
	)
	if err := s.store.RequeueJob(ctx, job.ID, job.Attempt, nextRunAt, errMsg); err != nil {
		return eris.Wrapf(err, "jobs: requeue %s", job.ID)
	}
	return nil
}

// Backoff computes the requeue delay for a given attempt number:
// min(base * 2^attempt, cap). Jitter stays off so successive delays are
// monotonically non-decreasing.
func Backoff(attempt int, base, cap time.Duration) time.Duration {
	return resilience.Delay(attempt, resilience.RetryConfig{
		InitialBackoff: base,
		MaxBackoff:     cap,
		Multiplier:     2,
	})
}
