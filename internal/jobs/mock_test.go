package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lakeside-credit/spread-cli/internal/model"
	"github.com/lakeside-credit/spread-cli/internal/store"
)

// memStore is an in-memory Store for scheduler and worker tests. Its LeaseJob
// mirrors the SQL lease predicate under a mutex, so concurrent lease attempts
// behave like the database's atomic conditional update.
type memStore struct {
	mu    sync.Mutex
	jobs  map[string]*model.Job
	facts []model.Fact
	now   func() time.Time
}

func newMemStore() *memStore {
	return &memStore{
		jobs: make(map[string]*model.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *memStore) EnqueueJob(_ context.Context, job model.Job) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 5
	}
	job.Status = model.JobStatusQueued
	if job.NextRunAt.IsZero() {
		job.NextRunAt = m.now()
	}
	cp := job
	m.jobs[job.ID] = &cp
	return &job, nil
}

func (m *memStore) LeaseJob(_ context.Context, filter store.JobFilter, owner string, ttl time.Duration) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, j := range m.jobs {
		due := j.Status == model.JobStatusQueued && !j.NextRunAt.After(now)
		stale := j.Status == model.JobStatusRunning && j.LeasedUntil != nil && !j.LeasedUntil.After(now)
		if !due && !stale {
			continue
		}
		if filter.Kind != "" && j.Kind != filter.Kind {
			continue
		}
		if filter.TenantID != "" && j.TenantID != filter.TenantID {
			continue
		}
		j.Status = model.JobStatusRunning
		j.Attempt++
		j.LeaseOwner = owner
		until := now.Add(ttl)
		j.LeasedUntil = &until
		cp := *j
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) CompleteJob(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[jobID]
	j.Status = model.JobStatusSucceeded
	j.Error = ""
	j.LeaseOwner = ""
	j.LeasedUntil = nil
	return nil
}

func (m *memStore) RequeueJob(_ context.Context, jobID string, attempt int, nextRunAt time.Time, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[jobID]
	j.Status = model.JobStatusQueued
	j.Attempt = attempt
	j.NextRunAt = nextRunAt
	j.Error = errMsg
	j.LeaseOwner = ""
	j.LeasedUntil = nil
	return nil
}

func (m *memStore) FailJob(_ context.Context, jobID string, attempt int, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[jobID]
	j.Status = model.JobStatusFailed
	j.Attempt = attempt
	j.Error = errMsg
	j.LeaseOwner = ""
	j.LeasedUntil = nil
	return nil
}

func (m *memStore) GetJob(_ context.Context, jobID string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) ListJobs(_ context.Context, _ store.JobListFilter) ([]model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Job
	for _, j := range m.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (m *memStore) UpsertFacts(_ context.Context, facts []model.Fact) ([]store.UpsertResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var results []store.UpsertResult
	for _, f := range facts {
		m.facts = append(m.facts, f)
		results = append(results, store.UpsertResult{FactKey: f.FactKey, Inserted: true})
	}
	return results, nil
}

func (m *memStore) DeleteFactsForDocument(context.Context, string, string, string, model.FactType) (int, error) {
	return 0, nil
}

func (m *memStore) LatestFact(context.Context, string, string, model.FactType, string, *time.Time) (*model.Fact, error) {
	return nil, nil
}

func (m *memStore) ListFacts(context.Context, string, string, model.FactType) ([]model.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Fact(nil), m.facts...), nil
}

func (m *memStore) SaveSpread(context.Context, *model.RenderedSpread) error { return nil }
func (m *memStore) GetSpread(context.Context, string, string, model.SpreadType) (*model.RenderedSpread, error) {
	return nil, nil
}
func (m *memStore) SaveSnapshot(context.Context, *model.DecisionSnapshot, string) error { return nil }
func (m *memStore) GetSnapshot(context.Context, string) (*model.DecisionSnapshot, string, error) {
	return nil, "", nil
}
func (m *memStore) LatestSnapshot(context.Context, string) (*model.DecisionSnapshot, string, error) {
	return nil, "", nil
}
func (m *memStore) SaveGrant(context.Context, model.ExaminerGrant) error { return nil }
func (m *memStore) ActiveGrant(context.Context, string, string, time.Time) (*model.ExaminerGrant, error) {
	return nil, nil
}
func (m *memStore) Migrate(context.Context) error { return nil }
func (m *memStore) Close() error                  { return nil }
