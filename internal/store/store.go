package store

import (
	"context"
	"time"

	"github.com/lakeside-credit/spread-cli/internal/model"
)

// JobFilter narrows which queued jobs a lease attempt may claim.
type JobFilter struct {
	TenantID string        `json:"tenant_id,omitempty"`
	Kind     model.JobKind `json:"kind,omitempty"`
}

// JobListFilter specifies criteria for listing jobs.
type JobListFilter struct {
	TenantID string          `json:"tenant_id,omitempty"`
	CaseID   string          `json:"case_id,omitempty"`
	Status   model.JobStatus `json:"status,omitempty"`
	Limit    int             `json:"limit,omitempty"`
}

// UpsertResult reports the outcome of a single fact upsert.
type UpsertResult struct {
	FactKey  string `json:"fact_key"`
	Inserted bool   `json:"inserted"` // false means an existing row was overwritten
}

// Store defines the persistence interface for the spreading pipeline.
// The fact-upsert conflict key is the sole write-write race guard; concurrent
// extraction of the same document/period is safe because the later upsert wins.
type Store interface {
	// Facts
	UpsertFacts(ctx context.Context, facts []model.Fact) ([]UpsertResult, error)
	DeleteFactsForDocument(ctx context.Context, tenantID, caseID, documentID string, factType model.FactType) (int, error)
	LatestFact(ctx context.Context, tenantID, caseID string, factType model.FactType, factKey string, periodEnd *time.Time) (*model.Fact, error)
	ListFacts(ctx context.Context, tenantID, caseID string, factType model.FactType) ([]model.Fact, error)

	// Jobs. LeaseJob performs the atomic conditional update that guarantees
	// at-most-one winner across concurrent workers.
	EnqueueJob(ctx context.Context, job model.Job) (*model.Job, error)
	LeaseJob(ctx context.Context, filter JobFilter, owner string, ttl time.Duration) (*model.Job, error)
	CompleteJob(ctx context.Context, jobID string) error
	RequeueJob(ctx context.Context, jobID string, attempt int, nextRunAt time.Time, errMsg string) error
	FailJob(ctx context.Context, jobID string, attempt int, errMsg string) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobListFilter) ([]model.Job, error)

	// Spreads
	SaveSpread(ctx context.Context, spread *model.RenderedSpread) error
	GetSpread(ctx context.Context, tenantID, caseID string, spreadType model.SpreadType) (*model.RenderedSpread, error)

	// Decision snapshots (append-only)
	SaveSnapshot(ctx context.Context, snapshot *model.DecisionSnapshot, hash string) error
	GetSnapshot(ctx context.Context, snapshotID string) (*model.DecisionSnapshot, string, error)
	LatestSnapshot(ctx context.Context, caseID string) (*model.DecisionSnapshot, string, error)

	// Examiner grants
	SaveGrant(ctx context.Context, grant model.ExaminerGrant) error
	ActiveGrant(ctx context.Context, tenantID, examinerID string, now time.Time) (*model.ExaminerGrant, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
