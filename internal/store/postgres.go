package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/lakeside-credit/spread-cli/internal/db"
	"github.com/lakeside-credit/spread-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// leaseSQL is the single atomic conditional update that claims a job. Only
// rows that are queued and due, or running with an expired lease, are
// eligible; SKIP LOCKED ensures concurrent lease attempts never double-claim.
const leaseSQL = `
UPDATE jobs SET
	status = 'running',
	attempt = attempt + 1,
	lease_owner = $1,
	leased_until = $2,
	updated_at = now()
WHERE id = (
	SELECT id FROM jobs
	WHERE ((status = 'queued' AND next_run_at <= now())
	    OR (status = 'running' AND leased_until <= now()))
	  AND ($3 = '' OR tenant_id = $3)
	  AND ($4 = '' OR kind = $4)
	ORDER BY next_run_at ASC
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING id, tenant_id, case_id, kind, status, attempt, max_attempts,
          lease_owner, leased_until, next_run_at, error, kind_metadata,
          created_at, updated_at`

// upsertFactSQL relies on the NULLS NOT DISTINCT unique constraint so that
// re-extraction from the same document/period overwrites rather than
// duplicates. (xmax = 0) distinguishes a fresh insert from an overwrite.
const upsertFactSQL = `
INSERT INTO facts
	(tenant_id, case_id, source_document_id, fact_type, fact_key,
	 fact_period_start, fact_period_end, fact_value_num, fact_value_text,
	 currency, confidence, provenance_json, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
ON CONFLICT (tenant_id, case_id, source_document_id, fact_type, fact_key, fact_period_start, fact_period_end)
DO UPDATE SET
	fact_value_num = EXCLUDED.fact_value_num,
	fact_value_text = EXCLUDED.fact_value_text,
	currency = EXCLUDED.currency,
	confidence = EXCLUDED.confidence,
	provenance_json = EXCLUDED.provenance_json,
	updated_at = now()
RETURNING (xmax = 0) AS inserted`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare the two hottest statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range map[string]string{
			"lease_job":   leaseSQL,
			"upsert_fact": upsertFactSQL,
		} {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS facts (
	id                 BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	tenant_id          TEXT NOT NULL,
	case_id            TEXT NOT NULL,
	source_document_id TEXT NOT NULL,
	fact_type          TEXT NOT NULL,
	fact_key           TEXT NOT NULL,
	fact_period_start  DATE,
	fact_period_end    DATE,
	fact_value_num     DOUBLE PRECISION,
	fact_value_text    TEXT,
	currency           TEXT NOT NULL DEFAULT 'USD',
	confidence         DOUBLE PRECISION NOT NULL DEFAULT 0,
	provenance_json    JSONB NOT NULL DEFAULT '{}',
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE NULLS NOT DISTINCT
		(tenant_id, case_id, source_document_id, fact_type, fact_key, fact_period_start, fact_period_end)
);

CREATE INDEX IF NOT EXISTS idx_facts_case_key ON facts(tenant_id, case_id, fact_type, fact_key);
CREATE INDEX IF NOT EXISTS idx_facts_period_end ON facts(fact_period_end);

CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	case_id       TEXT NOT NULL,
	kind          TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'queued',
	attempt       INTEGER NOT NULL DEFAULT 0,
	max_attempts  INTEGER NOT NULL DEFAULT 5,
	lease_owner   TEXT,
	leased_until  TIMESTAMPTZ,
	next_run_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	error         TEXT,
	kind_metadata JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_lease ON jobs(status, next_run_at);
CREATE INDEX IF NOT EXISTS idx_jobs_case ON jobs(tenant_id, case_id);

CREATE TABLE IF NOT EXISTS spreads (
	tenant_id    TEXT NOT NULL,
	case_id      TEXT NOT NULL,
	spread_type  TEXT NOT NULL,
	body         JSONB NOT NULL,
	generated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, case_id, spread_type)
);

CREATE TABLE IF NOT EXISTS decision_snapshots (
	snapshot_id TEXT PRIMARY KEY,
	case_id     TEXT NOT NULL,
	version     INTEGER NOT NULL,
	body        JSONB NOT NULL,
	body_hash   TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_snapshots_case ON decision_snapshots(case_id, created_at DESC);

CREATE TABLE IF NOT EXISTS examiner_grants (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	examiner_id    TEXT NOT NULL,
	case_ids       JSONB NOT NULL DEFAULT '[]',
	read_areas     JSONB NOT NULL DEFAULT '[]',
	allow_download BOOLEAN NOT NULL DEFAULT false,
	expires_at     TIMESTAMPTZ NOT NULL,
	revoked_at     TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_grants_examiner ON examiner_grants(tenant_id, examiner_id, expires_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Facts ---

func (s *PostgresStore) UpsertFacts(ctx context.Context, facts []model.Fact) ([]UpsertResult, error) {
	results := make([]UpsertResult, 0, len(facts))
	for _, f := range facts {
		provJSON, err := json.Marshal(f.Provenance)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: marshal provenance for %s", f.FactKey)
		}

		var inserted bool
		err = s.pool.QueryRow(ctx, upsertFactSQL,
			f.TenantID, f.CaseID, f.SourceDocumentID, string(f.FactType), f.FactKey,
			f.PeriodStart, f.PeriodEnd, f.ValueNum, f.ValueText,
			orDefault(f.Currency, "USD"), f.Confidence, provJSON,
		).Scan(&inserted)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: upsert fact %s", f.FactKey)
		}
		results = append(results, UpsertResult{FactKey: f.FactKey, Inserted: inserted})
	}
	return results, nil
}

func (s *PostgresStore) DeleteFactsForDocument(ctx context.Context, tenantID, caseID, documentID string, factType model.FactType) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM facts
		 WHERE tenant_id = $1 AND case_id = $2 AND source_document_id = $3 AND fact_type = $4`,
		tenantID, caseID, documentID, string(factType),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: delete facts for document %s", documentID)
	}
	return int(tag.RowsAffected()), nil
}

const factColumns = `tenant_id, case_id, source_document_id, fact_type, fact_key,
	fact_period_start, fact_period_end, fact_value_num, fact_value_text,
	currency, confidence, provenance_json, updated_at`

func (s *PostgresStore) LatestFact(ctx context.Context, tenantID, caseID string, factType model.FactType, factKey string, periodEnd *time.Time) (*model.Fact, error) {
	var row pgx.Row
	if periodEnd != nil {
		row = s.pool.QueryRow(ctx,
			`SELECT `+factColumns+` FROM facts
			 WHERE tenant_id = $1 AND case_id = $2 AND fact_type = $3 AND fact_key = $4
			   AND fact_period_end = $5
			 ORDER BY updated_at DESC LIMIT 1`,
			tenantID, caseID, string(factType), factKey, *periodEnd,
		)
	} else {
		row = s.pool.QueryRow(ctx,
			`SELECT `+factColumns+` FROM facts
			 WHERE tenant_id = $1 AND case_id = $2 AND fact_type = $3 AND fact_key = $4
			   AND fact_period_end IS NOT NULL
			 ORDER BY fact_period_end DESC, updated_at DESC LIMIT 1`,
			tenantID, caseID, string(factType), factKey,
		)
	}

	f, err := scanFact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: latest fact %s", factKey)
	}
	return f, nil
}

func (s *PostgresStore) ListFacts(ctx context.Context, tenantID, caseID string, factType model.FactType) ([]model.Fact, error) {
	query := `SELECT ` + factColumns + ` FROM facts WHERE tenant_id = $1 AND case_id = $2`
	args := []any{tenantID, caseID}
	if factType != "" {
		query += ` AND fact_type = $3`
		args = append(args, string(factType))
	}
	query += ` ORDER BY fact_type, fact_key, fact_period_end NULLS LAST`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list facts")
	}
	defer rows.Close()

	var facts []model.Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan fact")
		}
		facts = append(facts, *f)
	}
	return facts, eris.Wrap(rows.Err(), "postgres: list facts iterate")
}

func scanFact(row pgx.Row) (*model.Fact, error) {
	var f model.Fact
	var factType string
	var valueText, currency *string
	var provJSON []byte

	err := row.Scan(&f.TenantID, &f.CaseID, &f.SourceDocumentID, &factType, &f.FactKey,
		&f.PeriodStart, &f.PeriodEnd, &f.ValueNum, &valueText,
		&currency, &f.Confidence, &provJSON, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.FactType = model.FactType(factType)
	if valueText != nil {
		f.ValueText = *valueText
	}
	if currency != nil {
		f.Currency = *currency
	}
	if len(provJSON) > 0 {
		if err := json.Unmarshal(provJSON, &f.Provenance); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal provenance")
		}
	}
	return &f, nil
}

// --- Jobs ---

func (s *PostgresStore) EnqueueJob(ctx context.Context, job model.Job) (*model.Job, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 5
	}
	now := time.Now().UTC()
	if job.NextRunAt.IsZero() {
		job.NextRunAt = now
	}
	job.Status = model.JobStatusQueued
	job.CreatedAt = now
	job.UpdatedAt = now

	var metaJSON []byte
	if job.Metadata != nil {
		var err error
		metaJSON, err = json.Marshal(job.Metadata)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal job metadata")
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, tenant_id, case_id, kind, status, attempt, max_attempts, next_run_at, kind_metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $9, $9)`,
		job.ID, job.TenantID, job.CaseID, string(job.Kind), string(job.Status),
		job.MaxAttempts, job.NextRunAt, metaJSON, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: enqueue job")
	}
	return &job, nil
}

func (s *PostgresStore) LeaseJob(ctx context.Context, filter JobFilter, owner string, ttl time.Duration) (*model.Job, error) {
	leasedUntil := time.Now().UTC().Add(ttl)

	row := s.pool.QueryRow(ctx, leaseSQL, owner, leasedUntil, filter.TenantID, string(filter.Kind))
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: lease job")
	}
	return j, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'succeeded', error = NULL, lease_owner = NULL, leased_until = NULL, updated_at = now()
		 WHERE id = $1`,
		jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) RequeueJob(ctx context.Context, jobID string, attempt int, nextRunAt time.Time, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'queued', attempt = $1, next_run_at = $2, error = $3,
		        lease_owner = NULL, leased_until = NULL, updated_at = now()
		 WHERE id = $4`,
		attempt, nextRunAt, errMsg, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: requeue job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID string, attempt int, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'failed', attempt = $1, error = $2,
		        lease_owner = NULL, leased_until = NULL, updated_at = now()
		 WHERE id = $3`,
		attempt, errMsg, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

const jobColumns = `id, tenant_id, case_id, kind, status, attempt, max_attempts,
	lease_owner, leased_until, next_run_at, error, kind_metadata, created_at, updated_at`

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobListFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.TenantID != "" {
		query += fmt.Sprintf(` AND tenant_id = $%d`, argIdx)
		args = append(args, filter.TenantID)
		argIdx++
	}
	if filter.CaseID != "" {
		query += fmt.Sprintf(` AND case_id = $%d`, argIdx)
		args = append(args, filter.CaseID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var kind, status string
	var leaseOwner, errMsg *string
	var metaJSON []byte

	err := row.Scan(&j.ID, &j.TenantID, &j.CaseID, &kind, &status, &j.Attempt, &j.MaxAttempts,
		&leaseOwner, &j.LeasedUntil, &j.NextRunAt, &errMsg, &metaJSON, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Kind = model.JobKind(kind)
	j.Status = model.JobStatus(status)
	if leaseOwner != nil {
		j.LeaseOwner = *leaseOwner
	}
	if errMsg != nil {
		j.Error = *errMsg
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &j.Metadata); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal job metadata")
		}
	}
	return &j, nil
}

// --- Spreads ---

func (s *PostgresStore) SaveSpread(ctx context.Context, spread *model.RenderedSpread) error {
	body, err := json.Marshal(spread)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal spread")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO spreads (tenant_id, case_id, spread_type, body, generated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (tenant_id, case_id, spread_type) DO UPDATE SET body = $4, generated_at = $5`,
		spread.TenantID, spread.CaseID, string(spread.SpreadType), body, spread.GeneratedAt,
	)
	return eris.Wrap(err, "postgres: save spread")
}

func (s *PostgresStore) GetSpread(ctx context.Context, tenantID, caseID string, spreadType model.SpreadType) (*model.RenderedSpread, error) {
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM spreads WHERE tenant_id = $1 AND case_id = $2 AND spread_type = $3`,
		tenantID, caseID, string(spreadType),
	).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get spread")
	}

	var spread model.RenderedSpread
	if err := json.Unmarshal(body, &spread); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal spread")
	}
	return &spread, nil
}

// --- Decision snapshots ---

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snapshot *model.DecisionSnapshot, hash string) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal snapshot")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO decision_snapshots (snapshot_id, case_id, version, body, body_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		snapshot.Meta.SnapshotID, snapshot.Meta.CaseID, snapshot.Meta.Version, body, hash, snapshot.Meta.GeneratedAt,
	)
	return eris.Wrap(err, "postgres: save snapshot")
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, snapshotID string) (*model.DecisionSnapshot, string, error) {
	var body []byte
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT body, body_hash FROM decision_snapshots WHERE snapshot_id = $1`,
		snapshotID,
	).Scan(&body, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", eris.Wrapf(err, "postgres: get snapshot %s", snapshotID)
	}
	return unmarshalSnapshot(body, hash)
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context, caseID string) (*model.DecisionSnapshot, string, error) {
	var body []byte
	var hash string
	err := s.pool.QueryRow(ctx,
		`SELECT body, body_hash FROM decision_snapshots WHERE case_id = $1
		 ORDER BY created_at DESC LIMIT 1`,
		caseID,
	).Scan(&body, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", eris.Wrapf(err, "postgres: latest snapshot for %s", caseID)
	}
	return unmarshalSnapshot(body, hash)
}

func unmarshalSnapshot(body []byte, hash string) (*model.DecisionSnapshot, string, error) {
	var snap model.DecisionSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, "", eris.Wrap(err, "postgres: unmarshal snapshot")
	}
	return &snap, hash, nil
}

// --- Examiner grants ---

func (s *PostgresStore) SaveGrant(ctx context.Context, grant model.ExaminerGrant) error {
	if grant.ID == "" {
		grant.ID = uuid.New().String()
	}
	caseIDs, err := json.Marshal(grant.CaseIDs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal grant case ids")
	}
	readAreas, err := json.Marshal(grant.ReadAreas)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal grant read areas")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO examiner_grants (id, tenant_id, examiner_id, case_ids, read_areas, allow_download, expires_at, revoked_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 ON CONFLICT (id) DO UPDATE SET
		   case_ids = $4, read_areas = $5, allow_download = $6, expires_at = $7, revoked_at = $8`,
		grant.ID, grant.TenantID, grant.ExaminerID, caseIDs, readAreas,
		grant.AllowDownload, grant.ExpiresAt, grant.RevokedAt,
	)
	return eris.Wrap(err, "postgres: save grant")
}

func (s *PostgresStore) ActiveGrant(ctx context.Context, tenantID, examinerID string, now time.Time) (*model.ExaminerGrant, error) {
	var g model.ExaminerGrant
	var caseIDs, readAreas []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, examiner_id, case_ids, read_areas, allow_download, expires_at, revoked_at, created_at
		 FROM examiner_grants
		 WHERE tenant_id = $1 AND examiner_id = $2 AND expires_at > $3
		   AND (revoked_at IS NULL OR revoked_at > $3)
		 ORDER BY expires_at DESC LIMIT 1`,
		tenantID, examinerID, now,
	).Scan(&g.ID, &g.TenantID, &g.ExaminerID, &caseIDs, &readAreas,
		&g.AllowDownload, &g.ExpiresAt, &g.RevokedAt, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: active grant")
	}

	if err := json.Unmarshal(caseIDs, &g.CaseIDs); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal grant case ids")
	}
	if err := json.Unmarshal(readAreas, &g.ReadAreas); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal grant read areas")
	}
	return &g, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
