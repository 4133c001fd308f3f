package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/lakeside-credit/spread-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite, for local development
// and single-operator installs. Writes are serialized with a process-local
// mutex: SQLite has no SKIP LOCKED, and within one process the mutex gives
// the lease the same at-most-one-winner guarantee the Postgres predicate does.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS facts (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	tenant_id          TEXT NOT NULL,
	case_id            TEXT NOT NULL,
	source_document_id TEXT NOT NULL,
	fact_type          TEXT NOT NULL,
	fact_key           TEXT NOT NULL,
	fact_period_start  DATETIME,
	fact_period_end    DATETIME,
	fact_value_num     REAL,
	fact_value_text    TEXT,
	currency           TEXT NOT NULL DEFAULT 'USD',
	confidence         REAL NOT NULL DEFAULT 0,
	provenance_json    TEXT NOT NULL DEFAULT '{}',
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_facts_case_key ON facts(tenant_id, case_id, fact_type, fact_key);

CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	tenant_id     TEXT NOT NULL,
	case_id       TEXT NOT NULL,
	kind          TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'queued',
	attempt       INTEGER NOT NULL DEFAULT 0,
	max_attempts  INTEGER NOT NULL DEFAULT 5,
	lease_owner   TEXT,
	leased_until  DATETIME,
	next_run_at   DATETIME NOT NULL,
	error         TEXT,
	kind_metadata TEXT,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_lease ON jobs(status, next_run_at);

CREATE TABLE IF NOT EXISTS spreads (
	tenant_id    TEXT NOT NULL,
	case_id      TEXT NOT NULL,
	spread_type  TEXT NOT NULL,
	body         TEXT NOT NULL,
	generated_at DATETIME NOT NULL,
	PRIMARY KEY (tenant_id, case_id, spread_type)
);

CREATE TABLE IF NOT EXISTS decision_snapshots (
	snapshot_id TEXT PRIMARY KEY,
	case_id     TEXT NOT NULL,
	version     INTEGER NOT NULL,
	body        TEXT NOT NULL,
	body_hash   TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_case ON decision_snapshots(case_id, created_at DESC);

CREATE TABLE IF NOT EXISTS examiner_grants (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	examiner_id    TEXT NOT NULL,
	case_ids       TEXT NOT NULL DEFAULT '[]',
	read_areas     TEXT NOT NULL DEFAULT '[]',
	allow_download INTEGER NOT NULL DEFAULT 0,
	expires_at     DATETIME NOT NULL,
	revoked_at     DATETIME,
	created_at     DATETIME NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Facts ---

// UpsertFacts updates then inserts. The IS comparison treats NULL periods as
// equal, matching the Postgres NULLS NOT DISTINCT constraint.
func (s *SQLiteStore) UpsertFacts(ctx context.Context, facts []model.Fact) ([]UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]UpsertResult, 0, len(facts))
	for _, f := range facts {
		provJSON, err := json.Marshal(f.Provenance)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: marshal provenance for %s", f.FactKey)
		}
		now := time.Now().UTC()

		res, err := s.db.ExecContext(ctx,
			`UPDATE facts SET fact_value_num = ?, fact_value_text = ?, currency = ?,
			        confidence = ?, provenance_json = ?, updated_at = ?
			 WHERE tenant_id = ? AND case_id = ? AND source_document_id = ?
			   AND fact_type = ? AND fact_key = ?
			   AND fact_period_start IS ? AND fact_period_end IS ?`,
			f.ValueNum, f.ValueText, orDefault(f.Currency, "USD"),
			f.Confidence, string(provJSON), now,
			f.TenantID, f.CaseID, f.SourceDocumentID,
			string(f.FactType), f.FactKey, f.PeriodStart, f.PeriodEnd,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: update fact %s", f.FactKey)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: rows affected")
		}
		if n > 0 {
			results = append(results, UpsertResult{FactKey: f.FactKey, Inserted: false})
			continue
		}

		_, err = s.db.ExecContext(ctx,
			`INSERT INTO facts (tenant_id, case_id, source_document_id, fact_type, fact_key,
			                    fact_period_start, fact_period_end, fact_value_num, fact_value_text,
			                    currency, confidence, provenance_json, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.TenantID, f.CaseID, f.SourceDocumentID, string(f.FactType), f.FactKey,
			f.PeriodStart, f.PeriodEnd, f.ValueNum, f.ValueText,
			orDefault(f.Currency, "USD"), f.Confidence, string(provJSON), now,
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert fact %s", f.FactKey)
		}
		results = append(results, UpsertResult{FactKey: f.FactKey, Inserted: true})
	}
	return results, nil
}

func (s *SQLiteStore) DeleteFactsForDocument(ctx context.Context, tenantID, caseID, documentID string, factType model.FactType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM facts WHERE tenant_id = ? AND case_id = ? AND source_document_id = ? AND fact_type = ?`,
		tenantID, caseID, documentID, string(factType),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: delete facts for document %s", documentID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}

const sqliteFactColumns = `tenant_id, case_id, source_document_id, fact_type, fact_key,
	fact_period_start, fact_period_end, fact_value_num, fact_value_text,
	currency, confidence, provenance_json, updated_at`

func (s *SQLiteStore) LatestFact(ctx context.Context, tenantID, caseID string, factType model.FactType, factKey string, periodEnd *time.Time) (*model.Fact, error) {
	var row *sql.Row
	if periodEnd != nil {
		row = s.db.QueryRowContext(ctx,
			`SELECT `+sqliteFactColumns+` FROM facts
			 WHERE tenant_id = ? AND case_id = ? AND fact_type = ? AND fact_key = ? AND fact_period_end = ?
			 ORDER BY updated_at DESC LIMIT 1`,
			tenantID, caseID, string(factType), factKey, *periodEnd,
		)
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT `+sqliteFactColumns+` FROM facts
			 WHERE tenant_id = ? AND case_id = ? AND fact_type = ? AND fact_key = ?
			   AND fact_period_end IS NOT NULL
			 ORDER BY fact_period_end DESC, updated_at DESC LIMIT 1`,
			tenantID, caseID, string(factType), factKey,
		)
	}

	f, err := scanSQLiteFact(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: latest fact %s", factKey)
	}
	return f, nil
}

func (s *SQLiteStore) ListFacts(ctx context.Context, tenantID, caseID string, factType model.FactType) ([]model.Fact, error) {
	query := `SELECT ` + sqliteFactColumns + ` FROM facts WHERE tenant_id = ? AND case_id = ?`
	args := []any{tenantID, caseID}
	if factType != "" {
		query += ` AND fact_type = ?`
		args = append(args, string(factType))
	}
	query += ` ORDER BY fact_type, fact_key, fact_period_end`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list facts")
	}
	defer rows.Close()

	var facts []model.Fact
	for rows.Next() {
		f, err := scanSQLiteFact(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fact")
		}
		facts = append(facts, *f)
	}
	return facts, eris.Wrap(rows.Err(), "sqlite: list facts iterate")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteFact(row rowScanner) (*model.Fact, error) {
	var f model.Fact
	var factType, provJSON string
	var valueText, currency sql.NullString

	err := row.Scan(&f.TenantID, &f.CaseID, &f.SourceDocumentID, &factType, &f.FactKey,
		&f.PeriodStart, &f.PeriodEnd, &f.ValueNum, &valueText,
		&currency, &f.Confidence, &provJSON, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.FactType = model.FactType(factType)
	f.ValueText = valueText.String
	f.Currency = currency.String
	if provJSON != "" {
		if err := json.Unmarshal([]byte(provJSON), &f.Provenance); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal provenance")
		}
	}
	return &f, nil
}

// --- Jobs ---

func (s *SQLiteStore) EnqueueJob(ctx context.Context, job model.Job) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

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
			return nil, eris.Wrap(err, "sqlite: marshal job metadata")
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, tenant_id, case_id, kind, status, attempt, max_attempts, next_run_at, kind_metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?)`,
		job.ID, job.TenantID, job.CaseID, string(job.Kind), string(job.Status),
		job.MaxAttempts, job.NextRunAt, nullableString(metaJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: enqueue job")
	}
	return &job, nil
}

// LeaseJob picks the oldest due job and claims it. The mutex serializes
// concurrent leases from this process; the conditional UPDATE keeps the claim
// correct even against another process on the same file.
func (s *SQLiteStore) LeaseJob(ctx context.Context, filter JobFilter, owner string, ttl time.Duration) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	query := `SELECT id, status FROM jobs
		WHERE ((status = 'queued' AND next_run_at <= ?)
		    OR (status = 'running' AND leased_until IS NOT NULL AND leased_until <= ?))`
	args := []any{now, now}
	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(filter.Kind))
	}
	query += ` ORDER BY next_run_at ASC LIMIT 1`

	var id, status string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id, &status)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: find leasable job")
	}

	leasedUntil := now.Add(ttl)
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'running', attempt = attempt + 1,
		        lease_owner = ?, leased_until = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		owner, leasedUntil, now, id, status,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: claim job %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// Another process claimed it between select and update.
		return nil, nil
	}
	return s.getJobLocked(ctx, id)
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateJob(ctx, jobID,
		`UPDATE jobs SET status = 'succeeded', error = NULL, lease_owner = NULL, leased_until = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), jobID)
}

func (s *SQLiteStore) RequeueJob(ctx context.Context, jobID string, attempt int, nextRunAt time.Time, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateJob(ctx, jobID,
		`UPDATE jobs SET status = 'queued', attempt = ?, next_run_at = ?, error = ?,
		        lease_owner = NULL, leased_until = NULL, updated_at = ? WHERE id = ?`,
		attempt, nextRunAt, errMsg, time.Now().UTC(), jobID)
}

func (s *SQLiteStore) FailJob(ctx context.Context, jobID string, attempt int, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateJob(ctx, jobID,
		`UPDATE jobs SET status = 'failed', attempt = ?, error = ?,
		        lease_owner = NULL, leased_until = NULL, updated_at = ? WHERE id = ?`,
		attempt, errMsg, time.Now().UTC(), jobID)
}

func (s *SQLiteStore) updateJob(ctx context.Context, jobID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", jobID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

const sqliteJobColumns = `id, tenant_id, case_id, kind, status, attempt, max_attempts,
	lease_owner, leased_until, next_run_at, error, kind_metadata, created_at, updated_at`

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getJobLocked(ctx, jobID)
}

func (s *SQLiteStore) getJobLocked(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteJobColumns+` FROM jobs WHERE id = ?`, jobID)
	j, err := scanSQLiteJob(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}
	return j, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobListFilter) ([]model.Job, error) {
	query := `SELECT ` + sqliteJobColumns + ` FROM jobs WHERE 1=1`
	var args []any
	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.CaseID != "" {
		query += ` AND case_id = ?`
		args = append(args, filter.CaseID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func scanSQLiteJob(row rowScanner) (*model.Job, error) {
	var j model.Job
	var kind, status string
	var leaseOwner, errMsg, metaJSON sql.NullString

	err := row.Scan(&j.ID, &j.TenantID, &j.CaseID, &kind, &status, &j.Attempt, &j.MaxAttempts,
		&leaseOwner, &j.LeasedUntil, &j.NextRunAt, &errMsg, &metaJSON, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Kind = model.JobKind(kind)
	j.Status = model.JobStatus(status)
	j.LeaseOwner = leaseOwner.String
	j.Error = errMsg.String
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &j.Metadata); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal job metadata")
		}
	}
	return &j, nil
}

// --- Spreads ---

func (s *SQLiteStore) SaveSpread(ctx context.Context, spread *model.RenderedSpread) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, err := json.Marshal(spread)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal spread")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO spreads (tenant_id, case_id, spread_type, body, generated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, case_id, spread_type) DO UPDATE SET body = excluded.body, generated_at = excluded.generated_at`,
		spread.TenantID, spread.CaseID, string(spread.SpreadType), string(body), spread.GeneratedAt,
	)
	return eris.Wrap(err, "sqlite: save spread")
}

func (s *SQLiteStore) GetSpread(ctx context.Context, tenantID, caseID string, spreadType model.SpreadType) (*model.RenderedSpread, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM spreads WHERE tenant_id = ? AND case_id = ? AND spread_type = ?`,
		tenantID, caseID, string(spreadType),
	).Scan(&body)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get spread")
	}

	var spread model.RenderedSpread
	if err := json.Unmarshal([]byte(body), &spread); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal spread")
	}
	return &spread, nil
}

// --- Decision snapshots ---

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snapshot *model.DecisionSnapshot, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, err := json.Marshal(snapshot)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal snapshot")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decision_snapshots (snapshot_id, case_id, version, body, body_hash, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snapshot.Meta.SnapshotID, snapshot.Meta.CaseID, snapshot.Meta.Version,
		string(body), hash, snapshot.Meta.GeneratedAt,
	)
	return eris.Wrap(err, "sqlite: save snapshot")
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, snapshotID string) (*model.DecisionSnapshot, string, error) {
	return s.querySnapshot(ctx,
		`SELECT body, body_hash FROM decision_snapshots WHERE snapshot_id = ?`, snapshotID)
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context, caseID string) (*model.DecisionSnapshot, string, error) {
	return s.querySnapshot(ctx,
		`SELECT body, body_hash FROM decision_snapshots WHERE case_id = ? ORDER BY created_at DESC LIMIT 1`, caseID)
}

func (s *SQLiteStore) querySnapshot(ctx context.Context, query, arg string) (*model.DecisionSnapshot, string, error) {
	var body, hash string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&body, &hash)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", eris.Wrap(err, "sqlite: query snapshot")
	}

	var snap model.DecisionSnapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return nil, "", eris.Wrap(err, "sqlite: unmarshal snapshot")
	}
	return &snap, hash, nil
}

// --- Examiner grants ---

func (s *SQLiteStore) SaveGrant(ctx context.Context, grant model.ExaminerGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if grant.ID == "" {
		grant.ID = uuid.New().String()
	}
	caseIDs, err := json.Marshal(grant.CaseIDs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal grant case ids")
	}
	readAreas, err := json.Marshal(grant.ReadAreas)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal grant read areas")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO examiner_grants (id, tenant_id, examiner_id, case_ids, read_areas, allow_download, expires_at, revoked_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   case_ids = excluded.case_ids, read_areas = excluded.read_areas,
		   allow_download = excluded.allow_download, expires_at = excluded.expires_at,
		   revoked_at = excluded.revoked_at`,
		grant.ID, grant.TenantID, grant.ExaminerID, string(caseIDs), string(readAreas),
		grant.AllowDownload, grant.ExpiresAt, grant.RevokedAt, time.Now().UTC(),
	)
	return eris.Wrap(err, "sqlite: save grant")
}

func (s *SQLiteStore) ActiveGrant(ctx context.Context, tenantID, examinerID string, now time.Time) (*model.ExaminerGrant, error) {
	var g model.ExaminerGrant
	var caseIDs, readAreas string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, examiner_id, case_ids, read_areas, allow_download, expires_at, revoked_at, created_at
		 FROM examiner_grants
		 WHERE tenant_id = ? AND examiner_id = ? AND expires_at > ?
		   AND (revoked_at IS NULL OR revoked_at > ?)
		 ORDER BY expires_at DESC LIMIT 1`,
		tenantID, examinerID, now, now,
	).Scan(&g.ID, &g.TenantID, &g.ExaminerID, &caseIDs, &readAreas,
		&g.AllowDownload, &g.ExpiresAt, &g.RevokedAt, &g.CreatedAt)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: active grant")
	}

	if err := json.Unmarshal([]byte(caseIDs), &g.CaseIDs); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal grant case ids")
	}
	if err := json.Unmarshal([]byte(readAreas), &g.ReadAreas); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal grant read areas")
	}
	return &g, nil
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
