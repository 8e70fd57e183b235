package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dynetl/internal/apperrors"
	"dynetl/internal/domain"
)

// JobStore implements persistence for ingest jobs and run logs.
type JobStore struct {
	catalog *Catalog
}

// NewJobStore creates a new JobStore.
func NewJobStore(catalog *Catalog) *JobStore {
	return &JobStore{catalog: catalog}
}

const jobColumns = `id, name, source_id, source_type, source_config, transforms,
	trigger_type, trigger_config, enabled, last_run_at, last_status, last_error,
	created_at, updated_at`

// ── IngestJob CRUD ─────────────────────────────────────────

func (s *JobStore) CreateJob(ctx context.Context, job *domain.IngestJob) error {
	now := time.Now().UTC()
	job.ID = uuid.New().String()
	job.CreatedAt = now
	job.UpdatedAt = now

	srcCfg, transforms, err := encodeJobConfig(job)
	if err != nil {
		return err
	}
	_, err = s.catalog.conn.ExecContext(ctx,
		`INSERT INTO ingest_jobs (id, name, source_id, source_type, source_config, transforms,
		 trigger_type, trigger_config, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.SourceID, job.SourceType, srcCfg, transforms,
		job.TriggerType, job.TriggerConfig, job.Enabled,
		job.CreatedAt, job.UpdatedAt,
	)
	return err
}

func (s *JobStore) GetJob(ctx context.Context, id string) (*domain.IngestJob, error) {
	row := s.catalog.conn.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM ingest_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ingest job %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *JobStore) UpdateJob(ctx context.Context, job *domain.IngestJob) error {
	job.UpdatedAt = time.Now().UTC()
	srcCfg, transforms, err := encodeJobConfig(job)
	if err != nil {
		return err
	}
	res, err := s.catalog.conn.ExecContext(ctx,
		`UPDATE ingest_jobs SET name=?, source_id=?, source_type=?, source_config=?, transforms=?,
		 trigger_type=?, trigger_config=?, enabled=?, updated_at=? WHERE id=?`,
		job.Name, job.SourceID, job.SourceType, srcCfg, transforms,
		job.TriggerType, job.TriggerConfig, job.Enabled, job.UpdatedAt, job.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ingest job %s: %w", job.ID, apperrors.ErrNotFound)
	}
	return nil
}

func (s *JobStore) UpdateJobStatus(ctx context.Context, id, status, errMsg string) error {
	now := time.Now().UTC()
	_, err := s.catalog.conn.ExecContext(ctx,
		`UPDATE ingest_jobs SET last_run_at=?, last_status=?, last_error=?, updated_at=? WHERE id=?`,
		now, status, errMsg, now, id,
	)
	return err
}

func (s *JobStore) DeleteJob(ctx context.Context, id string) error {
	tx, err := s.catalog.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Run logs first.
	if _, err := tx.ExecContext(ctx, `DELETE FROM ingest_runs WHERE job_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM ingest_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ingest job %s: %w", id, apperrors.ErrNotFound)
	}
	return tx.Commit()
}

func (s *JobStore) ListJobs(ctx context.Context) ([]domain.IngestJob, error) {
	return s.queryJobs(ctx, `SELECT `+jobColumns+` FROM ingest_jobs ORDER BY created_at ASC`)
}

// ListTriggeredJobs returns enabled jobs with a schedule or file_watch trigger.
func (s *JobStore) ListTriggeredJobs(ctx context.Context) ([]domain.IngestJob, error) {
	return s.queryJobs(ctx,
		`SELECT `+jobColumns+` FROM ingest_jobs
		 WHERE enabled = 1 AND trigger_type IN (?, ?)
		 ORDER BY created_at ASC`,
		domain.TriggerSchedule, domain.TriggerFileWatch,
	)
}

func (s *JobStore) queryJobs(ctx context.Context, query string, args ...any) ([]domain.IngestJob, error) {
	rows, err := s.catalog.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.IngestJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.IngestJob, error) {
	var job domain.IngestJob
	var srcCfg, transforms string
	var lastRunAt sql.NullTime
	if err := row.Scan(
		&job.ID, &job.Name, &job.SourceID, &job.SourceType, &srcCfg, &transforms,
		&job.TriggerType, &job.TriggerConfig, &job.Enabled,
		&lastRunAt, &job.LastStatus, &job.LastError,
		&job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastRunAt.Valid {
		t := lastRunAt.Time
		job.LastRunAt = &t
	}
	if err := json.Unmarshal([]byte(srcCfg), &job.SourceConfig); err != nil {
		return nil, fmt.Errorf("decode source config of job %s: %w", job.ID, err)
	}
	if err := json.Unmarshal([]byte(transforms), &job.Transforms); err != nil {
		return nil, fmt.Errorf("decode transforms of job %s: %w", job.ID, err)
	}
	return &job, nil
}

func encodeJobConfig(job *domain.IngestJob) (string, string, error) {
	cfg := job.SourceConfig
	if cfg == nil {
		cfg = map[string]any{}
	}
	srcCfg, err := json.Marshal(cfg)
	if err != nil {
		return "", "", fmt.Errorf("encode source config: %w", err)
	}
	ts := job.Transforms
	if ts == nil {
		ts = []domain.TransformConfig{}
	}
	transforms, err := json.Marshal(ts)
	if err != nil {
		return "", "", fmt.Errorf("encode transforms: %w", err)
	}
	return string(srcCfg), string(transforms), nil
}

// ── Run Logs ───────────────────────────────────────────────

func (s *JobStore) CreateRunLog(ctx context.Context, log *domain.IngestRunLog) error {
	log.ID = uuid.New().String()
	_, err := s.catalog.conn.ExecContext(ctx,
		`INSERT INTO ingest_runs (id, job_id, started_at, finished_at, status, records_read, version, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.JobID, log.StartedAt, log.FinishedAt, log.Status, log.RecordsRead, log.Version, log.Error,
	)
	return err
}

func (s *JobStore) ListRunLogs(ctx context.Context, jobID string, limit int) ([]domain.IngestRunLog, error) {
	rows, err := s.catalog.conn.QueryContext(ctx,
		`SELECT id, job_id, started_at, finished_at, status, records_read, version, error
		 FROM ingest_runs WHERE job_id = ? ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		jobID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.IngestRunLog
	for rows.Next() {
		var (
			l        domain.IngestRunLog
			finished sql.NullTime
		)
		if err := rows.Scan(&l.ID, &l.JobID, &l.StartedAt, &finished, &l.Status, &l.RecordsRead, &l.Version, &l.Error); err != nil {
			return nil, err
		}
		if finished.Valid {
			t := finished.Time
			l.FinishedAt = &t
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
