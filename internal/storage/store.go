package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/bl4ck0w1/profilynx/pkg/models"
)

// Column names avoid SQL reserved words: the capture timestamp is
// recorded_at and the free-form blob is meta.
const schema = `
CREATE TABLE IF NOT EXISTS scan_jobs (
    job_id      TEXT PRIMARY KEY,
    username    TEXT NOT NULL,
    status      TEXT NOT NULL,
    payload     TEXT NOT NULL DEFAULT '',
    recorded_at TIMESTAMP NOT NULL,
    updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS platform_results (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    job_id           TEXT NOT NULL,
    platform_id      TEXT NOT NULL,
    found            INTEGER NOT NULL DEFAULT 0,
    url              TEXT NOT NULL DEFAULT '',
    confidence       REAL NOT NULL DEFAULT 0,
    response_time_ms INTEGER NOT NULL DEFAULT 0,
    meta             TEXT NOT NULL DEFAULT '',
    error_text       TEXT NOT NULL DEFAULT '',
    recorded_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_platform_results_job_id ON platform_results(job_id);

CREATE TABLE IF NOT EXISTS audit_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    action      TEXT NOT NULL,
    username    TEXT NOT NULL DEFAULT '',
    scan_id     TEXT NOT NULL DEFAULT '',
    details     TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT '',
    error_text  TEXT NOT NULL DEFAULT '',
    recorded_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_log_scan_id ON audit_log(scan_id);
`

type JobRecord struct {
	JobID      string    `db:"job_id"`
	Username   string    `db:"username"`
	Status     string    `db:"status"`
	Payload    string    `db:"payload"`
	RecordedAt time.Time `db:"recorded_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Analysis decodes the stored ScanAnalysis payload.
func (r *JobRecord) Analysis() (*models.ScanAnalysis, error) {
	if r.Payload == "" {
		return nil, nil
	}
	var analysis models.ScanAnalysis
	if err := json.Unmarshal([]byte(r.Payload), &analysis); err != nil {
		return nil, fmt.Errorf("decode job payload: %w", err)
	}
	return &analysis, nil
}

type ResultRecord struct {
	ID             int64     `db:"id"`
	JobID          string    `db:"job_id"`
	PlatformID     string    `db:"platform_id"`
	Found          bool      `db:"found"`
	URL            string    `db:"url"`
	Confidence     float64   `db:"confidence"`
	ResponseTimeMS int64     `db:"response_time_ms"`
	Meta           string    `db:"meta"`
	ErrorText      string    `db:"error_text"`
	RecordedAt     time.Time `db:"recorded_at"`
}

type AuditRecord struct {
	ID         int64     `db:"id"`
	Action     string    `db:"action"`
	Username   string    `db:"username"`
	ScanID     string    `db:"scan_id"`
	Details    string    `db:"details"`
	Status     string    `db:"status"`
	ErrorText  string    `db:"error_text"`
	RecordedAt time.Time `db:"recorded_at"`
}

type resultMeta struct {
	PlatformName  string   `json:"platform_name,omitempty"`
	Status        string   `json:"status,omitempty"`
	HTTPStatus    int      `json:"http_status,omitempty"`
	ContentLength int64    `json:"content_length,omitempty"`
	Indicators    []string `json:"indicators,omitempty"`
	Attempts      int      `json:"attempts,omitempty"`
}

type Store struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

func Open(path string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite permits a single writer; funneling every connection
	// through one handle avoids SQLITE_BUSY under worker concurrency.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.WithField("path", path).Info("Scan store opened")
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveJob(ctx context.Context, jobID, username, status string, payload *models.ScanAnalysis) error {
	if jobID == "" {
		return fmt.Errorf("%w: empty job id", models.ErrInvalidInput)
	}

	var encoded string
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode job payload: %w", err)
		}
		encoded = string(raw)
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_jobs (job_id, username, status, payload, recorded_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
		    status = excluded.status,
		    payload = excluded.payload,
		    updated_at = excluded.updated_at`,
		jobID, username, status, encoded, now, now)
	if err != nil {
		return fmt.Errorf("save job %s: %w", jobID, err)
	}
	return nil
}

func (s *Store) UpdateJobStatus(ctx context.Context, jobID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scan_jobs SET status = ?, updated_at = ? WHERE job_id = ?`,
		status, time.Now().UTC(), jobID)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if affected == 0 {
		return models.ErrJobNotFound
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	var record JobRecord
	err := s.db.GetContext(ctx, &record,
		`SELECT job_id, username, status, payload, recorded_at, updated_at
		 FROM scan_jobs WHERE job_id = ?`, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return &record, nil
}

func (s *Store) SavePlatformResult(ctx context.Context, jobID string, result *models.PlatformResult) error {
	return s.insertResult(ctx, s.db, jobID, result)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (s *Store) insertResult(ctx context.Context, ex execer, jobID string, result *models.PlatformResult) error {
	meta, err := json.Marshal(resultMeta{
		PlatformName:  result.PlatformName,
		Status:        string(result.Status),
		HTTPStatus:    result.HTTPStatus,
		ContentLength: result.ContentLength,
		Indicators:    result.Indicators,
		Attempts:      result.Attempts,
	})
	if err != nil {
		return fmt.Errorf("encode result meta: %w", err)
	}

	recordedAt := result.Timestamp
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO platform_results
		    (job_id, platform_id, found, url, confidence, response_time_ms, meta, error_text, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		jobID, result.Platform, result.Found, result.URL, result.Confidence,
		result.ResponseTime.Milliseconds(), string(meta), result.Error, recordedAt.UTC())
	if err != nil {
		return fmt.Errorf("save result %s/%s: %w", jobID, result.Platform, err)
	}
	return nil
}

func (s *Store) ResultsForJob(ctx context.Context, jobID string) ([]ResultRecord, error) {
	var records []ResultRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, job_id, platform_id, found, url, confidence, response_time_ms, meta, error_text, recorded_at
		FROM platform_results WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("results for job %s: %w", jobID, err)
	}
	return records, nil
}

// SaveScan persists a finished task as one job row plus one result row
// per probed platform, atomically.
func (s *Store) SaveScan(ctx context.Context, task *models.ScanTask, analysis *models.ScanAnalysis) error {
	if analysis == nil {
		return fmt.Errorf("%w: nil analysis", models.ErrInvalidInput)
	}

	raw, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("encode job payload: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save scan: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO scan_jobs (job_id, username, status, payload, recorded_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
		    status = excluded.status,
		    payload = excluded.payload,
		    updated_at = excluded.updated_at`,
		analysis.ScanID, analysis.Username, string(models.TaskCompleted), string(raw), now, now); err != nil {
		return fmt.Errorf("save job %s: %w", analysis.ScanID, err)
	}

	ids := make([]string, 0, len(analysis.Platforms))
	for id := range analysis.Platforms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		result := analysis.Platforms[id]
		if err := s.insertResult(ctx, tx, analysis.ScanID, result); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save scan: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"scan_id":  analysis.ScanID,
		"task_id":  task.ID,
		"username": analysis.Username,
		"results":  len(ids),
	}).Debug("Scan persisted")
	return nil
}

func (s *Store) SaveAudit(ctx context.Context, record AuditRecord) error {
	recordedAt := record.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (action, username, scan_id, details, status, error_text, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.Action, record.Username, record.ScanID, record.Details,
		record.Status, record.ErrorText, recordedAt.UTC())
	if err != nil {
		return fmt.Errorf("save audit entry: %w", err)
	}
	return nil
}

func (s *Store) RecentAudit(ctx context.Context, limit int) ([]AuditRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []AuditRecord
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, action, username, scan_id, details, status, error_text, recorded_at
		FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent audit entries: %w", err)
	}
	return records, nil
}

func (s *Store) GetStats() map[string]interface{} {
	stats := map[string]interface{}{}
	for name, query := range map[string]string{
		"jobs":          `SELECT COUNT(*) FROM scan_jobs`,
		"results":       `SELECT COUNT(*) FROM platform_results`,
		"audit_entries": `SELECT COUNT(*) FROM audit_log`,
	} {
		var count int
		if err := s.db.Get(&count, query); err == nil {
			stats[name] = count
		}
	}
	return stats
}
