// Package history keeps a SQLite record of finished executions and their findings.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/codescope/internal/models"
)

// ErrNotFound is returned by Get for an execution that was never recorded.
var ErrNotFound = errors.New("execution not recorded")

// Store manages the SQLite execution history.
type Store struct {
	db     *sql.DB
	dbPath string
}

// ExecutionSummary is one row of the history listing.
type ExecutionSummary struct {
	ExecutionID  string
	TaskType     models.TaskType
	Repository   string
	PRIdentifier string
	FinalStage   models.Stage
	Success      bool
	FindingCount int
	ErrorKind    models.ErrorKind
	CompletedAt  time.Time
	Duration     time.Duration
}

// ListOptions filters List.
type ListOptions struct {
	Limit      int    // 0 means 20
	Repository string // exact locator match when set
}

// NewStore opens (creating if needed) the database at dbPath and applies migrations.
// ":memory:" opens a private in-memory database.
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every new connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.ApplyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

// execWithRetry executes a statement with exponential backoff on lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores a finished execution and its findings, replacing any earlier
// record with the same execution id.
func (s *Store) Record(ctx context.Context, result *models.ExecutionResult) error {
	if result == nil {
		return fmt.Errorf("nil execution result")
	}

	retryJSON, err := json.Marshal(result.RetryCounts)
	if err != nil {
		return fmt.Errorf("marshal retry counts: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var errKind, errStage, errAgent, errMsg string
	var errRetries int
	if e := result.Error; e != nil {
		errKind, errStage, errAgent, errMsg, errRetries = string(e.Kind), e.Stage.String(), e.Agent, e.Message, e.Retries
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM findings WHERE execution_id = ?`, result.ExecutionID); err != nil {
		return fmt.Errorf("clear findings: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO executions
		(execution_id, task_id, task_type, repository, pr_identifier, final_stage, success,
		 error_count, retry_counts, report_text, error_kind, error_stage, error_agent, error_message, error_retries,
		 started_at, completed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ExecutionID, result.TaskID, string(result.TaskType), result.Repository, result.PRID,
		result.FinalStage.String(), result.Success,
		result.ErrorCount, string(retryJSON), result.ReportText,
		errKind, errStage, errAgent, errMsg, errRetries,
		result.StartedAt.UTC(), result.CompletedAt.UTC(), result.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO findings
		(execution_id, position, severity, category, message, path, line) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare findings insert: %w", err)
	}
	defer stmt.Close()

	for i, f := range result.Findings {
		var path string
		var line int
		if f.Location != nil {
			path, line = f.Location.Path, f.Location.Line
		}
		if _, err := stmt.ExecContext(ctx, result.ExecutionID, i, f.Severity, f.Category, f.Message, path, line); err != nil {
			return fmt.Errorf("insert finding %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit execution: %w", err)
	}
	return nil
}

// List returns recorded executions, most recently completed first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]ExecutionSummary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT e.execution_id, e.task_type, e.repository, COALESCE(e.pr_identifier, ''),
		e.final_stage, e.success, COALESCE(e.error_kind, ''), e.completed_at, e.duration_ms,
		(SELECT COUNT(*) FROM findings f WHERE f.execution_id = e.execution_id)
		FROM executions e`
	var args []any
	if opts.Repository != "" {
		query += ` WHERE e.repository = ?`
		args = append(args, opts.Repository)
	}
	query += ` ORDER BY e.completed_at DESC, e.recorded_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []ExecutionSummary
	for rows.Next() {
		var (
			sum        ExecutionSummary
			taskType   string
			stage      string
			errKind    string
			durationMS int64
		)
		if err := rows.Scan(&sum.ExecutionID, &taskType, &sum.Repository, &sum.PRIdentifier,
			&stage, &sum.Success, &errKind, &sum.CompletedAt, &durationMS, &sum.FindingCount); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		sum.TaskType = models.TaskType(taskType)
		sum.ErrorKind = models.ErrorKind(errKind)
		sum.Duration = time.Duration(durationMS) * time.Millisecond
		if sum.FinalStage, err = models.ParseStage(stage); err != nil {
			return nil, fmt.Errorf("execution %s: %w", sum.ExecutionID, err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}
	return out, nil
}

// Get reconstructs a recorded execution result with its findings in reported order.
func (s *Store) Get(ctx context.Context, executionID string) (*models.ExecutionResult, error) {
	var (
		result                                  models.ExecutionResult
		taskType, stage, retryJSON              string
		errKind, errStage, errAgent, errMessage string
		errRetries                              int
		durationMS                              int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT execution_id, task_id, task_type, repository,
		COALESCE(pr_identifier, ''), final_stage, success, error_count, COALESCE(retry_counts, '{}'),
		COALESCE(report_text, ''), COALESCE(error_kind, ''), COALESCE(error_stage, ''),
		COALESCE(error_agent, ''), COALESCE(error_message, ''), error_retries,
		started_at, completed_at, duration_ms
		FROM executions WHERE execution_id = ?`, executionID).Scan(
		&result.ExecutionID, &result.TaskID, &taskType, &result.Repository,
		&result.PRID, &stage, &result.Success, &result.ErrorCount, &retryJSON,
		&result.ReportText, &errKind, &errStage,
		&errAgent, &errMessage, &errRetries,
		&result.StartedAt, &result.CompletedAt, &durationMS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, executionID)
	}
	if err != nil {
		return nil, fmt.Errorf("query execution: %w", err)
	}

	result.TaskType = models.TaskType(taskType)
	result.Duration = time.Duration(durationMS) * time.Millisecond
	if result.FinalStage, err = models.ParseStage(stage); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(retryJSON), &result.RetryCounts); err != nil {
		return nil, fmt.Errorf("decode retry counts: %w", err)
	}
	if result.RetryCounts == nil {
		result.RetryCounts = map[string]int{}
	}
	if errKind != "" {
		detail := &models.ErrorDetail{
			Kind:    models.ErrorKind(errKind),
			Agent:   errAgent,
			Message: errMessage,
			Retries: errRetries,
		}
		if detail.Stage, err = models.ParseStage(errStage); err != nil {
			return nil, err
		}
		result.Error = detail
	}

	if result.Findings, err = s.findings(ctx, executionID); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Store) findings(ctx context.Context, executionID string) ([]models.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT severity, COALESCE(category, ''), message,
		COALESCE(path, ''), COALESCE(line, 0)
		FROM findings WHERE execution_id = ? ORDER BY position ASC`, executionID)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	findings := []models.Finding{}
	for rows.Next() {
		var f models.Finding
		var path string
		var line int
		if err := rows.Scan(&f.Severity, &f.Category, &f.Message, &path, &line); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		if path != "" {
			f.Location = &models.SourceLocation{Path: path, Line: line}
		}
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate findings: %w", err)
	}
	return findings, nil
}

// SeverityTotals counts findings per severity across every recorded execution
// of repository, or across all executions when repository is empty.
func (s *Store) SeverityTotals(ctx context.Context, repository string) (map[string]int, error) {
	query := `SELECT f.severity, COUNT(*) FROM findings f`
	var args []any
	if repository != "" {
		query += ` JOIN executions e ON e.execution_id = f.execution_id WHERE e.repository = ?`
		args = append(args, repository)
	}
	query += ` GROUP BY f.severity`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query severity totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var sev string
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, fmt.Errorf("scan severity total: %w", err)
		}
		totals[sev] = n
	}
	return totals, rows.Err()
}
