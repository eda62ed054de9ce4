package job

import (
	"database/sql"
	"strings"
	"time"

	"github.com/rogermt/forgesyte-sub004/errors"
)

// claimRetries bounds the lost-race retry loop in ClaimOldestPending.
const claimRetries = 3

// Store handles persistence of jobs.
// All queue semantics live here; callers never touch SQL directly.
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert persists a new pending job.
// Inserting an id that already exists returns ErrDuplicateID.
func (s *Store) Insert(j *Job) error {
	toolListJSON, err := MarshalToolList(j.ToolList)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO jobs (
			id, status, plugin_id, tool, tool_list, job_type,
			input_path, output_path, error_message, progress,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	tool := sql.NullString{}
	if j.Tool != nil {
		tool = sql.NullString{String: *j.Tool, Valid: true}
	}
	toolList := sql.NullString{String: toolListJSON, Valid: toolListJSON != ""}

	_, err = s.db.Exec(query,
		j.ID,
		j.Status,
		j.PluginID,
		tool,
		toolList,
		j.Type,
		j.InputPath,
		nil,
		nil,
		nil,
		j.CreatedAt,
		j.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(errors.ErrDuplicateID, "job %s", j.ID)
		}
		return errors.Wrap(err, "failed to insert job")
	}

	return nil
}

// Get retrieves a job by id. Returns ErrNotFound if no such job exists.
func (s *Store) Get(id string) (*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + ` FROM jobs WHERE id = ?`

	var j Job
	args := GetJobScanArgs()
	targets := GetJobScanTargets(&j, args)

	err := s.db.QueryRow(query, id).Scan(targets...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(errors.ErrNotFound, "job %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}

	if err := ProcessJobScanArgs(&j, args); err != nil {
		return nil, err
	}

	return &j, nil
}

// ClaimOldestPending atomically transitions the oldest pending job to
// running and returns it. Returns (nil, nil) when no pending job exists.
//
// The claim is a conditional update: the WHERE status = 'pending' clause is
// the atomicity guard. If another claimer wins the row between the SELECT
// and the UPDATE, zero rows are affected and the claim retries against the
// next oldest candidate.
func (s *Store) ClaimOldestPending() (*Job, error) {
	for attempt := 0; attempt < claimRetries; attempt++ {
		var id string
		err := s.db.QueryRow(
			`SELECT id FROM jobs WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT 1`,
			StatusPending,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "failed to select oldest pending job")
		}

		result, err := s.db.Exec(
			`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			StatusRunning, time.Now().UTC(), id, StatusPending,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to claim job")
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return nil, errors.Wrap(err, "failed to check claim result")
		}
		if rows == 0 {
			// Lost the race, try the next candidate
			continue
		}

		return s.Get(id)
	}

	return nil, nil
}

// FinalizeSuccess transitions a running job to completed with its output
// path. Returns ErrNotFound for a missing job and ErrIllegalTransition when
// the job is not running.
func (s *Store) FinalizeSuccess(id, outputPath string) error {
	return s.finalize(id, StatusCompleted, &outputPath, nil)
}

// FinalizeFailure transitions a running job to failed with an error
// message. Returns ErrNotFound for a missing job and ErrIllegalTransition
// when the job is not running.
func (s *Store) FinalizeFailure(id, errorMessage string) error {
	return s.finalize(id, StatusFailed, nil, &errorMessage)
}

func (s *Store) finalize(id string, status Status, outputPath, errorMessage *string) error {
	output := sql.NullString{}
	if outputPath != nil {
		output = sql.NullString{String: *outputPath, Valid: true}
	}
	errMsg := sql.NullString{}
	if errorMessage != nil {
		errMsg = sql.NullString{String: *errorMessage, Valid: true}
	}

	result, err := s.db.Exec(
		`UPDATE jobs SET status = ?, output_path = ?, error_message = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status, output, errMsg, time.Now().UTC(), id, StatusRunning,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to finalize job %s", id)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to check finalize result")
	}
	if rows > 0 {
		return nil
	}

	// Zero rows: distinguish missing from wrong-state
	var current Status
	err = s.db.QueryRow(`SELECT status FROM jobs WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(errors.ErrNotFound, "job %s", id)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to check status of job %s", id)
	}
	return errors.Wrapf(errors.ErrIllegalTransition, "job %s is %s, not running", id, current)
}

// UpdateProgress records an advisory progress value for a running job.
// Progress on a non-running job is silently ignored; it is a hint, not
// part of the state machine.
func (s *Store) UpdateProgress(id string, progress int) error {
	_, err := s.db.Exec(
		`UPDATE jobs SET progress = ?, updated_at = ? WHERE id = ? AND status = ?`,
		progress, time.Now().UTC(), id, StatusRunning,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update progress for job %s", id)
	}
	return nil
}

// SweepOrphanedRunning fails every running job with the given message and
// returns how many were swept. Called once at startup, before the worker
// starts: a running job with no live worker can never finish.
func (s *Store) SweepOrphanedRunning(errorMessage string) (int, error) {
	result, err := s.db.Exec(
		`UPDATE jobs SET status = ?, error_message = ?, updated_at = ? WHERE status = ?`,
		StatusFailed, errorMessage, time.Now().UTC(), StatusRunning,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to sweep orphaned jobs")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count swept jobs")
	}
	return int(rows), nil
}

// CountByStatus returns the number of jobs in the given status.
func (s *Store) CountByStatus(status Status) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs WHERE status = ?`, status).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count jobs")
	}
	return count, nil
}

// isUniqueViolation reports whether err is a SQLite primary key or unique
// constraint failure. Matched by message to avoid importing driver
// internals here.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}
