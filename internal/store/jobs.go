package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/trawl/internal/model"
)

// Sentinel errors for job lookups.
var (
	// ErrNotFound is returned when no job matches an ID or prefix.
	ErrNotFound = errors.New("job not found")
	// ErrAmbiguous is returned when a short ID prefix matches
	// more than one job.
	ErrAmbiguous = errors.New("ambiguous job ID prefix")
)

// timeFormat is how timestamps are stored. RFC 3339 with nanoseconds
// sorts lexicographically, which the list query relies on.
const timeFormat = time.RFC3339Nano

// CreateJob inserts a job record in its initial state.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - resubmitting the
// same job ID is silently ignored.
func (s *Store) CreateJob(ctx context.Context, job model.Job) error {
	specJSON, err := json.Marshal(job.Spec)
	if err != nil {
		return fmt.Errorf("create job: marshal spec: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, spec_digest, spec, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		job.ID,
		job.SpecDigest,
		string(specJSON),
		string(job.State),
		job.CreatedAt.UTC().Format(timeFormat),
		job.UpdatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by full ID or by unambiguous short prefix.
// Returns ErrNotFound if nothing matches, ErrAmbiguous if a prefix
// matches more than one job.
func (s *Store) GetJob(ctx context.Context, idOrPrefix string) (model.Job, error) {
	if !model.IsJobIDPrefix(idOrPrefix) {
		// Full ID: exact lookup.
		row := s.db.QueryRowContext(ctx, `
			SELECT id, spec_digest, spec, state, created_at, updated_at
			FROM jobs WHERE id = ?
		`, idOrPrefix)
		job, err := scanJob(row)
		if errors.Is(err, sql.ErrNoRows) {
			return model.Job{}, fmt.Errorf("%w: %s", ErrNotFound, idOrPrefix)
		}
		return job, err
	}

	// Prefix lookup. Fetch two rows so ambiguity is detectable.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, spec_digest, spec, state, created_at, updated_at
		FROM jobs WHERE id LIKE ? || '%'
		ORDER BY id LIMIT 2
	`, idOrPrefix)
	if err != nil {
		return model.Job{}, fmt.Errorf("get job: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return model.Job{}, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return model.Job{}, fmt.Errorf("get job: %w", err)
	}

	switch len(jobs) {
	case 0:
		return model.Job{}, fmt.Errorf("%w: %s", ErrNotFound, idOrPrefix)
	case 1:
		return jobs[0], nil
	default:
		return model.Job{}, fmt.Errorf("%w: %s", ErrAmbiguous, idOrPrefix)
	}
}

// ListJobs returns jobs newest first.
// idFilter, when non-empty, restricts results to jobs whose ID has that
// prefix. limit <= 0 means no limit.
func (s *Store) ListJobs(ctx context.Context, idFilter string, limit int) ([]model.Job, error) {
	query := `
		SELECT id, spec_digest, spec, state, created_at, updated_at
		FROM jobs
	`
	var args []any
	if idFilter != "" {
		query += ` WHERE id LIKE ? || '%'`
		args = append(args, idFilter)
	}
	// UUIDv7 IDs are time-ordered, so id is a stable tiebreaker when
	// created_at collides.
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []model.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	return jobs, nil
}

// nextEventSeq allocates the next per-job event sequence number. Must
// run inside the transaction that inserts the event, so two processes
// sharing the database never mint the same seq for a job.
func nextEventSeq(ctx context.Context, tx *sql.Tx, jobID string) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM job_events WHERE job_id = ?
	`, jobID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("next event seq: %w", err)
	}
	return seq, nil
}

// UpdateJobState transitions a job to a new state and appends the
// corresponding lifecycle event in a single transaction. The transition
// is validated against the model's state machine before any write, and
// the event seq is allocated inside the same transaction, so every
// transition is recorded exactly once no matter how many processes
// share the database. A replayed transition fails validation (states
// are never re-entered) instead of minting a duplicate event.
func (s *Store) UpdateJobState(ctx context.Context, jobID string, next model.JobState, message string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update job state: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var current string
	err = tx.QueryRowContext(ctx, `SELECT state FROM jobs WHERE id = ?`, jobID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return fmt.Errorf("update job state: read current: %w", err)
	}

	if err := model.ValidateTransition(model.JobState(current), next); err != nil {
		return fmt.Errorf("update job state: %w", err)
	}

	now := time.Now().UTC().Format(timeFormat)
	if _, err := tx.ExecContext(ctx, `
		UPDATE jobs SET state = ?, updated_at = ? WHERE id = ?
	`, string(next), now, jobID); err != nil {
		return fmt.Errorf("update job state: %w", err)
	}

	seq, err := nextEventSeq(ctx, tx, jobID)
	if err != nil {
		return fmt.Errorf("update job state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO job_events (job_id, seq, state, message, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, jobID, seq, string(next), message, now); err != nil {
		return fmt.Errorf("update job state: append event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update job state: commit: %w", err)
	}

	return nil
}

// AppendEvent records a lifecycle event without changing job state.
// Used for the initial Queued event at submission time. The event seq
// is allocated inside the transaction; event.Seq is ignored.
// Idempotent per (job_id, state): replaying a submission does not
// duplicate the Queued event.
func (s *Store) AppendEvent(ctx context.Context, event model.JobEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append event: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var exists int
	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM job_events WHERE job_id = ? AND state = ?
	`, event.JobID, string(event.State)).Scan(&exists)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("append event: %w", err)
	}

	seq, err := nextEventSeq(ctx, tx, event.JobID)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO job_events (job_id, seq, state, message, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`,
		event.JobID,
		seq,
		string(event.State),
		event.Message,
		event.Timestamp.UTC().Format(timeFormat),
	); err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append event: commit: %w", err)
	}
	return nil
}

// ListEvents returns a job's lifecycle events ordered by seq.
func (s *Store) ListEvents(ctx context.Context, jobID string) ([]model.JobEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, seq, state, message, timestamp
		FROM job_events WHERE job_id = ?
		ORDER BY seq ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := []model.JobEvent{}
	for rows.Next() {
		var ev model.JobEvent
		var state, ts string
		if err := rows.Scan(&ev.JobID, &ev.Seq, &state, &ev.Message, &ts); err != nil {
			return nil, fmt.Errorf("list events: scan: %w", err)
		}
		ev.State = model.JobState(state)
		ev.Timestamp, err = time.Parse(timeFormat, ts)
		if err != nil {
			return nil, fmt.Errorf("list events: parse timestamp: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	return events, nil
}

// RecordOutputs stores the published-output reference for a job.
// Re-recording replaces the previous reference (publish is idempotent
// per job).
func (s *Store) RecordOutputs(ctx context.Context, out model.JobOutputs) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_outputs (job_id, publisher, reference)
		VALUES (?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET publisher = excluded.publisher, reference = excluded.reference
	`, out.JobID, out.Publisher, out.Reference)
	if err != nil {
		return fmt.Errorf("record outputs: %w", err)
	}
	return nil
}

// GetOutputs retrieves the published-output reference for a job.
// Returns ErrNotFound if the job has no published outputs.
func (s *Store) GetOutputs(ctx context.Context, jobID string) (model.JobOutputs, error) {
	var out model.JobOutputs
	err := s.db.QueryRowContext(ctx, `
		SELECT job_id, publisher, reference FROM job_outputs WHERE job_id = ?
	`, jobID).Scan(&out.JobID, &out.Publisher, &out.Reference)
	if errors.Is(err, sql.ErrNoRows) {
		return model.JobOutputs{}, fmt.Errorf("%w: no outputs for %s", ErrNotFound, jobID)
	}
	if err != nil {
		return model.JobOutputs{}, fmt.Errorf("get outputs: %w", err)
	}
	return out, nil
}

// ListJobsInState returns the IDs of jobs currently in the given state,
// oldest first. The engine uses this to requeue work after a restart.
func (s *Store) ListJobsInState(ctx context.Context, state model.JobState) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM jobs WHERE state = ?
		ORDER BY created_at ASC, id ASC
	`, string(state))
	if err != nil {
		return nil, fmt.Errorf("list jobs in state: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list jobs in state: scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs in state: %w", err)
	}

	return ids, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanJob.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(sc scanner) (model.Job, error) {
	var job model.Job
	var specJSON, state, created, updated string

	if err := sc.Scan(&job.ID, &job.SpecDigest, &specJSON, &state, &created, &updated); err != nil {
		return model.Job{}, err
	}

	if err := json.Unmarshal([]byte(specJSON), &job.Spec); err != nil {
		return model.Job{}, fmt.Errorf("scan job %s: unmarshal spec: %w", job.ID, err)
	}
	job.State = model.JobState(state)

	var err error
	job.CreatedAt, err = time.Parse(timeFormat, created)
	if err != nil {
		return model.Job{}, fmt.Errorf("scan job %s: parse created_at: %w", job.ID, err)
	}
	job.UpdatedAt, err = time.Parse(timeFormat, updated)
	if err != nil {
		return model.Job{}, fmt.Errorf("scan job %s: parse updated_at: %w", job.ID, err)
	}

	return job, nil
}
