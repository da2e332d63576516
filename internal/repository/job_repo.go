package repository

import (
	"context"
	"encoding/json"
	"time"

	"chargebroker/internal/models"
)

// JobRepository handles the append-only job audit log. The log doubles as the
// debounce record: a recent entry means a refresh pass just ran.
type JobRepository struct {
	q Querier
}

// NewJobRepository returns repository bound to the given querier.
func NewJobRepository(q Querier) *JobRepository {
	return &JobRepository{q: q}
}

// Insert appends one audit record.
func (r *JobRepository) Insert(ctx context.Context, rec models.JobAuditRecord) error {
	const query = `
		INSERT INTO jobs (execution_time, changes, job_type)
		VALUES ($1, $2, $3)
	`
	changes := rec.Changes
	if changes == nil {
		changes = json.RawMessage(`{}`)
	}
	_, err := r.q.ExecContext(ctx, query, rec.ExecutionTime, []byte(changes), rec.JobType)
	return err
}

// HasExecutionSince reports whether any stage ran at or after the given
// instant.
func (r *JobRepository) HasExecutionSince(ctx context.Context, since time.Time) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM jobs WHERE execution_time >= $1
		)
	`
	var ok bool
	err := r.q.QueryRowContext(ctx, query, since).Scan(&ok)
	return ok, err
}

// Recent returns the newest audit records, most recent first.
func (r *JobRepository) Recent(ctx context.Context, limit int) ([]models.JobAuditRecord, error) {
	const query = `
		SELECT execution_time, changes, job_type
		FROM jobs
		ORDER BY execution_time DESC
		LIMIT $1
	`
	rows, err := r.q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.JobAuditRecord
	for rows.Next() {
		var rec models.JobAuditRecord
		var changes []byte
		if err := rows.Scan(&rec.ExecutionTime, &changes, &rec.JobType); err != nil {
			return nil, err
		}
		rec.Changes = json.RawMessage(changes)
		records = append(records, rec)
	}
	return records, rows.Err()
}
