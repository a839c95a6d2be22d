package submissions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides persistence for submission records on Postgres.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the submissions table if it does not exist. Called at
// startup and from the init-db command; there are no further migrations.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS submissions (
			id             UUID PRIMARY KEY,
			submitted_at   TIMESTAMPTZ NOT NULL,
			project_id     TEXT NOT NULL,
			uri            TEXT NOT NULL,
			threat_types   TEXT[] NOT NULL,
			operation_name TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create submissions table: %w", err)
	}
	return nil
}

// Append inserts a new submission record and returns it with its assigned ID
// and timestamp.
func (r *Repository) Append(ctx context.Context, projectID, uri string, threatTypes []string, operationName string) (*Record, error) {
	rec := &Record{
		ID:            uuid.New(),
		SubmittedAt:   time.Now().UTC(),
		ProjectID:     projectID,
		URI:           uri,
		ThreatTypes:   threatTypes,
		OperationName: operationName,
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO submissions (id, submitted_at, project_id, uri, threat_types, operation_name)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.SubmittedAt, rec.ProjectID, rec.URI, rec.ThreatTypes, rec.OperationName,
	)
	if err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}
	return rec, nil
}

// Recent returns the most recent submissions, newest first, up to limit.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, submitted_at, project_id, uri, threat_types, operation_name
		 FROM submissions
		 ORDER BY submitted_at DESC
		 LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SubmittedAt, &rec.ProjectID, &rec.URI, &rec.ThreatTypes, &rec.OperationName); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return records, nil
}
