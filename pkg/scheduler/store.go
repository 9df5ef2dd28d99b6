package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Job statuses.
const (
	StatusPending = "pending"
	StatusDone    = "done"
)

// Job is one deferred prompt.
type Job struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Prompt         string    `json:"prompt"`
	FireAt         time.Time `json:"fire_at"`
	Status         string    `json:"status"`
	Answer         string    `json:"answer,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	prompt          TEXT NOT NULL,
	fire_at         TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT 'pending',
	answer          TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`

// Store persists jobs in a local sqlite database so scheduled prompts
// survive restarts.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed initializes) the job database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening job store: %w", err)
	}
	// sqlite handles one writer at a time.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing job store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a pending job and returns it with its assigned id.
func (s *Store) Create(ctx context.Context, conversationID, prompt string, fireAt time.Time) (*Job, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (conversation_id, prompt, fire_at, status) VALUES (?, ?, ?, ?)`,
		conversationID, prompt, fireAt.UTC().Format(time.RFC3339), StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}
	return &Job{
		ID:             id,
		ConversationID: conversationID,
		Prompt:         prompt,
		FireAt:         fireAt.UTC(),
		Status:         StatusPending,
	}, nil
}

// MarkDone records the answer a fired job produced.
func (s *Store) MarkDone(ctx context.Context, id int64, answer string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, answer = ? WHERE id = ?`, StatusDone, answer, id)
	if err != nil {
		return fmt.Errorf("marking job %d done: %w", id, err)
	}
	return nil
}

// Get looks up a single job by id.
func (s *Store) Get(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_id, prompt, fire_at, status, answer FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %d not found", id)
	}
	return job, err
}

// Pending returns every unfired job whose fire time is after the given
// instant, soonest first. Overdue jobs left over from a crash stay in the
// store but are not rearmed.
func (s *Store) Pending(ctx context.Context, after time.Time) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, prompt, fire_at, status, answer FROM jobs WHERE status = ? AND fire_at > ? ORDER BY fire_at`,
		StatusPending, after.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("listing pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var fireAt string
	if err := row.Scan(&job.ID, &job.ConversationID, &job.Prompt, &fireAt, &job.Status, &job.Answer); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, fireAt)
	if err != nil {
		return nil, fmt.Errorf("job %d has malformed fire time %q: %w", job.ID, fireAt, err)
	}
	job.FireAt = t
	return &job, nil
}
