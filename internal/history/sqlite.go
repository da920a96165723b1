// Package history persists terminal run summaries for operator browsing.
// It is read-only with respect to the orchestrator: a run is never
// resumed or reconstructed from this ledger.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/adgen/internal/domain"
)

// Store wraps a *sql.DB holding the run_summaries table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// runs its migration.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS run_summaries (
	run_id       TEXT PRIMARY KEY,
	started_at   TIMESTAMP NOT NULL,
	ended_at     TIMESTAMP NOT NULL,
	target_images INTEGER NOT NULL,
	accepted     INTEGER NOT NULL,
	cost_total   REAL NOT NULL,
	outcome      TEXT NOT NULL,
	error        TEXT
);
CREATE INDEX IF NOT EXISTS idx_run_summaries_ended_at ON run_summaries(ended_at);
`)
	if err != nil {
		return fmt.Errorf("migrate history db: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Insert records a terminal run summary.
func (s *Store) Insert(ctx context.Context, rs domain.RunSummary) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO run_summaries (run_id, started_at, ended_at, target_images, accepted, cost_total, outcome, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rs.RunID, rs.StartedAt, rs.EndedAt, rs.TargetImgs, rs.Accepted, rs.CostTotal, string(rs.Outcome), rs.Error)
	if err != nil {
		return fmt.Errorf("insert run summary: %w", err)
	}
	return nil
}

// List returns the most recent run summaries, newest first, at most
// limit rows starting after offset.
func (s *Store) List(ctx context.Context, limit, offset int) ([]domain.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, started_at, ended_at, target_images, accepted, cost_total, outcome, error
FROM run_summaries
ORDER BY ended_at DESC
LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list run summaries: %w", err)
	}
	defer rows.Close()

	var out []domain.RunSummary
	for rows.Next() {
		var rs domain.RunSummary
		var outcome string
		var errStr sql.NullString
		var started, ended time.Time
		if err := rows.Scan(&rs.RunID, &started, &ended, &rs.TargetImgs, &rs.Accepted, &rs.CostTotal, &outcome, &errStr); err != nil {
			return nil, fmt.Errorf("scan run summary: %w", err)
		}
		rs.StartedAt = started
		rs.EndedAt = ended
		rs.Outcome = domain.RunOutcome(outcome)
		rs.Error = errStr.String
		out = append(out, rs)
	}
	return out, rows.Err()
}
