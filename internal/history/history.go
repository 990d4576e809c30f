// Package history archives dispatch results to Postgres for later audit.
// The archive is optional and best-effort; the dispatch run never depends
// on it.
package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"ExamMailer/internal/models"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(conn string) (*Store, error) {
	pool, err := pgxpool.New(context.Background(), conn)
	if err != nil {
		return nil, fmt.Errorf("connect history store: %w", err)
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

// RecordRun inserts one row per dispatch result for the session.
func (s *Store) RecordRun(ctx context.Context, sessionID string, results []models.DispatchResult) error {
	for _, r := range results {
		_, err := s.Pool.Exec(ctx,
			`INSERT INTO dispatch_results
			 (session_id, name, email, status, message, completed_at, recorded_at)
			 VALUES ($1,$2,$3,$4,$5,$6,NOW())`,
			sessionID,
			r.Name,
			r.Email,
			string(r.Status),
			r.Message,
			r.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("insert dispatch result for %s: %w", r.Email, err)
		}
	}
	return nil
}
