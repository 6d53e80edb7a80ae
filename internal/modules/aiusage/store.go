package aiusage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store keeps one generation_allowance row per planner.
type Store struct {
	db        *pgxpool.Pool
	allowance int
}

func NewStore(db *pgxpool.Pool, allowance int) *Store {
	if allowance <= 0 {
		allowance = DefaultMonthlyGenerations
	}
	return &Store{db: db, allowance: allowance}
}

// Charge takes one generation for period. A planner seen for the first time,
// or last charged in an earlier period, starts from the full allowance. The
// upsert matches no row when the current period is spent.
func (s *Store) Charge(ctx context.Context, plannerID, period string) error {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO generation_allowance (planner_id, remaining, period)
		VALUES ($1, $2 - 1, $3)
		ON CONFLICT (planner_id) DO UPDATE SET
			remaining = CASE
				WHEN generation_allowance.period <> EXCLUDED.period THEN $2 - 1
				ELSE generation_allowance.remaining - 1
			END,
			period = EXCLUDED.period
		WHERE generation_allowance.period <> EXCLUDED.period
			OR generation_allowance.remaining > 0
	`, plannerID, s.allowance, period)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAllowanceUsed
	}
	return nil
}

// Refund gives one generation back within period, never above the allowance.
// A refund for an earlier period is dropped since that month was refilled.
func (s *Store) Refund(ctx context.Context, plannerID, period string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE generation_allowance SET remaining = LEAST(remaining + 1, $3)
		WHERE planner_id = $1 AND period = $2
	`, plannerID, period, s.allowance)
	return err
}

// Remaining reports the generations left in period. Unknown planners and
// stale periods have the full allowance.
func (s *Store) Remaining(ctx context.Context, plannerID, period string) (int, error) {
	var remaining int
	var stored string
	err := s.db.QueryRow(ctx, `
		SELECT remaining, period FROM generation_allowance WHERE planner_id = $1
	`, plannerID).Scan(&remaining, &stored)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && stored != period) {
		return s.allowance, nil
	}
	if err != nil {
		return 0, err
	}
	return remaining, nil
}
