// README: Itinerary archive backed by Postgres (JSONB documents).
package itinerary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"travelflow/internal/ai"
)

// Store handles itineraries persistence.
type Store struct {
	db *pgxpool.Pool
}

// NewStore returns a Store backed by the given connection pool.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Insert(ctx context.Context, p Plan) error {
	doc, err := json.Marshal(p.Itinerary)
	if err != nil {
		return fmt.Errorf("marshal itinerary: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO itineraries (id, planner_id, destination, days, vibe, interests, itinerary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.PlannerID, p.Request.Destination, p.Request.Days, string(p.Request.Vibe), p.Request.Interests, doc, p.CreatedAt)
	return err
}

// ListRecent returns the newest plans first. An empty plannerID lists all planners.
func (s *Store) ListRecent(ctx context.Context, plannerID string, limit int) ([]Plan, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, planner_id, destination, days, vibe, interests, itinerary, created_at
		FROM itineraries
		WHERE $1 = '' OR planner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, plannerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Latest returns the newest plan for plannerID or ErrNotFound.
func (s *Store) Latest(ctx context.Context, plannerID string) (Plan, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, planner_id, destination, days, vibe, interests, itinerary, created_at
		FROM itineraries
		WHERE planner_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, plannerID)
	p, err := scanPlan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Plan{}, ErrNotFound
	}
	return p, err
}

func scanPlan(row pgx.Row) (Plan, error) {
	var (
		p    Plan
		vibe string
		doc  []byte
	)
	if err := row.Scan(&p.ID, &p.PlannerID, &p.Request.Destination, &p.Request.Days, &vibe, &p.Request.Interests, &doc, &p.CreatedAt); err != nil {
		return Plan{}, err
	}
	p.Request.Vibe = ai.Vibe(vibe)
	p.Itinerary = &ai.Itinerary{}
	if err := json.Unmarshal(doc, p.Itinerary); err != nil {
		return Plan{}, fmt.Errorf("unmarshal itinerary %s: %w", p.ID, err)
	}
	return p, nil
}
