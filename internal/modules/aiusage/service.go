// README: Generation allowance; meters itinerary generations per planner and calendar month.
package aiusage

import (
	"context"
	"time"
)

type Service struct {
	store *Store
	now   func() time.Time
}

func NewService(store *Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) period() string {
	return s.now().UTC().Format(periodLayout)
}

// Charge takes one generation from the planner's allowance for this month,
// or returns ErrAllowanceUsed.
func (s *Service) Charge(ctx context.Context, plannerID string) error {
	return s.store.Charge(ctx, plannerID, s.period())
}

// Refund returns the generation taken for a plan that was never produced.
func (s *Service) Refund(ctx context.Context, plannerID string) error {
	return s.store.Refund(ctx, plannerID, s.period())
}

// Remaining reports how many generations the planner has left this month.
func (s *Service) Remaining(ctx context.Context, plannerID string) (int, error) {
	return s.store.Remaining(ctx, plannerID, s.period())
}
