// README: Itinerary planner service; validates trips, calls the generator, enriches places, keeps the current plan.
package itinerary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"travelflow/internal/ai"
	"travelflow/internal/log"
	"travelflow/internal/modules/aiusage"
)

const enrichConcurrency = 4

// PlaceResolver looks up a map place for a free-text location.
type PlaceResolver interface {
	Resolve(ctx context.Context, query string) (*ai.PlaceRef, error)
}

// RouteEstimator estimates travel between two free-text locations.
type RouteEstimator interface {
	Estimate(ctx context.Context, origin, destination string) (*ai.TransitLeg, error)
}

// Quota meters generations per planner.
type Quota interface {
	Charge(ctx context.Context, plannerID string) error
	Refund(ctx context.Context, plannerID string) error
	Remaining(ctx context.Context, plannerID string) (int, error)
}

type Options struct {
	Places  PlaceResolver
	Routes  RouteEstimator
	Store   *Store
	Quota   Quota
	Timeout time.Duration
}

type Service struct {
	planner ai.ItineraryPlanner
	places  PlaceResolver
	routes  RouteEstimator
	store   *Store
	quota   Quota
	timeout time.Duration

	mu       sync.Mutex
	planners map[string]*plannerState
}

type plannerState struct {
	current *Plan
	// cleared is set by Reset; the archive is no longer consulted for current.
	cleared    bool
	generating bool
}

func NewService(planner ai.ItineraryPlanner, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Service{
		planner:  planner,
		places:   opts.Places,
		routes:   opts.Routes,
		store:    opts.Store,
		quota:    opts.Quota,
		timeout:  opts.Timeout,
		planners: make(map[string]*plannerState),
	}
}

// Generate produces a new itinerary for plannerID and makes it current. On
// failure the previous itinerary stays current and the error is a
// *ai.GenerationError. A second call while one is outstanding returns
// ErrGenerationInFlight; an exhausted allowance returns ErrQuotaExceeded.
func (s *Service) Generate(ctx context.Context, plannerID string, req ai.TripRequest) (*Plan, error) {
	plannerID = strings.TrimSpace(plannerID)
	if plannerID == "" {
		return nil, fmt.Errorf("%w: planner_id is required", ErrBadRequest)
	}
	req.Destination = strings.TrimSpace(req.Destination)
	req.Interests = strings.TrimSpace(req.Interests)
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	req.Vibe, _ = ai.ParseVibe(string(req.Vibe))

	if err := s.begin(plannerID); err != nil {
		return nil, err
	}
	defer s.end(plannerID)

	charged, err := s.charge(ctx, plannerID)
	if err != nil {
		return nil, err
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	it, err := s.planner.PlanItinerary(genCtx, req)
	if err == nil {
		err = it.Validate()
	}
	if err != nil {
		var genErr *ai.GenerationError
		if !errors.As(err, &genErr) {
			err = &ai.GenerationError{Op: "plan", Err: err}
		}
		log.Error("itinerary generation failed", err)
		if charged {
			if rerr := s.quota.Refund(context.WithoutCancel(ctx), plannerID); rerr != nil {
				log.Warnw("quota refund failed", "planner", plannerID, "error", rerr)
			}
		}
		return nil, err
	}

	s.enrich(genCtx, it)

	plan := &Plan{
		ID:        uuid.NewString(),
		PlannerID: plannerID,
		Request:   req,
		Itinerary: it,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	st := s.state(plannerID)
	st.current = plan
	st.cleared = false
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Insert(ctx, *plan); err != nil {
			log.Warnw("itinerary archive insert failed", "planner", plannerID, "error", err)
		}
	}
	log.Infow("itinerary generated", "planner", plannerID, "destination", req.Destination, "days", len(it.Days))
	return plan, nil
}

// Current returns the planner's current itinerary, falling back to the
// newest archived one after a restart unless the planner was reset.
func (s *Service) Current(ctx context.Context, plannerID string) (*Plan, error) {
	s.mu.Lock()
	var current *Plan
	cleared := false
	if st, ok := s.planners[plannerID]; ok {
		current, cleared = st.current, st.cleared
	}
	s.mu.Unlock()
	if current != nil {
		return current, nil
	}
	if cleared || s.store == nil {
		return nil, ErrNotFound
	}

	p, err := s.store.Latest(ctx, plannerID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(plannerID)
	if st.cleared {
		return nil, ErrNotFound
	}
	if st.current == nil {
		st.current = &p
	}
	return st.current, nil
}

// Reset clears the planner's current itinerary. Archived plans are kept.
func (s *Service) Reset(plannerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(plannerID)
	st.current = nil
	st.cleared = true
}

// History lists archived plans, newest first.
func (s *Service) History(ctx context.Context, plannerID string, limit int) ([]Plan, error) {
	if s.store == nil {
		return nil, ErrArchiveDisabled
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.ListRecent(ctx, plannerID, limit)
}

// Allowance reports the generations the planner has left this month.
func (s *Service) Allowance(ctx context.Context, plannerID string) (int, error) {
	plannerID = strings.TrimSpace(plannerID)
	if plannerID == "" {
		return 0, fmt.Errorf("%w: planner_id is required", ErrBadRequest)
	}
	if s.quota == nil {
		return 0, ErrQuotaDisabled
	}
	return s.quota.Remaining(ctx, plannerID)
}

// charge takes one generation from the planner's allowance. An unreachable
// quota store does not block generation.
func (s *Service) charge(ctx context.Context, plannerID string) (bool, error) {
	if s.quota == nil {
		return false, nil
	}
	err := s.quota.Charge(ctx, plannerID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, aiusage.ErrAllowanceUsed):
		return false, ErrQuotaExceeded
	default:
		log.Warnw("quota check failed", "planner", plannerID, "error", err)
		return false, nil
	}
}

func (s *Service) begin(plannerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(plannerID)
	if st.generating {
		return ErrGenerationInFlight
	}
	st.generating = true
	return nil
}

func (s *Service) end(plannerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state(plannerID).generating = false
}

// state must be called with s.mu held.
func (s *Service) state(plannerID string) *plannerState {
	st, ok := s.planners[plannerID]
	if !ok {
		st = &plannerState{}
		s.planners[plannerID] = st
	}
	return st
}

// enrich attaches map places and transit legs to activities. Lookups that
// fail are skipped; enrichment never fails a generation.
func (s *Service) enrich(ctx context.Context, it *ai.Itinerary) {
	if s.places == nil && s.routes == nil {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)

	for d := range it.Days {
		day := &it.Days[d]
		for a := range day.Activities {
			act := &day.Activities[a]
			query := qualify(act.Location, it.Destination)

			if s.places != nil {
				g.Go(func() error {
					ref, err := s.places.Resolve(gctx, query)
					if err != nil {
						log.Warnw("place lookup failed", "query", query, "error", err)
						return nil
					}
					act.Place = ref
					return nil
				})
			}
			if s.routes != nil && a > 0 {
				origin := qualify(day.Activities[a-1].Location, it.Destination)
				g.Go(func() error {
					leg, err := s.routes.Estimate(gctx, origin, query)
					if err != nil {
						log.Warnw("route estimate failed", "origin", origin, "destination", query, "error", err)
						return nil
					}
					act.Transit = leg
					return nil
				})
			}
		}
	}
	_ = g.Wait()
}

func qualify(location, destination string) string {
	if destination == "" || strings.Contains(strings.ToLower(location), strings.ToLower(destination)) {
		return location
	}
	return location + ", " + destination
}
