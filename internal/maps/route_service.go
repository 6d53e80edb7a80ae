// README: Travel estimates between consecutive itinerary stops via the Directions API.
package maps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"travelflow/internal/ai"
)

// walkLimit is the longest walk suggested before transit is tried instead.
const walkLimit = 25 * time.Minute

var ErrNoRoute = errors.New("no route found")

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client   *maps.Client
	language string
}

// NewRouteService wraps a Maps client. An empty language lets the API decide.
func NewRouteService(client *maps.Client, language string) *RouteService {
	return &RouteService{client: client, language: language}
}

// Estimate returns a walking leg, or a transit leg when the walk is too long
// and transit is available.
func (s *RouteService) Estimate(ctx context.Context, origin, destination string) (*ai.TransitLeg, error) {
	walk, err := s.leg(ctx, origin, destination, maps.TravelModeWalking)
	if err != nil {
		return nil, err
	}
	if walk.Duration <= walkLimit {
		return toTransitLeg(walk, "walking"), nil
	}
	transit, err := s.leg(ctx, origin, destination, maps.TravelModeTransit)
	if err != nil || transit.Duration >= walk.Duration {
		return toTransitLeg(walk, "walking"), nil
	}
	return toTransitLeg(transit, "transit"), nil
}

func (s *RouteService) leg(ctx context.Context, origin, destination string, mode maps.Mode) (*maps.Leg, error) {
	routes, _, err := s.client.Directions(ctx, &maps.DirectionsRequest{
		Origin:      origin,
		Destination: destination,
		Mode:        mode,
		Language:    s.language,
	})
	if err != nil {
		return nil, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, ErrNoRoute
	}
	return routes[0].Legs[0], nil
}

func toTransitLeg(leg *maps.Leg, mode string) *ai.TransitLeg {
	minutes := int((leg.Duration + 30*time.Second) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return &ai.TransitLeg{
		Mode:            mode,
		DurationMinutes: minutes,
		Distance:        leg.Distance.HumanReadable,
	}
}
