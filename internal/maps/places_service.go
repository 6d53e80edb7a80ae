// README: Resolves free-text itinerary locations to Google Maps places.
package maps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"googlemaps.github.io/maps"

	"travelflow/internal/ai"
)

// minRatings is the review count a result needs before it beats an earlier,
// less reviewed match.
const minRatings = 20

var ErrNoPlace = errors.New("no matching place")

// PlacesService handles interactions with Google Places API.
type PlacesService struct {
	client   *maps.Client
	language string
}

// NewPlacesService wraps a Maps client. An empty language lets the API decide.
func NewPlacesService(client *maps.Client, language string) *PlacesService {
	return &PlacesService{client: client, language: language}
}

// Resolve runs a text search for query and returns the best match.
func (s *PlacesService) Resolve(ctx context.Context, query string) (*ai.PlaceRef, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoPlace
	}
	resp, err := s.client.TextSearch(ctx, &maps.TextSearchRequest{
		Query:    query,
		Language: s.language,
	})
	if err != nil {
		return nil, fmt.Errorf("places api error: %w", err)
	}
	best, ok := pickBest(resp.Results)
	if !ok {
		return nil, ErrNoPlace
	}
	return &ai.PlaceRef{
		PlaceID: best.PlaceID,
		Name:    best.Name,
		Address: best.FormattedAddress,
		Rating:  best.Rating,
		MapsURI: placeURI(best.PlaceID),
	}, nil
}

// pickBest keeps the API's relevance order but skips leading results with
// too few reviews to be trusted, falling back to the first result.
func pickBest(results []maps.PlacesSearchResult) (maps.PlacesSearchResult, bool) {
	if len(results) == 0 {
		return maps.PlacesSearchResult{}, false
	}
	for i, r := range results {
		if i >= 3 {
			break
		}
		if r.PlaceID != "" && r.UserRatingsTotal >= minRatings {
			return r, true
		}
	}
	return results[0], results[0].PlaceID != ""
}

func placeURI(placeID string) string {
	return "https://www.google.com/maps/place/?q=place_id:" + placeID
}
