// README: Planner result record and module errors.
package itinerary

import (
	"errors"
	"time"

	"travelflow/internal/ai"
)

// Plan is one accepted itinerary together with the request that produced it.
type Plan struct {
	ID        string         `json:"id"`
	PlannerID string         `json:"planner_id"`
	Request   ai.TripRequest `json:"request"`
	Itinerary *ai.Itinerary  `json:"itinerary"`
	CreatedAt time.Time      `json:"created_at"`
}

var (
	ErrBadRequest         = errors.New("bad request")
	ErrNotFound           = errors.New("no itinerary for planner")
	ErrGenerationInFlight = errors.New("an itinerary is already being generated for this planner")
	ErrArchiveDisabled    = errors.New("itinerary archive not configured")
	ErrQuotaExceeded      = errors.New("monthly itinerary allowance used up")
	ErrQuotaDisabled      = errors.New("generation allowance not configured")
)
