package ai

import (
	"errors"
	"fmt"
	"strings"
)

// Vibe is the overall mood requested for a trip.
type Vibe string

const (
	VibeRelaxed   Vibe = "Relaxed"
	VibeAdventure Vibe = "Adventure"
	VibeCultural  Vibe = "Cultural"
	VibeFoodie    Vibe = "Foodie"
	VibeFamily    Vibe = "Family"
	VibeLuxury    Vibe = "Luxury"
)

// Vibes lists every accepted vibe in display order.
var Vibes = []Vibe{VibeRelaxed, VibeAdventure, VibeCultural, VibeFoodie, VibeFamily, VibeLuxury}

// ParseVibe matches s case-insensitively against the known vibes.
func ParseVibe(s string) (Vibe, bool) {
	s = strings.TrimSpace(s)
	for _, v := range Vibes {
		if strings.EqualFold(string(v), s) {
			return v, true
		}
	}
	return "", false
}

const (
	DefaultTripDays = 3
	MaxTripDays     = 14
)

// TripRequest is the immutable input to one itinerary generation.
type TripRequest struct {
	Destination string `json:"destination"`
	Days        int    `json:"days"`
	Vibe        Vibe   `json:"vibe"`
	Interests   string `json:"interests,omitempty"`
}

var (
	ErrMissingDestination = errors.New("destination is required")
	ErrInvalidDays        = fmt.Errorf("days must be between 1 and %d", MaxTripDays)
	ErrInvalidVibe        = errors.New("unknown vibe")
)

// Validate checks the request before any remote call is made.
func (r TripRequest) Validate() error {
	if strings.TrimSpace(r.Destination) == "" {
		return ErrMissingDestination
	}
	if r.Days < 1 || r.Days > MaxTripDays {
		return ErrInvalidDays
	}
	if _, ok := ParseVibe(string(r.Vibe)); !ok {
		return ErrInvalidVibe
	}
	return nil
}

// Itinerary is the structured multi-day plan returned by one generation call.
type Itinerary struct {
	Destination string         `json:"destination"`
	Duration    string         `json:"duration"`
	Days        []ItineraryDay `json:"itinerary"`
}

type ItineraryDay struct {
	Day        int                 `json:"day"`
	Theme      string              `json:"theme"`
	Activities []ItineraryActivity `json:"activities"`
}

type ItineraryActivity struct {
	Time        string `json:"time"`
	Activity    string `json:"activity"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Tips        string `json:"tips,omitempty"`

	// Filled by place enrichment; never part of the model response.
	Place   *PlaceRef   `json:"place,omitempty"`
	Transit *TransitLeg `json:"transit_from_previous,omitempty"`
}

// PlaceRef links an activity location to a resolved map place.
type PlaceRef struct {
	PlaceID string  `json:"place_id"`
	Name    string  `json:"name"`
	Address string  `json:"address,omitempty"`
	Rating  float32 `json:"rating,omitempty"`
	MapsURI string  `json:"maps_uri"`
}

// TransitLeg estimates travel from the previous activity of the same day.
type TransitLeg struct {
	Mode            string `json:"mode"`
	DurationMinutes int    `json:"duration_minutes"`
	Distance        string `json:"distance"`
}

// Validate enforces the response contract: required fields present and day
// indices forming the run 1..n with no gaps or duplicates.
func (it *Itinerary) Validate() error {
	if it == nil {
		return errors.New("empty itinerary")
	}
	if strings.TrimSpace(it.Destination) == "" {
		return errors.New("missing destination")
	}
	if strings.TrimSpace(it.Duration) == "" {
		return errors.New("missing duration")
	}
	if len(it.Days) == 0 {
		return errors.New("itinerary has no days")
	}
	for i, d := range it.Days {
		if d.Day != i+1 {
			return fmt.Errorf("day %d at position %d: days must run sequentially from 1", d.Day, i+1)
		}
		if strings.TrimSpace(d.Theme) == "" {
			return fmt.Errorf("day %d: missing theme", d.Day)
		}
		if len(d.Activities) == 0 {
			return fmt.Errorf("day %d: no activities", d.Day)
		}
		for j, a := range d.Activities {
			if a.Time == "" || a.Activity == "" || a.Description == "" || a.Location == "" {
				return fmt.Errorf("day %d activity %d: missing required field", d.Day, j+1)
			}
		}
	}
	return nil
}

// StreamChunk is one incremental unit of a streamed chat response.
type StreamChunk struct {
	Text      string
	Grounding []GroundingChunk
}
