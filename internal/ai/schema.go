package ai

import "github.com/google/generative-ai-go/genai"

// itinerarySchema describes the JSON document the model must return.
// Field names match the Itinerary json tags.
func itinerarySchema() *genai.Schema {
	activity := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"time":        {Type: genai.TypeString, Description: "Suggested time (e.g., '10:00 AM')."},
			"activity":    {Type: genai.TypeString, Description: "Name of the activity."},
			"description": {Type: genai.TypeString, Description: "Short description of what to do."},
			"location":    {Type: genai.TypeString, Description: "Name of the place where the activity happens."},
			"tips":        {Type: genai.TypeString, Description: "Optional practical tip."},
		},
		Required: []string{"time", "activity", "description", "location"},
	}

	day := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"day":        {Type: genai.TypeInteger, Description: "Day number."},
			"theme":      {Type: genai.TypeString, Description: "Theme of the day."},
			"activities": {Type: genai.TypeArray, Items: activity},
		},
		Required: []string{"day", "theme", "activities"},
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"destination": {Type: genai.TypeString, Description: "The destination city or country."},
			"duration":    {Type: genai.TypeString, Description: "Duration of the trip (e.g., '3 Days')."},
			"itinerary":   {Type: genai.TypeArray, Items: day},
		},
		Required: []string{"destination", "duration", "itinerary"},
	}
}
