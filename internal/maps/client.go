// README: Google Maps client shared by the place and route lookups.
package maps

import (
	"fmt"

	"googlemaps.github.io/maps"
)

// NewClient creates a Maps Platform client for the given API key.
func NewClient(apiKey string) (*maps.Client, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return client, nil
}
