// README: Location permission state reported by the client for a conversation.
package location

import (
	"errors"
	"time"

	"travelflow/internal/types"
)

type PermissionState string

const (
	PermissionUnknown PermissionState = "unknown"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// Permission is the last geolocation outcome for a conversation. Point is
// set only while the state is granted.
type Permission struct {
	State     PermissionState `json:"state"`
	Point     *types.Point    `json:"point,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Report is one client-side geolocation attempt.
type Report struct {
	Granted bool
	Point   *types.Point
	Reason  string
}

var (
	ErrLocationUnavailable = errors.New("location permission granted but no position reported")
	ErrInvalidCoordinates  = errors.New("coordinates out of range")
)
