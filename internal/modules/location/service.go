// README: Location service records geolocation outcomes and rebinds chat sessions.
package location

import (
	"context"
	"fmt"
	"strings"
	"time"

	"travelflow/internal/log"
	"travelflow/internal/types"
)

// rebindThresholdKm is the smallest move that recreates the chat session.
const rebindThresholdKm = 0.05

// Binder recreates a conversation's model session biased to a location, or
// unbiased when loc is nil.
type Binder interface {
	BindLocation(ctx context.Context, conversationID string, loc *types.Point) error
}

type Service struct {
	binder Binder
	store  Store
}

func NewService(binder Binder, store Store) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Service{binder: binder, store: store}
}

// Status returns the recorded permission, or the unknown state.
func (s *Service) Status(ctx context.Context, conversationID string) (Permission, error) {
	p, ok, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return Permission{}, err
	}
	if !ok {
		return Permission{State: PermissionUnknown}, nil
	}
	return p, nil
}

// StoreBias reports the granted point recorded in a permission store, or nil
// when location is not granted. Chat uses it to restore the bias of a
// conversation reloaded after a restart.
type StoreBias struct {
	Store Store
}

func (b StoreBias) Bias(ctx context.Context, conversationID string) (*types.Point, error) {
	p, ok, err := b.Store.Get(ctx, conversationID)
	if err != nil || !ok || p.State != PermissionGranted || p.Point == nil {
		return nil, err
	}
	pt := *p.Point
	return &pt, nil
}

// Apply records a client geolocation outcome. A grant binds the session to
// the reported point; a denial leaves the session unbiased and never errors.
// Errors from the binder (unknown conversation) are returned unchanged.
func (s *Service) Apply(ctx context.Context, conversationID string, r Report) (Permission, error) {
	prev, err := s.Status(ctx, conversationID)
	if err != nil {
		return Permission{}, err
	}

	if r.Granted && r.Point == nil {
		r = Report{Reason: ErrLocationUnavailable.Error()}
	}
	if r.Granted && !r.Point.Valid() {
		return Permission{}, fmt.Errorf("%w: %s", ErrInvalidCoordinates, r.Point)
	}

	next := Permission{
		State:     PermissionDenied,
		Reason:    strings.TrimSpace(r.Reason),
		UpdatedAt: time.Now().UTC(),
	}
	if r.Granted {
		pt := *r.Point
		next = Permission{State: PermissionGranted, Point: &pt, UpdatedAt: next.UpdatedAt}
	}

	switch {
	case next.State == PermissionGranted && (prev.State != PermissionGranted || moved(prev.Point, next.Point, rebindThresholdKm)):
		if err := s.binder.BindLocation(ctx, conversationID, next.Point); err != nil {
			return Permission{}, err
		}
	case next.State == PermissionDenied && prev.State == PermissionGranted:
		// drop the bias from an earlier grant
		if err := s.binder.BindLocation(ctx, conversationID, nil); err != nil {
			return Permission{}, err
		}
	}

	if err := s.store.Put(ctx, conversationID, next); err != nil {
		log.Warnw("location permission save failed", "conversation", conversationID, "error", err)
	}
	log.Infow("location permission updated", "conversation", conversationID, "state", next.State)
	return next, nil
}
