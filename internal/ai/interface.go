package ai

import (
	"context"
	"fmt"

	"travelflow/internal/types"
)

// ItineraryPlanner produces a structured itinerary in one blocking call.
// Implementations must not retry.
type ItineraryPlanner interface {
	PlanItinerary(ctx context.Context, req TripRequest) (*Itinerary, error)
}

// SessionFactory creates chat sessions. A nil loc means no location bias.
// A session's location binding never changes; callers create a new session instead.
type SessionFactory interface {
	NewSession(ctx context.Context, loc *types.Point) (ChatSession, error)
}

// ChatSession is a stateful conversation whose history lives remotely.
type ChatSession interface {
	// SendMessageStream opens a response stream for one user message.
	// It returns once the remote side has accepted the turn.
	SendMessageStream(ctx context.Context, text string) (ChunkStream, error)
}

// ChunkStream yields chunks in arrival order. Next returns iterator.Done
// after the last chunk.
type ChunkStream interface {
	Next() (StreamChunk, error)
	Close() error
}

// GenerationError reports a failed structured generation call.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation %s: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
