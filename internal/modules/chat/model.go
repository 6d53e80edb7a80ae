// README: Chat message and turn definitions, including the turn state flow.
package chat

import (
	"errors"
	"fmt"
	"time"

	"travelflow/internal/ai"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

const (
	WelcomeMessageID   = "welcome"
	WelcomeMessageText = "Hello! I'm your travel assistant. I can help you find places, check the weather, or discover new destinations. Where would you like to explore today?"
	ErrorMessageText   = "I'm sorry, I encountered an error while processing your request. Please try again."
)

// Message is one entry of a conversation transcript. Only the newest model
// message of an in-flight turn is ever mutated.
type Message struct {
	ID         string           `json:"id"`
	Role       Role             `json:"role"`
	Text       string           `json:"text"`
	Timestamp  time.Time        `json:"timestamp"`
	InProgress bool             `json:"in_progress"`
	Error      bool             `json:"error,omitempty"`
	Grounding  ai.GroundingList `json:"grounding,omitempty"`
}

// clone copies the grounding slice so snapshots never alias live state.
func (m Message) clone() Message {
	if m.Grounding != nil {
		g := make(ai.GroundingList, len(m.Grounding))
		copy(g, m.Grounding)
		m.Grounding = g
	}
	return m
}

type TurnState string

const (
	TurnIdle      TurnState = "idle"
	TurnStreaming TurnState = "streaming"
	TurnSettled   TurnState = "settled"
	TurnFailed    TurnState = "failed"
)

// AllowedTransitions represents the turn state flow as code.
var AllowedTransitions = map[TurnState][]TurnState{
	TurnIdle:      {TurnStreaming, TurnFailed},
	TurnStreaming: {TurnSettled, TurnFailed},
}

func CanTransition(from, to TurnState) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// OverlapPolicy decides what a send does while a turn is still streaming.
type OverlapPolicy string

const (
	// OverlapReject refuses the new send with ErrTurnInFlight.
	OverlapReject OverlapPolicy = "reject"
	// OverlapCancel cancels the streaming turn, waits for it to finish, then sends.
	OverlapCancel OverlapPolicy = "cancel"
)

func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch OverlapPolicy(s) {
	case OverlapReject, "":
		return OverlapReject, nil
	case OverlapCancel:
		return OverlapCancel, nil
	}
	return "", fmt.Errorf("unknown overlap policy %q", s)
}

var (
	ErrNotFound          = errors.New("conversation not found")
	ErrEmptyMessage      = errors.New("message text is empty")
	ErrTurnInFlight      = errors.New("a response is still streaming for this conversation")
	ErrInvalidTransition = errors.New("invalid turn state transition")
)

// StreamError reports a chat turn that failed while opening or consuming the stream.
type StreamError struct {
	ConversationID string
	Err            error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("chat stream %s: %v", e.ConversationID, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// Conversation is the read model returned to callers.
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
	Streaming bool      `json:"streaming"`
}
