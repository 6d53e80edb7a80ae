package chat

import (
	"context"
	"sync"
)

// snapshotSlot is a one-deep mailbox. Publishing replaces an unread snapshot,
// so a slow reader only ever sees the latest state. Single producer only.
type snapshotSlot struct {
	ch chan Message
}

func newSnapshotSlot() *snapshotSlot {
	return &snapshotSlot{ch: make(chan Message, 1)}
}

func (s *snapshotSlot) publish(m Message) {
	for {
		select {
		case s.ch <- m:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// TurnResult is the terminal outcome of a turn.
type TurnResult struct {
	State TurnState
	// Message is the model message as it was frozen. Zero when the stream never opened.
	Message Message
	// ErrorMessage is the synthetic error entry appended on failure.
	ErrorMessage *Message
	Err          error
}

// Turn is a handle on one in-flight send.
type Turn struct {
	ConversationID string
	UserMessage    Message

	updates *snapshotSlot
	done    chan struct{}
	cancel  context.CancelFunc

	mu     sync.Mutex
	result TurnResult
}

func newTurn(conversationID string, user Message, cancel context.CancelFunc) *Turn {
	return &Turn{
		ConversationID: conversationID,
		UserMessage:    user,
		updates:        newSnapshotSlot(),
		done:           make(chan struct{}),
		cancel:         cancel,
	}
}

// Updates delivers model message snapshots; unread snapshots are superseded.
func (t *Turn) Updates() <-chan Message {
	return t.updates.ch
}

// Done is closed once the turn is settled or failed.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Result is valid after Done is closed.
func (t *Turn) Result() TurnResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Cancel aborts the remote stream; the turn then fails.
func (t *Turn) Cancel() {
	t.cancel()
}

func (t *Turn) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *Turn) finish(res TurnResult) {
	t.mu.Lock()
	t.result = res
	t.mu.Unlock()
	t.cancel()
	close(t.done)
}
