package chat

import "travelflow/internal/ai"

// Accumulator folds stream chunks into the model message of one turn.
// It holds no locks; the owner serializes calls.
type Accumulator struct {
	state TurnState
	msg   Message
}

func NewAccumulator() *Accumulator {
	return &Accumulator{state: TurnIdle}
}

// Begin moves to streaming with msg as the empty placeholder.
func (a *Accumulator) Begin(msg Message) error {
	if err := a.transition(TurnStreaming); err != nil {
		return err
	}
	msg.Text = ""
	msg.Grounding = nil
	msg.InProgress = true
	a.msg = msg
	return nil
}

// Apply appends the chunk text and grounding in arrival order and returns the
// updated snapshot. In-progress stays set only while no text has arrived.
func (a *Accumulator) Apply(chunk ai.StreamChunk) (Message, error) {
	if a.state != TurnStreaming {
		return a.Snapshot(), ErrInvalidTransition
	}
	a.msg.Text += chunk.Text
	if len(chunk.Grounding) > 0 {
		a.msg.Grounding = append(a.msg.Grounding, chunk.Grounding...)
	}
	a.msg.InProgress = a.msg.Text == ""
	return a.Snapshot(), nil
}

// Settle freezes the message after a clean end of stream.
func (a *Accumulator) Settle() error {
	return a.transition(TurnSettled)
}

// Fail freezes the message as it last stood.
func (a *Accumulator) Fail() error {
	return a.transition(TurnFailed)
}

func (a *Accumulator) State() TurnState {
	return a.state
}

func (a *Accumulator) Snapshot() Message {
	return a.msg.clone()
}

func (a *Accumulator) transition(to TurnState) error {
	if !CanTransition(a.state, to) {
		return ErrInvalidTransition
	}
	a.state = to
	return nil
}
