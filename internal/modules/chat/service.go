// README: Chat service; owns conversations, their remote sessions, and the streaming turn loop.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"travelflow/internal/ai"
	"travelflow/internal/log"
	"travelflow/internal/types"
)

const (
	persistTimeout = 5 * time.Second
	defaultIdleTTL = 24 * time.Hour
)

// LocationSource reports the location bias recorded for a conversation, or
// nil when none is granted.
type LocationSource interface {
	Bias(ctx context.Context, conversationID string) (*types.Point, error)
}

type Options struct {
	Overlap OverlapPolicy
	Store   TranscriptStore
	// Locations restores the bias of conversations reloaded from Store.
	Locations LocationSource
	// IdleTTL is how long an idle conversation stays in memory before it is
	// dropped and later reloaded from Store.
	IdleTTL time.Duration
	// MaxMessages caps the in-memory transcript; zero keeps everything.
	MaxMessages int
}

type Service struct {
	sessions    ai.SessionFactory
	store       TranscriptStore
	locations   LocationSource
	policy      OverlapPolicy
	idleTTL     time.Duration
	maxMessages int
	now         func() time.Time

	mu        sync.Mutex
	convs     map[string]*conversation
	lastSweep time.Time
}

type conversation struct {
	mu        sync.Mutex
	id        string
	createdAt time.Time
	messages  []Message
	session   ai.ChatSession
	location  *types.Point
	// binding increments on every BindLocation so a session created for an
	// older location is never installed.
	binding int
	active  *Turn

	// lastUsed is guarded by Service.mu.
	lastUsed time.Time
}

func NewService(sessions ai.SessionFactory, opts Options) *Service {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Overlap == "" {
		opts.Overlap = OverlapReject
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = defaultIdleTTL
	}
	return &Service{
		sessions:    sessions,
		store:       opts.Store,
		locations:   opts.Locations,
		policy:      opts.Overlap,
		idleTTL:     opts.IdleTTL,
		maxMessages: opts.MaxMessages,
		now:         time.Now,
		convs:       make(map[string]*conversation),
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Create opens a conversation seeded with the welcome message. The remote
// session is created lazily on the first send.
func (s *Service) Create(ctx context.Context) (Conversation, error) {
	now := time.Now()
	conv := &conversation{
		id:        newID(),
		createdAt: now,
		messages: []Message{{
			ID:        WelcomeMessageID,
			Role:      RoleModel,
			Text:      WelcomeMessageText,
			Timestamp: now,
		}},
	}

	s.mu.Lock()
	s.sweepLocked()
	conv.lastUsed = s.now()
	s.convs[conv.id] = conv
	s.mu.Unlock()

	if err := s.store.Save(ctx, conv.id, conv.messages); err != nil {
		return Conversation{}, err
	}
	return conv.view(), nil
}

// Get returns the conversation with its ordered messages.
func (s *Service) Get(ctx context.Context, id string) (Conversation, error) {
	conv, err := s.lookup(ctx, id)
	if err != nil {
		return Conversation{}, err
	}
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return conv.view(), nil
}

func (s *Service) Messages(ctx context.Context, id string) ([]Message, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Messages, nil
}

// BindLocation replaces the location bias and recreates the session. A turn
// already streaming keeps the session it started with.
func (s *Service) BindLocation(ctx context.Context, id string, loc *types.Point) error {
	conv, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if loc != nil {
		p := *loc
		loc = &p
	}

	conv.mu.Lock()
	conv.location = loc
	conv.session = nil
	conv.binding++
	binding := conv.binding
	conv.mu.Unlock()

	session, err := s.sessions.NewSession(ctx, loc)
	if err != nil {
		// The next send retries creation and reports the failure in the transcript.
		log.Warnw("chat session recreate failed", "conversation", id, "error", err)
		return nil
	}
	conv.mu.Lock()
	if conv.binding == binding && conv.session == nil {
		conv.session = session
	}
	conv.mu.Unlock()
	return nil
}

// Send appends the user message, opens the remote stream, appends the
// placeholder model message, and starts consuming chunks in the background.
// Failures after the user message is recorded are reported through the
// returned Turn, not as an error.
func (s *Service) Send(ctx context.Context, id, text string) (*Turn, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	conv, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	conv.mu.Lock()
	for conv.active != nil && !conv.active.finished() {
		if s.policy != OverlapCancel {
			conv.mu.Unlock()
			return nil, ErrTurnInFlight
		}
		prev := conv.active
		prev.Cancel()
		conv.mu.Unlock()
		<-prev.Done()
		conv.mu.Lock()
	}

	s.trimLocked(conv)
	userMsg := Message{ID: newID(), Role: RoleUser, Text: text, Timestamp: time.Now()}
	conv.messages = append(conv.messages, userMsg)

	// The turn outlives the request that started it; only the overlap policy
	// or a remote failure ends it early.
	turnCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	turn := newTurn(conv.id, userMsg, cancel)
	conv.active = turn

	session := conv.session
	loc, binding := conv.location, conv.binding
	conv.mu.Unlock()
	s.persist(conv)

	if session == nil {
		session, err = s.sessions.NewSession(turnCtx, loc)
		if err != nil {
			conv.mu.Lock()
			res := s.failLocked(conv, nil, err)
			conv.mu.Unlock()
			s.persist(conv)
			turn.finish(res)
			return turn, nil
		}
		conv.mu.Lock()
		if conv.binding == binding && conv.session == nil {
			conv.session = session
		}
		conv.mu.Unlock()
	}

	stream, err := session.SendMessageStream(turnCtx, text)

	conv.mu.Lock()
	if err != nil {
		res := s.failLocked(conv, nil, err)
		conv.mu.Unlock()
		s.persist(conv)
		turn.finish(res)
		return turn, nil
	}
	acc := NewAccumulator()
	_ = acc.Begin(Message{ID: newID(), Role: RoleModel, Timestamp: time.Now()})
	conv.messages = append(conv.messages, acc.Snapshot())
	index := len(conv.messages) - 1
	conv.mu.Unlock()
	s.persist(conv)

	turn.updates.publish(acc.Snapshot())
	go s.consume(conv, turn, stream, acc, index)
	return turn, nil
}

// Stop cancels the conversation's in-flight turn, which then fails. It
// reports whether a turn was running.
func (s *Service) Stop(ctx context.Context, id string) (bool, error) {
	conv, err := s.lookup(ctx, id)
	if err != nil {
		return false, err
	}
	conv.mu.Lock()
	active := conv.active
	conv.mu.Unlock()
	if active == nil || active.finished() {
		return false, nil
	}
	active.Cancel()
	<-active.Done()
	return true, nil
}

func (s *Service) consume(conv *conversation, turn *Turn, stream ai.ChunkStream, acc *Accumulator, index int) {
	defer stream.Close()
	for {
		chunk, err := stream.Next()
		if errors.Is(err, iterator.Done) {
			conv.mu.Lock()
			_ = acc.Settle()
			final := acc.Snapshot()
			conv.messages[index] = final
			conv.mu.Unlock()
			s.persist(conv)
			turn.finish(TurnResult{State: TurnSettled, Message: final})
			return
		}
		if err != nil {
			conv.mu.Lock()
			res := s.failLocked(conv, acc, err)
			conv.mu.Unlock()
			s.persist(conv)
			turn.finish(res)
			return
		}

		conv.mu.Lock()
		snap, _ := acc.Apply(chunk)
		conv.messages[index] = snap
		conv.mu.Unlock()
		turn.updates.publish(snap)
	}
}

// failLocked appends the synthetic error message and builds the failed
// result. The partial model message, if any, is left exactly as it stood.
func (s *Service) failLocked(conv *conversation, acc *Accumulator, cause error) TurnResult {
	errMsg := Message{
		ID:        newID(),
		Role:      RoleModel,
		Text:      ErrorMessageText,
		Timestamp: time.Now(),
		Error:     true,
	}
	conv.messages = append(conv.messages, errMsg)

	res := TurnResult{
		State:        TurnFailed,
		ErrorMessage: &errMsg,
		Err:          &StreamError{ConversationID: conv.id, Err: cause},
	}
	if acc != nil {
		_ = acc.Fail()
		res.Message = acc.Snapshot()
	}
	log.Error("chat turn failed", res.Err)
	return res
}

func (s *Service) persist(conv *conversation) {
	conv.mu.Lock()
	msgs := cloneMessages(conv.messages)
	conv.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.store.Save(ctx, conv.id, msgs); err != nil {
		log.Warnw("transcript save failed", "conversation", conv.id, "error", err)
	}
}

// trimLocked drops the oldest messages beyond the cap. It runs only between
// turns, while no consumer holds an index into messages.
func (s *Service) trimLocked(conv *conversation) {
	if s.maxMessages <= 0 || len(conv.messages) <= s.maxMessages {
		return
	}
	drop := len(conv.messages) - s.maxMessages
	conv.messages = append([]Message(nil), conv.messages[drop:]...)
}

// sweepLocked drops conversations idle for longer than idleTTL. Conversations
// with a turn in flight stay. Must be called with s.mu held.
func (s *Service) sweepLocked() {
	now := s.now()
	if now.Sub(s.lastSweep) < s.idleTTL/4 {
		return
	}
	s.lastSweep = now
	for id, conv := range s.convs {
		if now.Sub(conv.lastUsed) < s.idleTTL {
			continue
		}
		conv.mu.Lock()
		busy := conv.active != nil && !conv.active.finished()
		conv.mu.Unlock()
		if !busy {
			delete(s.convs, id)
		}
	}
}

// lookup finds a live conversation or rehydrates one from the transcript
// store. A rehydrated conversation starts a fresh remote session biased to
// the location recorded for it.
func (s *Service) lookup(ctx context.Context, id string) (*conversation, error) {
	s.mu.Lock()
	s.sweepLocked()
	conv, ok := s.convs[id]
	if ok {
		conv.lastUsed = s.now()
	}
	s.mu.Unlock()
	if ok {
		return conv, nil
	}

	msgs, found, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrNotFound
	}
	conv = &conversation{id: id, messages: msgs}
	if len(msgs) > 0 {
		conv.createdAt = msgs[0].Timestamp
	}
	if s.locations != nil {
		loc, err := s.locations.Bias(ctx, id)
		if err != nil {
			log.Warnw("location bias restore failed", "conversation", id, "error", err)
		}
		conv.location = loc
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.convs[id]; ok {
		existing.lastUsed = s.now()
		return existing, nil
	}
	conv.lastUsed = s.now()
	s.convs[id] = conv
	return conv, nil
}

func (c *conversation) view() Conversation {
	return Conversation{
		ID:        c.id,
		CreatedAt: c.createdAt,
		Messages:  cloneMessages(c.messages),
		Streaming: c.active != nil && !c.active.finished(),
	}
}
