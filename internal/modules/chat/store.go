// README: Transcript stores; Redis for shared deployments, memory for single-process runs.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TranscriptStore persists conversation transcripts between turns.
type TranscriptStore interface {
	Load(ctx context.Context, conversationID string) ([]Message, bool, error)
	Save(ctx context.Context, conversationID string, messages []Message) error
}

type MemoryStore struct {
	mu          sync.Mutex
	transcripts map[string][]Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{transcripts: make(map[string][]Message)}
}

func (s *MemoryStore) Load(_ context.Context, conversationID string) ([]Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, ok := s.transcripts[conversationID]
	if !ok {
		return nil, false, nil
	}
	return cloneMessages(msgs), true, nil
}

func (s *MemoryStore) Save(_ context.Context, conversationID string, messages []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[conversationID] = cloneMessages(messages)
	return nil
}

// RedisStore keeps the most recent maxMessages of each transcript under a TTL.
type RedisStore struct {
	client      *redis.Client
	ttl         time.Duration
	maxMessages int
}

func NewRedisStore(client *redis.Client, ttl time.Duration, maxMessages int) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, maxMessages: maxMessages}
}

func transcriptKey(conversationID string) string {
	return fmt.Sprintf("travelflow:conversation:%s", conversationID)
}

func (s *RedisStore) Load(ctx context.Context, conversationID string) ([]Message, bool, error) {
	data, err := s.client.Get(ctx, transcriptKey(conversationID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get conversation transcript: %w", err)
	}
	var messages []Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal conversation transcript: %w", err)
	}
	return messages, true, nil
}

func (s *RedisStore) Save(ctx context.Context, conversationID string, messages []Message) error {
	if s.maxMessages > 0 && len(messages) > s.maxMessages {
		messages = messages[len(messages)-s.maxMessages:]
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation transcript: %w", err)
	}
	if err := s.client.Set(ctx, transcriptKey(conversationID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set conversation transcript: %w", err)
	}
	return nil
}

func cloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.clone()
	}
	return out
}
