// README: Permission store; Redis hash per conversation, in-memory fallback.
package location

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"travelflow/internal/types"
)

// Store persists the permission outcome per conversation.
type Store interface {
	Get(ctx context.Context, conversationID string) (Permission, bool, error)
	Put(ctx context.Context, conversationID string, p Permission) error
}

type MemoryStore struct {
	mu    sync.Mutex
	perms map[string]Permission
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{perms: make(map[string]Permission)}
}

func (s *MemoryStore) Get(_ context.Context, conversationID string) (Permission, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.perms[conversationID]
	return p, ok, nil
}

func (s *MemoryStore) Put(_ context.Context, conversationID string, p Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Point != nil {
		pt := *p.Point
		p.Point = &pt
	}
	s.perms[conversationID] = p
	return nil
}

type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore keeps permissions for ttl, refreshed on every write.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: client, ttl: ttl}
}

func permissionKey(conversationID string) string {
	return fmt.Sprintf("travelflow:location:%s", conversationID)
}

func (s *RedisStore) Get(ctx context.Context, conversationID string) (Permission, bool, error) {
	fields, err := s.redis.HGetAll(ctx, permissionKey(conversationID)).Result()
	if err != nil {
		return Permission{}, false, err
	}
	if len(fields) == 0 {
		return Permission{}, false, nil
	}
	p := Permission{
		State:  PermissionState(fields["state"]),
		Reason: fields["reason"],
	}
	if ts, err := time.Parse(time.RFC3339Nano, fields["updated_at"]); err == nil {
		p.UpdatedAt = ts
	}
	if lat, lng := fields["lat"], fields["lng"]; lat != "" && lng != "" {
		latF, err1 := strconv.ParseFloat(lat, 64)
		lngF, err2 := strconv.ParseFloat(lng, 64)
		if err1 == nil && err2 == nil {
			p.Point = &types.Point{Lat: latF, Lng: lngF}
		}
	}
	return p, true, nil
}

func (s *RedisStore) Put(ctx context.Context, conversationID string, p Permission) error {
	key := permissionKey(conversationID)
	values := map[string]interface{}{
		"state":      string(p.State),
		"reason":     p.Reason,
		"updated_at": p.UpdatedAt.Format(time.RFC3339Nano),
		"lat":        "",
		"lng":        "",
	}
	if p.Point != nil {
		values["lat"] = strconv.FormatFloat(p.Point.Lat, 'f', -1, 64)
		values["lng"] = strconv.FormatFloat(p.Point.Lng, 'f', -1, 64)
	}
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, key, values)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
