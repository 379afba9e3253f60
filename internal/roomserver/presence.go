package roomserver

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const presenceTTL = 24 * time.Hour

type Participant struct {
	ClientID string    `json:"client_id"`
	Name     string    `json:"name"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// Presence tracks who is in which room. The redis implementation lets
// multiple room server instances agree on membership; the memory
// implementation backs single-instance and test runs.
type Presence interface {
	Join(ctx context.Context, roomID string, p Participant) error
	Leave(ctx context.Context, roomID, clientID string) error
	List(ctx context.Context, roomID string) ([]Participant, error)
}

type RedisPresence struct {
	redis *redis.Client
}

func NewRedisPresence(client *redis.Client) *RedisPresence {
	return &RedisPresence{redis: client}
}

func presenceKey(roomID string) string {
	return "room:" + roomID + ":participants"
}

func (s *RedisPresence) Join(ctx context.Context, roomID string, p Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	key := presenceKey(roomID)
	if err := s.redis.HSet(ctx, key, p.ClientID, data).Err(); err != nil {
		return err
	}
	return s.redis.Expire(ctx, key, presenceTTL).Err()
}

func (s *RedisPresence) Leave(ctx context.Context, roomID, clientID string) error {
	return s.redis.HDel(ctx, presenceKey(roomID), clientID).Err()
}

func (s *RedisPresence) List(ctx context.Context, roomID string) ([]Participant, error) {
	entries, err := s.redis.HGetAll(ctx, presenceKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	participants := make([]Participant, 0, len(entries))
	for _, raw := range entries {
		var p Participant
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		participants = append(participants, p)
	}
	return participants, nil
}

type MemoryPresence struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Participant
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{rooms: make(map[string]map[string]Participant)}
}

func (s *MemoryPresence) Join(_ context.Context, roomID string, p Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		room = make(map[string]Participant)
		s.rooms[roomID] = room
	}
	room[p.ClientID] = p
	return nil
}

func (s *MemoryPresence) Leave(_ context.Context, roomID, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[roomID]; ok {
		delete(room, clientID)
		if len(room) == 0 {
			delete(s.rooms, roomID)
		}
	}
	return nil
}

func (s *MemoryPresence) List(_ context.Context, roomID string) ([]Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room := s.rooms[roomID]
	participants := make([]Participant, 0, len(room))
	for _, p := range room {
		participants = append(participants, p)
	}
	return participants, nil
}
