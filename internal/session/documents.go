package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DocumentStore is one tier of session metadata persistence. Implementations
// return ErrNotFound for absent records and opaque errors when the backing
// store is unreachable.
type DocumentStore interface {
	Put(ctx context.Context, rec Record, ttl time.Duration) error
	Get(ctx context.Context, id string) (Record, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

const redisKeyPrefix = "datasage:session:"

// RedisDocuments stores session records as JSON documents in Redis with a
// server-side TTL, the durable primary tier. The TTL is reset on every Put,
// mirroring renewal-on-access.
type RedisDocuments struct {
	client *redis.Client
}

// NewRedisDocuments creates the primary tier against the given Redis options.
func NewRedisDocuments(opts *redis.Options) *RedisDocuments {
	return &RedisDocuments{client: redis.NewClient(opts)}
}

func (s *RedisDocuments) key(id string) string {
	return redisKeyPrefix + id
}

func (s *RedisDocuments) Put(ctx context.Context, rec Record, ttl time.Duration) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session record: %w", err)
	}
	if err := s.client.Set(ctx, s.key(rec.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("writing session record: %w", err)
	}
	return nil
}

func (s *RedisDocuments) Get(ctx context.Context, id string) (Record, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("reading session record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decoding session record: %w", err)
	}
	return rec, nil
}

func (s *RedisDocuments) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("deleting session record: %w", err)
	}
	return nil
}

func (s *RedisDocuments) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connections.
func (s *RedisDocuments) Close() error {
	return s.client.Close()
}

// MemoryDocuments is the in-process fallback tier: a mutex-guarded map with
// the same field semantics as the primary. Its contents are process-scoped,
// neither persisted across restarts nor shared between instances. Operations
// never fail, which makes it the terminal link of the fallback chain.
type MemoryDocuments struct {
	mu      sync.Mutex
	records map[string]memoryEntry
}

type memoryEntry struct {
	rec      Record
	deadline time.Time
}

// NewMemoryDocuments creates an empty fallback tier.
func NewMemoryDocuments() *MemoryDocuments {
	return &MemoryDocuments{records: make(map[string]memoryEntry)}
}

func (s *MemoryDocuments) Put(_ context.Context, rec Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = memoryEntry{rec: rec.clone(), deadline: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryDocuments) Get(_ context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if time.Now().After(e.deadline) {
		delete(s.records, id)
		return Record{}, ErrNotFound
	}
	return e.rec.clone(), nil
}

func (s *MemoryDocuments) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *MemoryDocuments) Ping(context.Context) error { return nil }

// Len reports the number of live entries, for tests and status reporting.
func (s *MemoryDocuments) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
