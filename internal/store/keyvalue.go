// Package store implements the dual-mode persistence layer: plaintext local
// device storage for guests and encrypted rows in the remote record store
// for authenticated evaluators.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrKeyNotFound indicates the key holds no value.
var ErrKeyNotFound = errors.New("key not found")

// KeyValue is the local device storage contract: simple string get/set/del.
type KeyValue interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, key string) error
}

type redisKeyValue struct {
	client *redis.Client
}

// NewRedisKeyValue adapts a Redis client to the KeyValue contract. Guest
// data never expires; it is removed explicitly when grading finishes.
func NewRedisKeyValue(client *redis.Client) KeyValue {
	return &redisKeyValue{client: client}
}

func (kv *redisKeyValue) Get(ctx context.Context, key string) (string, error) {
	value, err := kv.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrKeyNotFound
		}
		return "", err
	}
	return value, nil
}

func (kv *redisKeyValue) Set(ctx context.Context, key, value string) error {
	return kv.client.Set(ctx, key, value, 0).Err()
}

func (kv *redisKeyValue) Del(ctx context.Context, key string) error {
	return kv.client.Del(ctx, key).Err()
}

type memoryKeyValue struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryKeyValue returns an in-process KeyValue used when no Redis is
// configured and as a test double.
func NewMemoryKeyValue() KeyValue {
	return &memoryKeyValue{data: map[string]string{}}
}

func (kv *memoryKeyValue) Get(_ context.Context, key string) (string, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	value, ok := kv.data[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	return value, nil
}

func (kv *memoryKeyValue) Set(_ context.Context, key, value string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.data[key] = value
	return nil
}

func (kv *memoryKeyValue) Del(_ context.Context, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.data, key)
	return nil
}
