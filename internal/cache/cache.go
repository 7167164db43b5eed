package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache stores raw GET response bodies. The chat core never writes to it;
// it only asks for invalidation after membership changes.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Keys for one event's cached responses.
func EventKey(eventID string) string     { return "event:" + eventID }
func AttendeesKey(eventID string) string { return "event:" + eventID + ":attendees" }

// EventKeys lists every cached key belonging to an event.
func EventKeys(eventID string) []string {
	return []string{EventKey(eventID), AttendeesKey(eventID)}
}

// DefaultMemorySize bounds the in-process cache.
const DefaultMemorySize = 256

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process Cache used when no Redis is configured. It holds
// at most size entries and nothing outlives maxTTL; a shorter per-call ttl
// is checked on read.
type Memory struct {
	lru *expirable.LRU[string, entry]
	now func() time.Time
}

func NewMemory(size int, maxTTL time.Duration) *Memory {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &Memory{
		lru: expirable.NewLRU[string, entry](size, nil, maxTTL),
		now: time.Now,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	e, ok := m.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.lru.Remove(key)
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.lru.Add(key, e)
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.lru.Remove(k)
	}
	return nil
}

func (m *Memory) Len() int {
	return m.lru.Len()
}
