package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory is a bounded in-process cache with per-entry expiry.
type Memory struct {
	lru *expirable.LRU[string, Entry]
}

// NewMemory holds at most size entries for ttl each; ttl <= 0 never expires.
func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = 256
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Memory{lru: expirable.NewLRU[string, Entry](size, nil, ttl)}
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	e, ok := m.lru.Get(key)
	return e, ok, nil
}

func (m *Memory) Put(_ context.Context, key string, e Entry) error {
	m.lru.Add(key, e)
	return nil
}

// Len is the number of live entries.
func (m *Memory) Len() int { return m.lru.Len() }
