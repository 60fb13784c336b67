package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Memory is an in-process LRU store. Eviction only happens once size entries exist.
type Memory struct {
	lru *lru.Cache[string, string]
}

func NewMemory(size int) (*Memory, error) {
	if size <= 0 {
		size = 512
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &Memory{lru: c}, nil
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.lru.Get(key)
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.lru.ContainsOrAdd(key, value)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error {
	m.lru.Purge()
	return nil
}

// Len is the number of cached documents.
func (m *Memory) Len() int { return m.lru.Len() }
