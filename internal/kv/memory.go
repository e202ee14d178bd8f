package kv

import (
	"context"

	gocache "github.com/patrickmn/go-cache"
)

// Memory implementa Store sobre go-cache sin expiración.
type Memory struct{ c *gocache.Cache }

// NewMemory crea un store en memoria.
func NewMemory() *Memory {
	return &Memory{c: gocache.New(gocache.NoExpiration, 0)}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.c.Set(key, value, gocache.NoExpiration)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { m.c.Flush(); return nil }
func (m *Memory) Driver() string             { return "memory" }
