package cache

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory implementa Client in-process sobre patrickmn/go-cache.
// Los sets se guardan como map[string]struct{} dentro del mismo cache,
// así heredan la expiración sin lógica extra.
type Memory struct {
	mu     sync.Mutex // serializa read-modify-write de sets
	c      *gocache.Cache
	prefix string
}

func NewMemory(prefix string, defaultTTL time.Duration) *Memory {
	if defaultTTL <= 0 {
		defaultTTL = gocache.NoExpiration
	}
	return &Memory{
		c:      gocache.New(defaultTTL, time.Minute),
		prefix: prefix,
	}
}

func (m *Memory) key(k string) string {
	if m.prefix == "" {
		return k
	}
	return m.prefix + ":" + k
}

func (m *Memory) Get(ctx context.Context, key string) (string, error) {
	v, ok := m.c.Get(m.key(key))
	if !ok {
		return "", ErrNotFound
	}
	s, ok := v.(string)
	if !ok {
		return "", ErrNotFound
	}
	return s, nil
}

func (m *Memory) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.c.Set(m.key(key), value, ttl)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.c.Delete(m.key(key))
	return nil
}

func (m *Memory) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(key)
	set := map[string]struct{}{}
	if v, ok := m.c.Get(k); ok {
		if prev, ok := v.(map[string]struct{}); ok {
			for s := range prev {
				set[s] = struct{}{}
			}
		}
	}
	for _, s := range members {
		set[s] = struct{}{}
	}
	m.c.Set(k, set, gocache.DefaultExpiration)
	return nil
}

func (m *Memory) SMembers(ctx context.Context, key string) ([]string, error) {
	v, ok := m.c.Get(m.key(key))
	if !ok {
		return nil, ErrNotFound
	}
	set, ok := v.(map[string]struct{})
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out, nil
}

func (m *Memory) Pipeline() Pipeline { return &memPipe{m: m} }

func (m *Memory) Ping(ctx context.Context) error { return nil }
func (m *Memory) Close() error                   { return nil }

// memPipe aplica las operaciones en orden al hacer Exec. No hay atomicidad
// real en memoria; alcanza porque la población es idempotente.
type memPipe struct {
	m   *Memory
	ops []func(ctx context.Context) error
}

func (p *memPipe) Set(key, value string, ttl time.Duration) {
	p.ops = append(p.ops, func(ctx context.Context) error { return p.m.Set(ctx, key, value, ttl) })
}

func (p *memPipe) SAdd(key string, members ...string) {
	p.ops = append(p.ops, func(ctx context.Context) error { return p.m.SAdd(ctx, key, members...) })
}

func (p *memPipe) Exec(ctx context.Context) error {
	for _, op := range p.ops {
		if err := op(ctx); err != nil {
			return err
		}
	}
	p.ops = nil
	return nil
}
