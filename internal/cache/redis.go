package cache

import (
	"context"
	"errors"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// Redis implementa Client sobre go-redis. Los sets usan SADD/SMEMBERS con
// EXPIRE para que la ventana de staleness aplique igual que a los values.
type Redis struct {
	c          *rdb.Client
	prefix     string
	defaultTTL time.Duration
}

func NewRedis(cfg Config) *Redis {
	return &Redis{
		c: rdb.NewClient(&rdb.Options{
			Addr:     cfg.Addr,
			DB:       cfg.DB,
			Password: cfg.Password,
		}),
		prefix:     cfg.Prefix,
		defaultTTL: cfg.DefaultTTL,
	}
}

func (r *Redis) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	v, err := r.c.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, rdb.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	return v, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	return r.c.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.c.Del(ctx, r.key(key)).Err()
}

func (r *Redis) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	k := r.key(key)
	vals := make([]interface{}, len(members))
	for i, m := range members {
		vals[i] = m
	}
	if err := r.c.SAdd(ctx, k, vals...).Err(); err != nil {
		return err
	}
	if r.defaultTTL > 0 {
		return r.c.Expire(ctx, k, r.defaultTTL).Err()
	}
	return nil
}

func (r *Redis) SMembers(ctx context.Context, key string) ([]string, error) {
	vals, err := r.c.SMembers(ctx, r.key(key)).Result()
	if err != nil {
		return nil, err
	}
	// SMEMBERS de key inexistente devuelve slice vacío; para nosotros eso
	// es "ausente" (un set nunca se crea vacío).
	if len(vals) == 0 {
		return nil, ErrNotFound
	}
	return vals, nil
}

func (r *Redis) Pipeline() Pipeline {
	return &redisPipe{r: r, p: r.c.Pipeline()}
}

func (r *Redis) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }
func (r *Redis) Close() error                   { return r.c.Close() }

// RDB expone el cliente crudo para colaboradores que necesitan comandos
// fuera de la interfaz Client (p. ej. el rate limiter usa INCR).
func (r *Redis) RDB() *rdb.Client { return r.c }

type redisPipe struct {
	r *Redis
	p rdb.Pipeliner
}

func (p *redisPipe) Set(key, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = p.r.defaultTTL
	}
	p.p.Set(context.Background(), p.r.key(key), value, ttl)
}

func (p *redisPipe) SAdd(key string, members ...string) {
	if len(members) == 0 {
		return
	}
	k := p.r.key(key)
	vals := make([]interface{}, len(members))
	for i, m := range members {
		vals[i] = m
	}
	p.p.SAdd(context.Background(), k, vals...)
	if p.r.defaultTTL > 0 {
		p.p.Expire(context.Background(), k, p.r.defaultTTL)
	}
}

func (p *redisPipe) Exec(ctx context.Context) error {
	_, err := p.p.Exec(ctx)
	return err
}
