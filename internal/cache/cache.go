// Package cache provee el key-value colaborador del core de autorización.
//
// Soporta dos backends:
//   - memory (in-process, desarrollo/testing)
//   - redis (distribuido, producción)
//
// El cache es SIEMPRE un acelerador best-effort: una lectura fallida o una
// key ausente degrada al system of record, nunca falla el request.
// La expiración es política operacional (DefaultTTL), no correctness.
package cache

import (
	"context"
	"time"
)

// Client define las operaciones que usa la capa cache-aside.
type Client interface {
	// Get obtiene un valor string. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor con TTL. Si ttl es 0 se usa el default del backend.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete elimina una key.
	Delete(ctx context.Context, key string) error

	// SAdd agrega members a un set (creándolo si no existe).
	SAdd(ctx context.Context, key string, members ...string) error

	// SMembers devuelve los members de un set. (nil, ErrNotFound) si la key
	// no existe; set vacío no es un estado representable (SAdd sin members
	// no crea la key), así que ausencia == "hay que resolver".
	SMembers(ctx context.Context, key string) ([]string, error)

	// Pipeline arranca un batch de escrituras; Exec las aplica juntas.
	Pipeline() Pipeline

	// Ping verifica la conexión.
	Ping(ctx context.Context) error

	// Close cierra la conexión.
	Close() error
}

// Pipeline acumula escrituras de población de cache. Todas las operaciones
// son idempotentes; last-write-wins entre resoluciones concurrentes es
// aceptable porque el valor deriva del system of record.
type Pipeline interface {
	Set(key, value string, ttl time.Duration)
	SAdd(key string, members ...string)
	Exec(ctx context.Context) error
}

// Config configuración para crear un cliente de cache.
type Config struct {
	Kind       string // "memory" | "redis"
	Addr       string // redis host:port
	DB         int
	Password   string
	Prefix     string        // prefijo para todas las keys
	DefaultTTL time.Duration // ventana de staleness aceptada tras mutaciones RBAC
}

// Errores de cache.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "cache: key not found" }

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	_, ok := err.(errNotFound)
	return ok
}

// New crea un cliente según la configuración.
func New(cfg Config) Client {
	switch cfg.Kind {
	case "redis":
		return NewRedis(cfg)
	default:
		return NewMemory(cfg.Prefix, cfg.DefaultTTL)
	}
}
