// Package kv es el almacenamiento durable clave/valor donde el store de sesión
// persiste su snapshot.
//
// Drivers:
//   - file     (default del CLI; JSON en el directorio de config del usuario)
//   - memory   (tests, procesos efímeros)
//   - redis    (dashboards compartidos)
//   - postgres (dashboards compartidos con DB propia)
//   - none     (contexto servidor sin storage: no-op, nunca falla)
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store define las operaciones de storage.
type Store interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor, reemplazando el anterior.
	Set(ctx context.Context, key, value string) error

	// Delete elimina una key. Borrar una key inexistente no es error.
	Delete(ctx context.Context, key string) error

	// Ping verifica el backend.
	Ping(ctx context.Context) error

	// Close libera recursos.
	Close() error

	// Driver devuelve el nombre del driver.
	Driver() string
}

// Config para crear un Store.
type Config struct {
	Driver string // file | memory | redis | postgres | none

	// file
	Path string

	// redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// postgres
	PostgresDSN   string
	PostgresTable string

	// Prefix se antepone a todas las keys (redis/postgres).
	Prefix string
}

// ErrNotFound: la key no existe.
var ErrNotFound = errors.New("kv: key not found")

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// New crea un Store según la configuración.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "file", "":
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, errors.New("kv: file driver requires a path")
		}
		return NewFile(cfg.Path), nil
	case "memory":
		return NewMemory(), nil
	case "redis":
		return NewRedis(ctx, cfg)
	case "postgres", "pg":
		return NewPostgres(ctx, cfg)
	case "none", "noop":
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("kv: unknown driver %q", cfg.Driver)
	}
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}
