package kv

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var tableNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Postgres implementa Store sobre una tabla (key, value, updated_at).
type Postgres struct {
	pool   *pgxpool.Pool
	table  string
	prefix string
}

// NewPostgres abre el pool y crea la tabla si no existe.
func NewPostgres(ctx context.Context, cfg Config) (*Postgres, error) {
	if cfg.PostgresDSN == "" {
		return nil, errors.New("kv: postgres driver requires a dsn")
	}
	table := cfg.PostgresTable
	if table == "" {
		table = "portal_kv"
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("kv: invalid postgres table name %q", table)
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("kv: postgres pool: %w", err)
	}
	p := &Postgres{pool: pool, table: table, prefix: cfg.Prefix}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// Pool expone el pool para métricas.
func (p *Postgres) Pool() *pgxpool.Pool { return p.pool }

func (p *Postgres) migrate(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+p.table+` (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("kv: postgres migrate: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := p.pool.QueryRow(ctx, `SELECT value FROM `+p.table+` WHERE key = $1`, prefixed(p.prefix, key)).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO `+p.table+` (key, value, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		prefixed(p.prefix, key), value)
	return err
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM `+p.table+` WHERE key = $1`, prefixed(p.prefix, key))
	return err
}

func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }
func (p *Postgres) Close() error                   { p.pool.Close(); return nil }
func (p *Postgres) Driver() string                 { return "postgres" }
