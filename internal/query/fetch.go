package query

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dropDatabas3/portal/internal/metrics"
	"github.com/dropDatabas3/portal/internal/observability/logger"
)

// DefaultRetryBackoff es la espera inicial entre reintentos.
const DefaultRetryBackoff = 250 * time.Millisecond

// Fetcher hace la lectura remota.
type Fetcher[T any] func(ctx context.Context) (T, error)

type fetchOptions struct {
	staleTime    time.Duration
	hasStaleTime bool
	retries      uint
	retryIf      func(error) bool
	backoff      time.Duration
}

// Option ajusta un Fetch.
type Option func(*fetchOptions)

// WithStaleTime reemplaza la frescura del tier de la familia.
func WithStaleTime(d time.Duration) Option {
	return func(o *fetchOptions) {
		o.staleTime = d
		o.hasStaleTime = true
	}
}

// WithRetry reintenta hasta n veces los errores para los que retryIf es true.
// Con retryIf nil se reintenta todo error.
func WithRetry(n uint, retryIf func(error) bool) Option {
	return func(o *fetchOptions) {
		o.retries = n
		o.retryIf = retryIf
	}
}

// WithBackoff fija la espera inicial entre reintentos (crece exponencialmente).
func WithBackoff(d time.Duration) Option {
	return func(o *fetchOptions) { o.backoff = d }
}

// Fetch devuelve el valor fresco de key o lo trae con fetch. Los errores no se
// cachean. Llamadas concurrentes a la misma key comparten un único fetch.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fetch Fetcher[T], opts ...Option) (T, error) {
	o := fetchOptions{backoff: DefaultRetryBackoff}
	for _, opt := range opts {
		opt(&o)
	}
	ttl := key.Family.Tier().StaleTime()
	if o.hasStaleTime {
		ttl = o.staleTime
	}
	fam := string(key.Family)

	if e, ok := c.get(key); ok {
		if v, ok := e.value.(T); ok {
			metrics.QueryRequests.WithLabelValues(fam, "hit").Inc()
			return v, nil
		}
	}
	metrics.QueryRequests.WithLabelValues(fam, "miss").Inc()

	gen := c.generation(key.Family)
	v, err, shared := c.sf.Do(c.flightKey(key, gen), func() (any, error) {
		val, err := withRetry(ctx, fetch, o)
		if err != nil {
			return nil, err
		}
		if !c.store(key, gen, val, ttl) {
			c.log.Debug("discarding stale fetch", logger.Key(key.String()))
		}
		return val, nil
	})
	if err != nil {
		metrics.QueryRequests.WithLabelValues(fam, "error").Inc()
		var zero T
		return zero, err
	}
	if shared {
		c.log.Debug("shared fetch", logger.Key(key.String()))
	}
	out, _ := v.(T)
	return out, nil
}

func withRetry[T any](ctx context.Context, fetch Fetcher[T], o fetchOptions) (T, error) {
	if o.retries == 0 {
		return fetch(ctx)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.backoff
	if o.backoff <= 0 {
		b.InitialInterval = time.Millisecond
	}
	v, err := backoff.Retry(ctx, func() (T, error) {
		val, err := fetch(ctx)
		if err != nil && o.retryIf != nil && !o.retryIf(err) {
			return val, backoff.Permanent(err)
		}
		return val, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(o.retries+1))
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return v, err
}

// Mutate corre una escritura y, sólo si tuvo éxito, invalida las familias.
func Mutate[T any](ctx context.Context, c *Cache, fn Fetcher[T], families ...Family) (T, error) {
	v, err := fn(ctx)
	if err != nil {
		return v, err
	}
	c.Invalidate(families...)
	return v, nil
}
