// Package provider reconcilia el store de sesión con el "who am I" remoto:
// mergea el usuario fresco, fuerza logout ante un 401 y cierra el loading
// inicial. No reintenta por su cuenta; la política de reintentos es la de la
// query que observa.
package provider

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/portal/internal/api"
	"github.com/dropDatabas3/portal/internal/domain/types"
	"github.com/dropDatabas3/portal/internal/observability/logger"
	"github.com/dropDatabas3/portal/internal/query"
	"github.com/dropDatabas3/portal/internal/session"
	"go.uber.org/zap"
)

// Remote es el endpoint "who am I". *api.Client lo implementa.
type Remote interface {
	Me(ctx context.Context, token string) (*types.AuthUser, error)
}

// Store es la parte del store de sesión que usa el provider.
type Store interface {
	Snapshot() session.State
	Subscribe(fn func(session.State)) (unsubscribe func())
	MergeUser(u *types.AuthUser)
	ForceLogout(reason string)
	FinishLoading()
}

// MeResult es el estado observado de la query "me".
type MeResult struct {
	User    *types.AuthUser
	Err     error
	Loading bool
}

// Config del provider.
type Config struct {
	Remote   Remote
	Store    Store
	Cache    *query.Cache
	Interval time.Duration // default: frescura del tier de "me"
	Timeout  time.Duration
	Retries  uint // reintentos ante errores transitorios; default 1
	Backoff  time.Duration
	Logger   *zap.Logger
}

var (
	ErrNoRemote = errors.New("provider: remote is required")
	ErrNoStore  = errors.New("provider: store is required")
)

type Provider struct {
	remote   Remote
	store    Store
	cache    *query.Cache
	interval time.Duration
	timeout  time.Duration
	retries  uint
	backoff  time.Duration
	log      *zap.Logger
}

func New(cfg Config) (*Provider, error) {
	if cfg.Remote == nil {
		return nil, ErrNoRemote
	}
	if cfg.Store == nil {
		return nil, ErrNoStore
	}
	if cfg.Cache == nil {
		cfg.Cache = query.New(cfg.Logger)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = query.FamilyMe.Tier().StaleTime()
	}
	if cfg.Retries == 0 {
		cfg.Retries = 1
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = query.DefaultRetryBackoff
	}
	return &Provider{
		remote:   cfg.Remote,
		store:    cfg.Store,
		cache:    cfg.Cache,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		retries:  cfg.Retries,
		backoff:  cfg.Backoff,
		log:      logger.Or(cfg.Logger, "provider"),
	}, nil
}

// Reconcile aplica res al store. Sin token no hace nada. Repetir la misma
// entrada no produce cambios adicionales.
func (p *Provider) Reconcile(res MeResult) {
	if p.store.Snapshot().Token == "" {
		return
	}
	if res.Err != nil && api.IsAuth(res.Err) {
		p.log.Info("who-am-i rejected, logging out", logger.Err(res.Err))
		p.store.ForceLogout(session.ReasonUnauthorized)
		return
	}
	if res.Err == nil && res.User != nil {
		p.store.MergeUser(res.User)
	}
	// sólo false: el loading lo abren hydrate/login, nunca un refetch
	if !res.Loading {
		p.store.FinishLoading()
	}
}

// Sync corre la query "me" a través de la cache y reconcilia el resultado.
func (p *Provider) Sync(ctx context.Context) MeResult {
	token := p.store.Snapshot().Token
	if token == "" {
		return MeResult{}
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	u, err := query.Fetch(ctx, p.cache, query.NewKey(query.FamilyMe), func(ctx context.Context) (*types.AuthUser, error) {
		return p.remote.Me(ctx, token)
	}, query.WithRetry(p.retries, api.IsTransient), query.WithBackoff(p.backoff))
	res := MeResult{User: u, Err: err}

	if p.store.Snapshot().Token != token {
		// la sesión cambió mientras buscábamos: el resultado es de otra identidad
		p.cache.Invalidate(query.FamilyMe)
		return res
	}
	if err != nil && !api.IsAuth(err) {
		p.log.Debug("who-am-i failed", logger.Err(err))
	}
	p.Reconcile(res)
	return res
}

// Run re-sincroniza cuando cambia el token y, con sesión, cada Interval.
// Sin sesión no consulta nada. Vuelve cuando ctx termina.
func (p *Provider) Run(ctx context.Context) {
	signals := make(chan struct{}, 1)
	unsubscribe := p.store.Subscribe(func(session.State) {
		select {
		case signals <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	var (
		ticker    *time.Ticker
		tick      <-chan time.Time
		lastToken string
	)
	stopTicker := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
	}
	defer stopTicker()

	handle := func() {
		token := p.store.Snapshot().Token
		if token == "" {
			stopTicker()
			lastToken = ""
			return
		}
		if ticker == nil {
			ticker = time.NewTicker(p.interval)
			tick = ticker.C
		}
		if token != lastToken {
			lastToken = token
			p.cache.Invalidate(query.FamilyMe)
			p.Sync(ctx)
		}
	}

	handle()
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			handle()
		case <-tick:
			// el tick va siempre a la red, no a la cache
			p.cache.Invalidate(query.FamilyMe)
			p.Sync(ctx)
		}
	}
}
