// Package refresher renueva el token de la sesión antes de que venza.
//
// Mientras el store está autenticado corre un ticker; en cada tick pregunta a
// la autoridad emisora si el token vence dentro de la ventana de lookahead y,
// si es así, hace un único refresh. El ticker se crea al autenticarse y se
// destruye al perder la sesión.
package refresher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dropDatabas3/portal/internal/api"
	"github.com/dropDatabas3/portal/internal/domain/types"
	"github.com/dropDatabas3/portal/internal/metrics"
	"github.com/dropDatabas3/portal/internal/observability/logger"
	"github.com/dropDatabas3/portal/internal/session"
	"go.uber.org/zap"
)

const (
	DefaultInterval  = 5 * time.Minute
	DefaultLookahead = 30 * time.Minute
)

// Authority es el emisor del token. *api.Client la implementa.
type Authority interface {
	ExpiresWithin(ctx context.Context, token string, window time.Duration) (bool, error)
	Refresh(ctx context.Context, token string) (types.Session, error)
}

// Store es la parte del store de sesión que usa el refresher.
type Store interface {
	Snapshot() session.State
	Subscribe(fn func(session.State)) (unsubscribe func())
	CompareAndSwap(old string, sess types.Session) bool
	ForceLogout(reason string)
}

// Outcome es el resultado de un chequeo.
type Outcome int

const (
	// OutcomeSkipped: no hay sesión (o cambió durante el chequeo).
	OutcomeSkipped Outcome = iota
	// OutcomeBusy: ya hay un chequeo en curso; este no hizo nada.
	OutcomeBusy
	// OutcomeFresh: el token no vence dentro de la ventana.
	OutcomeFresh
	OutcomeRefreshed
	// OutcomeLoggedOut: la autoridad respondió 401; se forzó logout.
	OutcomeLoggedOut
	// OutcomeTransientError: cualquier otro error; se reintenta en el próximo tick.
	OutcomeTransientError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBusy:
		return "busy"
	case OutcomeFresh:
		return "fresh"
	case OutcomeRefreshed:
		return "refreshed"
	case OutcomeLoggedOut:
		return "logged_out"
	case OutcomeTransientError:
		return "transient_error"
	default:
		return "skipped"
	}
}

// Config del refresher.
type Config struct {
	Authority Authority
	Store     Store
	Interval  time.Duration // default 5m
	Lookahead time.Duration // default 30m
	Timeout   time.Duration // por llamada remota; 0 = sin límite propio
	Logger    *zap.Logger
}

var (
	ErrNoAuthority = errors.New("refresher: authority is required")
	ErrNoStore     = errors.New("refresher: store is required")
)

// Refresher es seguro para uso concurrente.
type Refresher struct {
	authority Authority
	store     Store
	interval  time.Duration
	lookahead time.Duration
	timeout   time.Duration
	log       *zap.Logger

	inflight atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	starts int
}

// New valida cfg y aplica defaults.
func New(cfg Config) (*Refresher, error) {
	if cfg.Authority == nil {
		return nil, ErrNoAuthority
	}
	if cfg.Store == nil {
		return nil, ErrNoStore
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = DefaultLookahead
	}
	return &Refresher{
		authority: cfg.Authority,
		store:     cfg.Store,
		interval:  cfg.Interval,
		lookahead: cfg.Lookahead,
		timeout:   cfg.Timeout,
		log:       logger.Or(cfg.Logger, "refresher"),
	}, nil
}

// Check hace un chequeo. Chequeos superpuestos devuelven OutcomeBusy sin
// tocar la red: nunca hay más de un refresh en vuelo.
func (r *Refresher) Check(ctx context.Context) (Outcome, error) {
	out, err := r.check(ctx)
	metrics.Refreshes.WithLabelValues(out.String()).Inc()
	return out, err
}

func (r *Refresher) check(ctx context.Context) (Outcome, error) {
	st := r.store.Snapshot()
	if !st.Authenticated() {
		return OutcomeSkipped, nil
	}
	if !r.inflight.CompareAndSwap(false, true) {
		return OutcomeBusy, nil
	}
	defer r.inflight.Store(false)

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	soon, err := r.authority.ExpiresWithin(ctx, st.Token, r.lookahead)
	if err != nil {
		return r.fail(st.Token, err)
	}
	if !soon {
		return OutcomeFresh, nil
	}

	sess, err := r.authority.Refresh(ctx, st.Token)
	if err != nil {
		return r.fail(st.Token, err)
	}
	if !r.store.CompareAndSwap(st.Token, sess) {
		r.log.Debug("session changed during refresh, discarding new token")
		return OutcomeSkipped, nil
	}
	r.log.Info("token refreshed", logger.UserID(sess.User.ID))
	return OutcomeRefreshed, nil
}

func (r *Refresher) fail(token string, err error) (Outcome, error) {
	if api.IsAuth(err) {
		if r.store.Snapshot().Token == token {
			r.store.ForceLogout(session.ReasonUnauthorized)
		}
		r.log.Info("refresh rejected, logged out", logger.Err(err))
		return OutcomeLoggedOut, err
	}
	r.log.Debug("refresh check failed, will retry next tick", logger.Err(err))
	return OutcomeTransientError, err
}

// Run sigue al store hasta que ctx termine: arranca el ticker cuando hay
// sesión y lo destruye cuando no. Al volver no queda ningún ticker vivo.
func (r *Refresher) Run(ctx context.Context) {
	signals := make(chan struct{}, 1)
	unsubscribe := r.store.Subscribe(func(session.State) {
		select {
		case signals <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()
	defer r.stop()

	r.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			r.reconcile(ctx)
		}
	}
}

// Active dice si hay un ticker vivo.
func (r *Refresher) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// Starts cuenta cuántas veces se creó el ticker.
func (r *Refresher) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts
}

func (r *Refresher) reconcile(ctx context.Context) {
	if r.store.Snapshot().Authenticated() {
		r.start(ctx)
	} else {
		r.stop()
	}
}

func (r *Refresher) start(parent context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	r.cancel, r.done = cancel, done
	r.starts++
	r.log.Debug("ticker started", logger.Duration(r.interval))
	go r.loop(ctx, done)
}

func (r *Refresher) stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.log.Debug("ticker stopped")
}

func (r *Refresher) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	_, _ = r.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = r.Check(ctx)
		}
	}
}
