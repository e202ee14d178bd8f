package session

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/portal/internal/api"
	"github.com/dropDatabas3/portal/internal/domain/types"
	"github.com/dropDatabas3/portal/internal/kv"
	"github.com/dropDatabas3/portal/internal/metrics"
	"github.com/dropDatabas3/portal/internal/notify"
	"github.com/dropDatabas3/portal/internal/observability/logger"
	"go.uber.org/zap"
)

// Remote es la parte de la API que usa el store. *api.Client la implementa.
type Remote interface {
	Login(ctx context.Context, cr api.Credentials) (types.Session, error)
	Register(ctx context.Context, r api.RegisterRequest) (types.Session, error)
	Logout(ctx context.Context, token string) error
	Me(ctx context.Context, token string) (*types.AuthUser, error)
	UpdateProfile(ctx context.Context, token string, patch types.UserPatch) (*types.AuthUser, error)
}

// Cipher cifra el token en reposo. *tokencipher.Cipher la implementa.
type Cipher interface {
	Encrypt(plaintext string) string
	Decrypt(blob string) (string, bool)
	Invalidate()
}

// Clearer es la cache de lecturas que se vacía al cambiar de identidad.
type Clearer interface {
	Clear()
}

// Motivos de logout (label de métricas y logs).
const (
	ReasonUser         = "user"
	ReasonUnauthorized = "unauthorized"
	ReasonDecrypt      = "decrypt"
	ReasonFetchFailed  = "fetch_failed"
)

// Store es el store de sesión. Seguro para uso concurrente.
type Store struct {
	remote  Remote
	storage kv.Store
	cipher  Cipher
	cache   Clearer
	sink    notify.Sink
	log     *zap.Logger
	key     string
	timeout time.Duration

	mu        sync.Mutex
	state     State
	listeners map[int]func(State)
	nextID    int

	persistMu sync.Mutex
}

// Option configura un Store.
type Option func(*Store)

// WithStorageKey cambia la key del snapshot (default "auth-storage").
func WithStorageKey(k string) Option {
	return func(s *Store) {
		if k != "" {
			s.key = k
		}
	}
}

// WithCache registra la cache a vaciar en logout y login.
func WithCache(c Clearer) Option {
	return func(s *Store) { s.cache = c }
}

// WithNotifier setea el sink de avisos.
func WithNotifier(n notify.Sink) Option {
	return func(s *Store) { s.sink = n }
}

// WithLogger setea el logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithTimeout acota cada llamada remota. 0 deja sólo el timeout del cliente HTTP.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// New crea el store. storage nil equivale a kv.Noop (sin persistencia).
func New(remote Remote, storage kv.Store, cipher Cipher, opts ...Option) *Store {
	if storage == nil {
		storage = kv.Noop{}
	}
	s := &Store{
		remote:    remote,
		storage:   storage,
		cipher:    cipher,
		key:       DefaultStorageKey,
		sink:      notify.Nop{},
		listeners: map[int]func(State){},
	}
	for _, o := range opts {
		o(s)
	}
	s.log = logger.Or(s.log, "session")
	return s
}

// Snapshot devuelve una copia del estado actual.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registra fn para cada cambio de estado. fn corre en la goroutine
// que hizo el cambio y no debe bloquear; ante cambios concurrentes el estado
// recibido puede estar superado, Snapshot da el último.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// update aplica fn sobre el estado y notifica si cambió. Devuelve el estado nuevo.
func (s *Store) update(fn func(*State)) (State, bool) {
	s.mu.Lock()
	prev := s.state
	next := s.state
	fn(&next)
	changed := !next.equal(prev)
	if changed {
		s.state = next
	}
	out := s.state.clone()
	var ls []func(State)
	if changed {
		ls = make([]func(State), 0, len(s.listeners))
		for _, l := range s.listeners {
			ls = append(ls, l)
		}
	}
	s.mu.Unlock()

	for _, l := range ls {
		l(out.clone())
	}
	return out, changed
}

func (s *Store) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// Hydrate restaura el snapshot persistido. Un token que no se puede descifrar
// termina en logout forzado; un snapshot ilegible arranca vacío.
func (s *Store) Hydrate(ctx context.Context) {
	p, ok := s.load(ctx)
	if !ok || p.Token == "" {
		s.update(func(st *State) {
			*st = State{Hydrated: true}
		})
		return
	}

	token, ok := s.cipher.Decrypt(p.Token)
	if !ok {
		s.log.Warn("hydrate: token could not be decrypted")
		s.update(func(st *State) { st.Hydrated = true })
		s.ForceLogout(ReasonDecrypt)
		return
	}

	s.update(func(st *State) {
		st.Token = token
		st.User = p.User.Clone()
		st.Hydrated = true
		st.Err = nil
		// el usuario persistido puede estar desactualizado hasta el primer "who am I"
		st.IsLoading = true
	})
}

// Login hace exactamente una llamada remota, sin reintentos.
func (s *Store) Login(ctx context.Context, cr api.Credentials) (LoginResult, error) {
	return s.authenticate(ctx, "login", func(ctx context.Context) (types.Session, error) {
		return s.remote.Login(ctx, cr)
	})
}

// Register crea la cuenta con el mismo contrato que Login.
func (s *Store) Register(ctx context.Context, r api.RegisterRequest) (LoginResult, error) {
	return s.authenticate(ctx, "register", func(ctx context.Context) (types.Session, error) {
		return s.remote.Register(ctx, r)
	})
}

func (s *Store) authenticate(ctx context.Context, op string, call func(context.Context) (types.Session, error)) (LoginResult, error) {
	s.update(func(st *State) {
		st.IsLoading = true
		st.Err = nil
	})

	cctx, cancel := s.callCtx(ctx)
	sess, err := call(cctx)
	cancel()
	if err != nil {
		metrics.Logins.WithLabelValues("error").Inc()
		s.log.Info(op+" failed", logger.Op(op), logger.String("kind", api.KindOf(err).String()))
		s.update(func(st *State) {
			st.IsLoading = false
			st.Err = err
		})
		return LoginResult{}, err
	}

	if s.cache != nil {
		s.cache.Clear()
	}
	s.update(func(st *State) {
		st.Token = sess.Token
		st.User = sess.User.Clone()
		st.IsLoading = false
		st.Err = nil
		st.Hydrated = true
	})
	s.persist()
	metrics.Logins.WithLabelValues("ok").Inc()
	s.log.Info(op+" ok", logger.Op(op), logger.UserID(sess.User.ID), logger.Email(sess.User.Email))

	return LoginResult{User: sess.User.Clone(), NeedsVerification: sess.User.NeedsVerification()}, nil
}

// Logout revoca el token remoto y, pase lo que pase con esa llamada, limpia la
// sesión local. El error remoto se devuelve sólo para informarlo.
func (s *Store) Logout(ctx context.Context) error {
	token := s.Snapshot().Token
	var remoteErr error
	if token != "" {
		cctx, cancel := s.callCtx(ctx)
		remoteErr = s.remote.Logout(cctx, token)
		cancel()
		if remoteErr != nil {
			s.log.Warn("remote logout failed, clearing local session anyway", logger.Err(remoteErr))
		}
	}
	s.teardown(ReasonUser)
	return remoteErr
}

// ForceLogout limpia la sesión local sin llamar a la API. Lo usan refresher,
// provider y las operaciones que reciben un 401.
func (s *Store) ForceLogout(reason string) {
	had := s.Snapshot().Token != ""
	s.teardown(reason)
	if had {
		s.expired(reason)
	}
}

// ForceLogoutIf hace ForceLogout sólo si el token actual sigue siendo token.
// Un 401 de una llamada hecha con un token ya rotado no toca la sesión nueva.
func (s *Store) ForceLogoutIf(token, reason string) bool {
	if token == "" || !s.teardownIf(token, reason) {
		return false
	}
	s.expired(reason)
	return true
}

func (s *Store) expired(reason string) {
	if reason == ReasonUser {
		return
	}
	s.sink.Notify(notify.Notification{
		Level:   notify.LevelWarning,
		Title:   "Session ended",
		Message: "Your session has expired. Please log in again.",
	})
}

func (s *Store) teardown(reason string) {
	s.teardownIf("", reason)
}

// teardownIf limpia token y usuario; con match no vacío sólo si el token
// actual coincide, evaluado bajo el mismo lock que la limpieza.
func (s *Store) teardownIf(match, reason string) bool {
	cleared := false
	s.update(func(st *State) {
		if match != "" && st.Token != match {
			return
		}
		st.Token = ""
		st.User = nil
		st.IsLoading = false
		st.Err = nil
		st.Hydrated = true
		cleared = true
	})
	if !cleared {
		return false
	}
	s.cipher.Invalidate()
	s.persist()
	if s.cache != nil {
		s.cache.Clear()
	}
	metrics.Logouts.WithLabelValues(reason).Inc()
	s.log.Info("logged out", logger.Reason(reason))
	return true
}

// SetToken adopta un token obtenido por otro canal (callback OAuth) y busca
// su usuario. Si no se puede, limpia token y usuario.
func (s *Store) SetToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrNotAuthenticated
	}
	s.update(func(st *State) {
		st.Token = token
		st.User = nil
		st.IsLoading = true
		st.Err = nil
	})

	cctx, cancel := s.callCtx(ctx)
	u, err := s.remote.Me(cctx, token)
	cancel()
	if err != nil {
		s.update(func(st *State) {
			st.Token = ""
			st.User = nil
			st.IsLoading = false
			st.Err = err
			st.Hydrated = true
		})
		s.persist()
		metrics.Logouts.WithLabelValues(ReasonFetchFailed).Inc()
		return err
	}

	if s.cache != nil {
		s.cache.Clear()
	}
	s.update(func(st *State) {
		st.User = u.Clone()
		st.IsLoading = false
		st.Hydrated = true
	})
	s.persist()
	return nil
}

// UpdateUser mergea patch sobre el usuario actual sin llamar a la API.
func (s *Store) UpdateUser(patch types.UserPatch) {
	_, changed := s.update(func(st *State) {
		if st.User != nil {
			st.User = patch.Apply(st.User)
		}
	})
	if changed {
		s.persist()
	}
}

// UpdateProfile actualiza el perfil remoto. Registra el error en el estado y
// lo devuelve; un 401 fuerza logout.
func (s *Store) UpdateProfile(ctx context.Context, patch types.UserPatch) (*types.AuthUser, error) {
	token := s.Snapshot().Token
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	s.update(func(st *State) { st.Err = nil })

	cctx, cancel := s.callCtx(ctx)
	u, err := s.remote.UpdateProfile(cctx, token, patch)
	cancel()
	if err != nil {
		if api.IsAuth(err) {
			s.ForceLogoutIf(token, ReasonUnauthorized)
		}
		s.update(func(st *State) { st.Err = err })
		return nil, err
	}
	s.MergeUser(u)
	return u.Clone(), nil
}

// Swap reemplaza token y usuario en un solo paso (refresh).
func (s *Store) Swap(sess types.Session) {
	if sess.Token == "" || sess.User == nil {
		return
	}
	s.update(func(st *State) {
		st.Token = sess.Token
		st.User = sess.User.Clone()
	})
	s.persist()
}

// CompareAndSwap hace Swap sólo si el token actual sigue siendo old. Evita que
// un refresh que termina después de un logout vuelva a autenticar.
func (s *Store) CompareAndSwap(old string, sess types.Session) bool {
	if old == "" || sess.Token == "" || sess.User == nil {
		return false
	}
	swapped := false
	s.update(func(st *State) {
		if st.Token != old {
			return
		}
		st.Token = sess.Token
		st.User = sess.User.Clone()
		swapped = true
	})
	if swapped {
		s.persist()
	}
	return swapped
}

// MergeUser reemplaza el usuario conservando el token. Sin token no hace
// nada; con un usuario igual al actual tampoco notifica.
func (s *Store) MergeUser(u *types.AuthUser) {
	if u == nil {
		return
	}
	_, changed := s.update(func(st *State) {
		if st.Token != "" {
			st.User = u.Clone()
		}
	})
	if changed {
		s.persist()
	}
}

// FinishLoading sólo lleva IsLoading a false, nunca a true.
func (s *Store) FinishLoading() {
	s.update(func(st *State) { st.IsLoading = false })
}

// ClearError limpia Err (ej: al reabrir un formulario).
func (s *Store) ClearError() {
	s.update(func(st *State) { st.Err = nil })
}
