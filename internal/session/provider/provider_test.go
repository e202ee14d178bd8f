package provider

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/portal/internal/api"
	"github.com/dropDatabas3/portal/internal/api/apitest"
	"github.com/dropDatabas3/portal/internal/domain/types"
	"github.com/dropDatabas3/portal/internal/kv"
	"github.com/dropDatabas3/portal/internal/query"
	"github.com/dropDatabas3/portal/internal/security/tokencipher"
	"github.com/dropDatabas3/portal/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type env struct {
	srv      *apitest.Server
	client   *api.Client
	store    *session.Store
	cache    *query.Cache
	provider *Provider
}

func newEnv(t *testing.T) *env {
	t.Helper()
	srv := apitest.New()
	t.Cleanup(srv.Close)
	srv.AddUser(types.AuthUser{ID: 1, Username: "ana", Email: "a@b.com"}, "x")

	client, err := api.New(srv.URL, api.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	cache := query.New(zap.NewNop())
	store := session.New(client, kv.NewMemory(), tokencipher.New(tokencipher.WithLogger(zap.NewNop())),
		session.WithLogger(zap.NewNop()), session.WithCache(cache))
	p, err := New(Config{Remote: client, Store: store, Cache: cache, Backoff: time.Millisecond, Logger: zap.NewNop()})
	require.NoError(t, err)
	return &env{srv: srv, client: client, store: store, cache: cache, provider: p}
}

func (e *env) login(t *testing.T) {
	t.Helper()
	_, err := e.store.Login(context.Background(), api.Credentials{Email: "a@b.com", Password: "x"})
	require.NoError(t, err)
}

func (e *env) hydrateLoggedIn(t *testing.T) {
	t.Helper()
	e.login(t)
	e.store.Hydrate(context.Background())
	require.True(t, e.store.Snapshot().IsLoading)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoRemote)
	_, err = New(Config{Remote: &api.Client{}})
	assert.ErrorIs(t, err, ErrNoStore)
}

func TestReconcile_MergesFreshUserKeepingToken(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	tok := e.store.Snapshot().Token

	fresh := &types.AuthUser{ID: 1, Username: "ana", Email: "a@b.com"}
	fresh.Permissions.Set(types.CapViewEvents, true)
	e.provider.Reconcile(MeResult{User: fresh})

	st := e.store.Snapshot()
	assert.Equal(t, tok, st.Token)
	assert.True(t, st.User.Permissions.Has(types.CapViewEvents))
}

func TestReconcile_AuthErrorForcesLogout(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	e.provider.Reconcile(MeResult{Err: &api.Error{Kind: api.KindAuth, Status: 401}})
	assert.False(t, e.store.Snapshot().Authenticated())
}

func TestReconcile_OtherErrorsLeaveSession(t *testing.T) {
	e := newEnv(t)
	e.hydrateLoggedIn(t)

	e.provider.Reconcile(MeResult{Err: &api.Error{Kind: api.KindTransient, Err: errors.New("timeout")}})
	st := e.store.Snapshot()
	assert.True(t, st.Authenticated())
	assert.False(t, st.IsLoading)
}

func TestReconcile_LoadingOnlyTransitionsToFalse(t *testing.T) {
	e := newEnv(t)
	e.hydrateLoggedIn(t)

	e.provider.Reconcile(MeResult{Loading: true})
	assert.True(t, e.store.Snapshot().IsLoading)

	e.provider.Reconcile(MeResult{Loading: false})
	assert.False(t, e.store.Snapshot().IsLoading)

	e.provider.Reconcile(MeResult{Loading: true})
	assert.False(t, e.store.Snapshot().IsLoading)
}

func TestReconcile_IsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.hydrateLoggedIn(t)

	var notifications int32
	defer e.store.Subscribe(func(session.State) { atomic.AddInt32(&notifications, 1) })()

	fresh := &types.AuthUser{ID: 1, Username: "ana2", Email: "a@b.com"}
	e.provider.Reconcile(MeResult{User: fresh})
	after := atomic.LoadInt32(&notifications)
	first := e.store.Snapshot()

	for i := 0; i < 3; i++ {
		e.provider.Reconcile(MeResult{User: fresh})
	}
	assert.Equal(t, after, atomic.LoadInt32(&notifications))
	assert.Equal(t, first.User, e.store.Snapshot().User)
}

func TestReconcile_NoTokenIsNoop(t *testing.T) {
	e := newEnv(t)
	var notifications int32
	defer e.store.Subscribe(func(session.State) { atomic.AddInt32(&notifications, 1) })()

	e.provider.Reconcile(MeResult{User: &types.AuthUser{ID: 1}})
	e.provider.Reconcile(MeResult{Err: &api.Error{Kind: api.KindAuth}})
	assert.Equal(t, int32(0), atomic.LoadInt32(&notifications))
	assert.Nil(t, e.store.Snapshot().User)
}

func TestSync_MergesServerSideChangesThroughCache(t *testing.T) {
	e := newEnv(t)
	e.hydrateLoggedIn(t)

	updated := types.AuthUser{ID: 1, Username: "ana", Email: "a@b.com"}
	updated.AdminAccess.CanAccessAdmin = true
	e.srv.UpdateUser(updated)

	res := e.provider.Sync(context.Background())
	require.NoError(t, res.Err)
	st := e.store.Snapshot()
	assert.True(t, st.User.AdminAccess.CanAccessAdmin)
	assert.False(t, st.IsLoading)

	e.provider.Sync(context.Background())
	assert.Equal(t, 1, e.srv.Calls("me"))
}

func TestSync_AuthErrorIsNotRetried(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	e.srv.Revoke(e.store.Snapshot().Token)

	res := e.provider.Sync(context.Background())
	assert.True(t, api.IsAuth(res.Err))
	assert.Equal(t, 1, e.srv.Calls("me"))
	assert.False(t, e.store.Snapshot().Authenticated())
}

func TestSync_TransientErrorRetriedOnce(t *testing.T) {
	e := newEnv(t)
	e.hydrateLoggedIn(t)
	e.srv.Fail("me", 503)

	res := e.provider.Sync(context.Background())
	assert.True(t, api.IsTransient(res.Err))
	assert.Equal(t, 2, e.srv.Calls("me"))

	st := e.store.Snapshot()
	assert.True(t, st.Authenticated())
	assert.False(t, st.IsLoading)
}

func TestSync_WithoutSessionDoesNothing(t *testing.T) {
	e := newEnv(t)
	res := e.provider.Sync(context.Background())
	assert.Nil(t, res.User)
	assert.Equal(t, 0, e.srv.Calls("me"))
}

func TestRun_SyncsOnTokenChangeOnly(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.provider.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, e.srv.Calls("me"))

	e.login(t)
	assert.Eventually(t, func() bool { return e.srv.Calls("me") == 1 }, time.Second, 5*time.Millisecond)

	// un merge del propio provider no dispara otro sync
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, e.srv.Calls("me"))

	require.NoError(t, e.store.Logout(context.Background()))
	e.login(t)
	assert.Eventually(t, func() bool { return e.srv.Calls("me") == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestRun_PollsOnInterval(t *testing.T) {
	e := newEnv(t)
	p, err := New(Config{Remote: e.client, Store: e.store, Cache: e.cache, Interval: 10 * time.Millisecond, Logger: zap.NewNop()})
	require.NoError(t, err)
	e.login(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	// cada tick consulta la red aunque "me" siga fresco en la cache
	assert.Eventually(t, func() bool { return e.srv.Calls("me") >= 3 }, time.Second, 5*time.Millisecond)
}
