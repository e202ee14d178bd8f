package plans

import (
	"context"
	"testing"

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

func newService(t *testing.T) (*Service, *apitest.Server, *session.Store) {
	t.Helper()
	srv := apitest.New()
	t.Cleanup(srv.Close)
	srv.AddUser(types.AuthUser{ID: 1, Email: "admin@b.com"}, "x")
	srv.SeedPlans(types.Plan{ID: 1, Name: "Basic", PriceCents: 1000, Currency: "EUR", Interval: "month", Active: true})

	client, err := api.New(srv.URL, api.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	cache := query.New(zap.NewNop())
	store := session.New(client, kv.NewMemory(), tokencipher.New(tokencipher.WithLogger(zap.NewNop())),
		session.WithLogger(zap.NewNop()), session.WithCache(cache))
	_, err = store.Login(context.Background(), api.Credentials{Email: "admin@b.com", Password: "x"})
	require.NoError(t, err)
	return NewService(client, store, cache), srv, store
}

func TestList_ServedFromCacheUntilMutation(t *testing.T) {
	svc, srv, _ := newService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		list, err := svc.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
	}
	assert.Equal(t, 1, srv.Calls("plans_list"))
}

func TestMutationsInvalidatePlans(t *testing.T) {
	svc, srv, _ := newService(t)
	ctx := context.Background()

	_, err := svc.List(ctx)
	require.NoError(t, err)

	created, err := svc.Create(ctx, types.PlanInput{Name: "Pro", PriceCents: 2500, Currency: "EUR", Interval: "year"})
	require.NoError(t, err)
	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, 2, srv.Calls("plans_list"))

	_, err = svc.Update(ctx, created.ID, types.PlanInput{Name: "Pro+", PriceCents: 3000, Currency: "EUR", Interval: "year"})
	require.NoError(t, err)
	list, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Pro+", list[1].Name)
	assert.Equal(t, 3, srv.Calls("plans_list"))

	require.NoError(t, svc.Delete(ctx, created.ID))
	list, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 4, srv.Calls("plans_list"))
}

func TestFailedMutationKeepsCache(t *testing.T) {
	svc, srv, _ := newService(t)
	ctx := context.Background()

	_, err := svc.List(ctx)
	require.NoError(t, err)
	err = svc.Delete(ctx, 99)
	assert.Equal(t, api.KindNotFound, api.KindOf(err))

	_, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Calls("plans_list"))
}

func TestLocalValidation(t *testing.T) {
	svc, srv, _ := newService(t)

	_, err := svc.Create(context.Background(), types.PlanInput{PriceCents: -1, Interval: "week"})
	require.True(t, api.IsValidation(err))
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.NotEmpty(t, apiErr.FieldError("name"))
	assert.NotEmpty(t, apiErr.FieldError("price_cents"))
	assert.NotEmpty(t, apiErr.FieldError("interval"))
	assert.Equal(t, 0, srv.Calls("plans_create"))

	assert.ErrorIs(t, svc.Delete(context.Background(), 0), ErrInvalidID)
}

func TestUnauthorizedForcesLogout(t *testing.T) {
	svc, srv, store := newService(t)
	srv.Revoke(store.Snapshot().Token)

	_, err := svc.List(context.Background())
	assert.True(t, api.IsAuth(err))
	assert.False(t, store.Snapshot().Authenticated())

	_, err = svc.List(context.Background())
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
}

// rotatingRemote simula un refresh que rota el token mientras la llamada con
// el token viejo está en vuelo; la API responde 401 a ese token revocado.
type rotatingRemote struct {
	Remote
	store *session.Store
	user  *types.AuthUser
}

func (r rotatingRemote) rotate(tok string) error {
	r.store.CompareAndSwap(tok, types.Session{Token: "rotated-" + tok, User: r.user})
	return &api.Error{Kind: api.KindAuth, Status: 401, Message: "token revoked"}
}

func (r rotatingRemote) ListPlans(ctx context.Context, tok string) ([]types.Plan, error) {
	return nil, r.rotate(tok)
}

func (r rotatingRemote) DeletePlan(ctx context.Context, tok string, id int64) error {
	return r.rotate(tok)
}

func TestUnauthorizedForSupersededTokenKeepsSession(t *testing.T) {
	base, _, store := newService(t)
	before := store.Snapshot()
	svc := NewService(rotatingRemote{Remote: base.remote, store: store, user: before.User}, store, base.cache)

	_, err := svc.List(context.Background())
	assert.True(t, api.IsAuth(err))
	st := store.Snapshot()
	assert.Equal(t, "rotated-"+before.Token, st.Token)
	require.NotNil(t, st.User)
	assert.Equal(t, before.User.ID, st.User.ID)

	err = svc.Delete(context.Background(), 1)
	assert.True(t, api.IsAuth(err))
	assert.Equal(t, "rotated-rotated-"+before.Token, store.Snapshot().Token)
	assert.True(t, store.Snapshot().Authenticated())
}

func TestMutationsInvalidateDashboardStats(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	stats := query.NewKey(query.FamilyDashboardStats)
	prime := func() {
		_, err := query.Fetch(ctx, svc.cache, stats, func(context.Context) (int, error) { return 1, nil })
		require.NoError(t, err)
		require.True(t, svc.cache.Has(stats))
	}

	prime()
	created, err := svc.Create(ctx, types.PlanInput{Name: "Pro", PriceCents: 2500, Currency: "EUR", Interval: "year"})
	require.NoError(t, err)
	assert.False(t, svc.cache.Has(stats))

	prime()
	_, err = svc.Update(ctx, created.ID, types.PlanInput{Name: "Pro+", PriceCents: 3000, Currency: "EUR", Interval: "year"})
	require.NoError(t, err)
	assert.False(t, svc.cache.Has(stats))

	prime()
	require.NoError(t, svc.Delete(ctx, created.ID))
	assert.False(t, svc.cache.Has(stats))
}
