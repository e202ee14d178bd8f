package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/portal/internal/api"
	"github.com/dropDatabas3/portal/internal/domain/types"
	"github.com/dropDatabas3/portal/internal/kv"
	"github.com/dropDatabas3/portal/internal/notify"
	"github.com/dropDatabas3/portal/internal/security/tokencipher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRemote struct {
	mu        sync.Mutex
	calls     map[string]int
	session   types.Session
	loginErr  error
	logoutErr error
	meUser    *types.AuthUser
	meErr     error
	updateErr error
	onUpdate  func()
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{calls: map[string]int{}}
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) hit(op string) {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
}

func (f *fakeRemote) Login(_ context.Context, _ api.Credentials) (types.Session, error) {
	f.hit("login")
	return f.session, f.loginErr
}

func (f *fakeRemote) Register(_ context.Context, _ api.RegisterRequest) (types.Session, error) {
	f.hit("register")
	return f.session, f.loginErr
}

func (f *fakeRemote) Logout(context.Context, string) error {
	f.hit("logout")
	return f.logoutErr
}

func (f *fakeRemote) Me(context.Context, string) (*types.AuthUser, error) {
	f.hit("me")
	return f.meUser, f.meErr
}

func (f *fakeRemote) UpdateProfile(_ context.Context, _ string, p types.UserPatch) (*types.AuthUser, error) {
	f.hit("update_profile")
	if f.onUpdate != nil {
		f.onUpdate()
	}
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return p.Apply(f.session.User), nil
}

type clearCounter struct {
	mu sync.Mutex
	n  int
}

func (c *clearCounter) Clear() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *clearCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func sampleUser() *types.AuthUser {
	return &types.AuthUser{ID: 1, Username: "ana", Email: "a@b.com"}
}

type fixture struct {
	remote  *fakeRemote
	storage *kv.Memory
	cipher  *tokencipher.Cipher
	cache   *clearCounter
	sink    *notify.Recorder
	store   *Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		remote:  newFakeRemote(),
		storage: kv.NewMemory(),
		cipher:  tokencipher.New(tokencipher.WithLogger(zap.NewNop())),
		cache:   &clearCounter{},
		sink:    notify.NewRecorder(0),
	}
	f.remote.session = types.Session{Token: "tok1", User: sampleUser()}
	f.store = New(f.remote, f.storage, f.cipher,
		WithCache(f.cache), WithNotifier(f.sink), WithLogger(zap.NewNop()))
	return f
}

func (f *fixture) persisted(t *testing.T) persisted {
	t.Helper()
	raw, err := f.storage.Get(context.Background(), DefaultStorageKey)
	require.NoError(t, err)
	var p persisted
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return p
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	_, err := f.store.Login(context.Background(), api.Credentials{Email: "a@b.com", Password: "x"})
	require.NoError(t, err)
}

func TestLogin_StoresSessionAndReportsVerification(t *testing.T) {
	f := newFixture(t)

	res, err := f.store.Login(context.Background(), api.Credentials{Email: "a@b.com", Password: "x"})
	require.NoError(t, err)
	assert.True(t, res.NeedsVerification)
	assert.Equal(t, "a@b.com", res.User.Email)

	st := f.store.Snapshot()
	assert.Equal(t, "tok1", st.Token)
	assert.Equal(t, "a@b.com", st.User.Email)
	assert.False(t, st.IsLoading)
	assert.NoError(t, st.Err)
	assert.True(t, st.Authenticated())
	assert.Equal(t, 1, f.remote.count("login"))
	assert.Equal(t, 1, f.cache.count())
}

func TestLogin_FailureRecordsErrorWithoutRetry(t *testing.T) {
	f := newFixture(t)
	f.remote.loginErr = &api.Error{Kind: api.KindTransient, Err: errors.New("connection refused")}

	_, err := f.store.Login(context.Background(), api.Credentials{Email: "a@b.com", Password: "x"})
	require.Error(t, err)
	assert.True(t, api.IsTransient(err))

	st := f.store.Snapshot()
	assert.False(t, st.Authenticated())
	assert.False(t, st.IsLoading)
	assert.Equal(t, err, st.Err)
	assert.Equal(t, 1, f.remote.count("login"))
}

func TestRegister_SameContractAsLogin(t *testing.T) {
	f := newFixture(t)

	res, err := f.store.Register(context.Background(), api.RegisterRequest{})
	require.NoError(t, err)
	assert.True(t, res.NeedsVerification)
	assert.True(t, f.store.Snapshot().Authenticated())
}

func TestLogout_ClearsStateEvenWhenRemoteFails(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.remote.logoutErr = &api.Error{Kind: api.KindTransient, Err: errors.New("network down")}

	err := f.store.Logout(context.Background())
	require.Error(t, err)

	st := f.store.Snapshot()
	assert.Equal(t, "", st.Token)
	assert.Nil(t, st.User)
	assert.False(t, st.IsLoading)

	p := f.persisted(t)
	assert.Equal(t, "", p.State.Token)
	assert.Nil(t, p.State.User)
	assert.Equal(t, 2, f.cache.count())
}

func TestLogout_InvalidatesDerivedKey(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	require.Equal(t, 1, f.cipher.Keys().Derivations())

	require.NoError(t, f.store.Logout(context.Background()))
	f.login(t)
	assert.Equal(t, 2, f.cipher.Keys().Derivations())
}

func TestLogout_WithoutTokenSkipsRemote(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Logout(context.Background()))
	assert.Equal(t, 0, f.remote.count("logout"))
}

func TestPersistence_OnlyTokenAndUserEncrypted(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	raw, err := f.storage.Get(context.Background(), DefaultStorageKey)
	require.NoError(t, err)
	assert.NotContains(t, raw, "tok1")
	assert.NotContains(t, raw, "isLoading")
	assert.NotContains(t, raw, "error")

	var generic struct {
		State map[string]any `json:"state"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &generic))
	assert.Len(t, generic.State, 2)
	assert.Contains(t, generic.State, "token")
	assert.Contains(t, generic.State, "user")

	p := f.persisted(t)
	tok, ok := f.cipher.Decrypt(p.State.Token)
	require.True(t, ok)
	assert.Equal(t, "tok1", tok)
}

func TestHydrate_RestoresSession(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	other := New(f.remote, f.storage, tokencipher.New(tokencipher.WithLogger(zap.NewNop())), WithLogger(zap.NewNop()))
	other.Hydrate(context.Background())

	st := other.Snapshot()
	assert.True(t, st.Hydrated)
	assert.Equal(t, "tok1", st.Token)
	assert.Equal(t, "a@b.com", st.User.Email)
	assert.True(t, st.IsLoading)
	assert.False(t, st.Resolved())

	other.FinishLoading()
	assert.True(t, other.Snapshot().Resolved())
}

func TestHydrate_LegacyPlaintextToken(t *testing.T) {
	f := newFixture(t)
	raw := `{"state":{"token":"legacy-token","user":{"id":1,"email":"a@b.com"}},"version":0}`
	require.NoError(t, f.storage.Set(context.Background(), DefaultStorageKey, raw))

	f.store.Hydrate(context.Background())
	assert.Equal(t, "legacy-token", f.store.Snapshot().Token)
}

func TestHydrate_UndecryptableTokenForcesLogout(t *testing.T) {
	f := newFixture(t)
	foreign := tokencipher.New(
		tokencipher.WithKeyProvider(tokencipher.NewKeyProviderFrom("other", "salt")),
		tokencipher.WithLogger(zap.NewNop()),
	)
	blob := foreign.Encrypt("tok1")
	raw, _ := json.Marshal(persisted{State: persistedState{Token: blob, User: sampleUser()}})
	require.NoError(t, f.storage.Set(context.Background(), DefaultStorageKey, string(raw)))

	f.store.Hydrate(context.Background())

	st := f.store.Snapshot()
	assert.True(t, st.Hydrated)
	assert.False(t, st.Authenticated())
	assert.Nil(t, f.persisted(t).State.User)
}

func TestHydrate_CorruptSnapshotStartsEmpty(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.storage.Set(context.Background(), DefaultStorageKey, "{not json"))

	f.store.Hydrate(context.Background())
	st := f.store.Snapshot()
	assert.True(t, st.Hydrated)
	assert.False(t, st.Authenticated())
	assert.False(t, st.IsLoading)
}

func TestNoopStorageNeverFails(t *testing.T) {
	r := newFakeRemote()
	r.session = types.Session{Token: "tok1", User: sampleUser()}
	s := New(r, nil, tokencipher.New(tokencipher.WithLogger(zap.NewNop())), WithLogger(zap.NewNop()))

	s.Hydrate(context.Background())
	_, err := s.Login(context.Background(), api.Credentials{Email: "a@b.com", Password: "x"})
	require.NoError(t, err)
	require.NoError(t, s.Logout(context.Background()))
	assert.False(t, s.Snapshot().Authenticated())
}

func TestSetToken_FailsClosed(t *testing.T) {
	f := newFixture(t)
	f.remote.meErr = &api.Error{Kind: api.KindAuth, Status: 401}

	err := f.store.SetToken(context.Background(), "oauth-token")
	require.Error(t, err)

	st := f.store.Snapshot()
	assert.Equal(t, "", st.Token)
	assert.Nil(t, st.User)
	assert.False(t, st.IsLoading)
	assert.Error(t, st.Err)
}

func TestSetToken_Success(t *testing.T) {
	f := newFixture(t)
	f.remote.meUser = sampleUser()

	require.NoError(t, f.store.SetToken(context.Background(), "oauth-token"))
	st := f.store.Snapshot()
	assert.Equal(t, "oauth-token", st.Token)
	assert.Equal(t, int64(1), st.User.ID)
	assert.ErrorIs(t, f.store.SetToken(context.Background(), ""), ErrNotAuthenticated)
}

func TestUpdateUser_ShallowMergeWithoutRemote(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	avatar := "https://cdn.example.org/a.png"

	f.store.UpdateUser(types.UserPatch{AvatarURL: &avatar})

	st := f.store.Snapshot()
	assert.Equal(t, avatar, st.User.AvatarURL)
	assert.Equal(t, "ana", st.User.Username)
	assert.Equal(t, avatar, f.persisted(t).State.User.AvatarURL)
	assert.Equal(t, 0, f.remote.count("update_profile"))
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.UpdateProfile(context.Background(), types.UserPatch{})
	require.ErrorIs(t, err, ErrNotAuthenticated)

	f.login(t)
	name := "ana.m"
	u, err := f.store.UpdateProfile(context.Background(), types.UserPatch{Username: &name})
	require.NoError(t, err)
	assert.Equal(t, "ana.m", u.Username)
	assert.Equal(t, "ana.m", f.store.Snapshot().User.Username)

	f.remote.updateErr = &api.Error{Kind: api.KindValidation, Fields: map[string][]string{"username": {"taken"}}}
	_, err = f.store.UpdateProfile(context.Background(), types.UserPatch{Username: &name})
	require.Error(t, err)
	assert.Equal(t, err, f.store.Snapshot().Err)
	assert.True(t, f.store.Snapshot().Authenticated())

	f.remote.updateErr = &api.Error{Kind: api.KindAuth, Status: 401}
	_, err = f.store.UpdateProfile(context.Background(), types.UserPatch{Username: &name})
	require.Error(t, err)
	assert.False(t, f.store.Snapshot().Authenticated())
}

func TestUpdateProfile_UnauthorizedAfterRotationKeepsSession(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.remote.onUpdate = func() {
		require.True(t, f.store.CompareAndSwap("tok1", types.Session{Token: "tok2", User: sampleUser()}))
	}
	f.remote.updateErr = &api.Error{Kind: api.KindAuth, Status: 401}

	name := "ana.m"
	_, err := f.store.UpdateProfile(context.Background(), types.UserPatch{Username: &name})
	assert.True(t, api.IsAuth(err))
	st := f.store.Snapshot()
	assert.Equal(t, "tok2", st.Token)
	assert.True(t, st.Authenticated())
	_, ok := f.sink.Last()
	assert.False(t, ok)
}

func TestForceLogoutIf(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.store.ForceLogoutIf("", ReasonUnauthorized))

	f.login(t)
	assert.False(t, f.store.ForceLogoutIf("stale", ReasonUnauthorized))
	assert.True(t, f.store.Snapshot().Authenticated())
	_, ok := f.sink.Last()
	assert.False(t, ok)

	assert.True(t, f.store.ForceLogoutIf("tok1", ReasonUnauthorized))
	assert.False(t, f.store.Snapshot().Authenticated())
	n, ok := f.sink.Last()
	require.True(t, ok)
	assert.Equal(t, notify.LevelWarning, n.Level)
}

func TestSubscribe_NotifiesOnlyOnChange(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	var mu sync.Mutex
	var seen []State
	unsubscribe := f.store.Subscribe(func(s State) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	f.store.MergeUser(sampleUser())
	f.store.FinishLoading()
	mu.Lock()
	assert.Empty(t, seen)
	mu.Unlock()

	changed := sampleUser()
	changed.Username = "ana2"
	f.store.MergeUser(changed)
	f.store.MergeUser(changed)

	mu.Lock()
	require.Len(t, seen, 1)
	assert.Equal(t, "ana2", seen[0].User.Username)
	mu.Unlock()

	unsubscribe()
	unsubscribe()
	f.store.ForceLogout(ReasonUnauthorized)
	mu.Lock()
	assert.Len(t, seen, 1)
	mu.Unlock()
}

func TestSnapshotIsACopy(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	st := f.store.Snapshot()
	st.User.Email = "mutated@x.com"
	assert.Equal(t, "a@b.com", f.store.Snapshot().User.Email)
}

func TestMergeUser_KeepsTokenAndIgnoresLoggedOut(t *testing.T) {
	f := newFixture(t)
	f.store.MergeUser(sampleUser())
	assert.Nil(t, f.store.Snapshot().User)

	f.login(t)
	u := sampleUser()
	u.Permissions.Set(types.CapViewEvents, true)
	f.store.MergeUser(u)
	st := f.store.Snapshot()
	assert.Equal(t, "tok1", st.Token)
	assert.True(t, st.User.Permissions.Has(types.CapViewEvents))
}

func TestSwap(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	u := sampleUser()
	u.Username = "renamed"
	f.store.Swap(types.Session{Token: "tok2", User: u})
	st := f.store.Snapshot()
	assert.Equal(t, "tok2", st.Token)
	assert.Equal(t, "renamed", st.User.Username)

	f.store.Swap(types.Session{Token: "", User: u})
	assert.Equal(t, "tok2", f.store.Snapshot().Token)
}

func TestForceLogout_Notifies(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.store.ForceLogout(ReasonUnauthorized)
	assert.False(t, f.store.Snapshot().Authenticated())
	n, ok := f.sink.Last()
	require.True(t, ok)
	assert.Equal(t, notify.LevelWarning, n.Level)
}

func TestTimeoutIsRecordedAsTransient(t *testing.T) {
	r := &slowRemote{fakeRemote: newFakeRemote()}
	s := New(r, kv.NewMemory(), tokencipher.New(tokencipher.WithLogger(zap.NewNop())),
		WithLogger(zap.NewNop()), WithTimeout(20*time.Millisecond))

	_, err := s.Login(context.Background(), api.Credentials{Email: "a@b.com", Password: "x"})
	require.Error(t, err)
	st := s.Snapshot()
	assert.False(t, st.IsLoading)
	assert.True(t, api.IsTransient(st.Err))
}

// slowRemote bloquea Login hasta que venza el ctx, como lo haría el cliente HTTP.
type slowRemote struct{ *fakeRemote }

func (s *slowRemote) Login(ctx context.Context, _ api.Credentials) (types.Session, error) {
	<-ctx.Done()
	return types.Session{}, &api.Error{Kind: api.KindTransient, Err: ctx.Err()}
}

func TestCompareAndSwap_RejectsStaleToken(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	assert.False(t, f.store.CompareAndSwap("tok0", types.Session{Token: "tok2", User: sampleUser()}))
	assert.Equal(t, "tok1", f.store.Snapshot().Token)

	assert.True(t, f.store.CompareAndSwap("tok1", types.Session{Token: "tok2", User: sampleUser()}))
	assert.Equal(t, "tok2", f.store.Snapshot().Token)

	require.NoError(t, f.store.Logout(context.Background()))
	assert.False(t, f.store.CompareAndSwap("tok2", types.Session{Token: "tok3", User: sampleUser()}))
	assert.False(t, f.store.Snapshot().Authenticated())
}
