package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/portal/internal/api/apitest"
	"github.com/dropDatabas3/portal/internal/domain/types"
	"github.com/dropDatabas3/portal/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	api  *apitest.Server
	dir  string
	path string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	srv := apitest.New()
	t.Cleanup(srv.Close)
	admin := types.AuthUser{ID: 1, Username: "ana", Email: "ana@club.org", AdminAccess: types.AdminAccess{CanAccessAdmin: true}}
	admin.Permissions.Set(types.CapManagePlans, true)
	srv.AddUser(admin, "secret")
	srv.SeedPlans(types.Plan{ID: 1, Name: "Basic", PriceCents: 1050, Currency: "EUR", Interval: "month", Active: true})

	dir := t.TempDir()
	t.Setenv("PORTAL_API_BASE_URL", srv.URL)
	t.Setenv("PORTAL_STORAGE_DRIVER", "file")
	t.Setenv("PORTAL_STORAGE_PATH", filepath.Join(dir, "session.json"))
	t.Setenv("PORTAL_LOG_FORMAT", "silent")
	return &cli{api: srv, dir: dir, path: filepath.Join(dir, "session.json")}
}

func (c *cli) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	full := append([]string{"--config", filepath.Join(c.dir, "missing.yaml"), "--env-file", filepath.Join(c.dir, ".env")}, args...)
	root.SetArgs(full)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoginPersistsAcrossInvocations(t *testing.T) {
	c := newCLI(t)

	out, err := c.run(t, "secret\n", "login", "--email", "ana@club.org")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as ana")
	assert.Contains(t, out, "not verified")

	raw, err := os.ReadFile(c.path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"tok1"`)

	out, err = c.run(t, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "ana <ana@club.org>")
	assert.Equal(t, 1, c.api.Calls("me"))

	out, err = c.run(t, "", "plans", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Basic")
	assert.Contains(t, out, "10.50 EUR")

	out, err = c.run(t, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	_, err = c.run(t, "", "whoami")
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
}

func TestLoginValidationShowsFields(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "", "login", "--email", "nope", "--password", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email:")
	assert.Equal(t, 0, c.api.Calls("login"))
}

func TestRefreshOnce(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "", "login", "--email", "ana@club.org", "--password", "secret")
	require.NoError(t, err)

	out, err := c.run(t, "", "--out", "json", "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, `"outcome"`)
}

func TestTokenRoundTrip(t *testing.T) {
	c := newCLI(t)
	blob, err := c.run(t, "", "token", "encrypt", "abc123")
	require.NoError(t, err)
	blob = strings.TrimSpace(blob)
	assert.NotEqual(t, "abc123", blob)

	out, err := c.run(t, "", "token", "decrypt", blob)
	require.NoError(t, err)
	assert.Equal(t, "abc123\n", out)
}

func TestRejectsUnknownOutput(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "", "--out", "yaml", "logout")
	assert.Error(t, err)
}

func TestServeReturnsWhenAddressIsBusy(t *testing.T) {
	c := newCLI(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	done := make(chan error, 1)
	go func() {
		_, err := c.run(t, "", "serve", "--addr", ln.Addr().String())
		done <- err
	}()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatalf("serve kept running after failing to listen on %s", ln.Addr())
	}
}
