package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilities_CoverEveryFlag(t *testing.T) {
	caps := Capabilities()
	require.Len(t, caps, 30)

	// Cada capability debe coincidir con el tag JSON del flag que resuelve.
	for _, c := range caps {
		var p UiPermissions
		require.True(t, p.Set(c, true), c)
		b, err := json.Marshal(p)
		require.NoError(t, err)
		var m map[string]bool
		require.NoError(t, json.Unmarshal(b, &m))
		assert.True(t, m[string(c)], "flag %s must map to its own json field", c)
		assert.Equal(t, []Capability{c}, p.Granted())
	}
}

func TestHas_UnknownCapabilityIsFalse(t *testing.T) {
	var p UiPermissions
	p.CanAccessAdmin = true
	assert.True(t, p.Has(CapAccessAdmin))
	assert.False(t, p.Has("can_fly"))
	assert.False(t, p.Set("can_fly", true))
	assert.False(t, Capability("can_fly").IsKnown())
}

func TestAuthUser_DecodeWireShape(t *testing.T) {
	raw := `{
		"id": 1, "username": "ana", "email": "a@b.com", "email_verified_at": null,
		"ui_permissions": {"can_view_events": true},
		"admin_access": {"can_access_admin": true, "menu": [{"key":"plans","label":"Plans","path":"/admin/plans"}]},
		"member": {"is_staff": true, "first_name": "Ana", "last_name": "Gómez"}
	}`
	var u AuthUser
	require.NoError(t, json.Unmarshal([]byte(raw), &u))
	assert.Equal(t, int64(1), u.ID)
	assert.True(t, u.NeedsVerification())
	assert.True(t, u.Permissions.Has(CapViewEvents))
	assert.True(t, u.AdminAccess.CanAccessAdmin)
	require.Len(t, u.AdminAccess.Menu, 1)
	assert.Equal(t, "Ana Gómez", u.DisplayName())
}

func TestUserPatch_ApplyIsShallowAndCopies(t *testing.T) {
	now := time.Now().UTC()
	u := &AuthUser{ID: 7, Username: "old", Email: "x@y.z", AdminAccess: AdminAccess{Menu: []MenuItem{{Key: "a"}}}}

	name := "new"
	avatar := "https://cdn/x.png"
	verified := &now
	out := UserPatch{Username: &name, AvatarURL: &avatar, EmailVerifiedAt: &verified}.Apply(u)

	assert.Equal(t, "new", out.Username)
	assert.Equal(t, "x@y.z", out.Email)
	assert.Equal(t, avatar, out.AvatarURL)
	assert.False(t, out.NeedsVerification())

	// el original no se toca
	assert.Equal(t, "old", u.Username)
	out.AdminAccess.Menu[0].Key = "b"
	assert.Equal(t, "a", u.AdminAccess.Menu[0].Key)

	assert.Nil(t, UserPatch{}.Apply(nil))
}
