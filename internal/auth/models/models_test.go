package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleValid(t *testing.T) {
	for _, role := range []Role{RoleAdmin, RoleStaff, RoleReception, RoleAssistant, RoleUser} {
		assert.True(t, role.Valid(), "role %q", role)
	}
	assert.False(t, Role("superuser").Valid())
	assert.False(t, Role("").Valid())
}

func TestRoleHelpers(t *testing.T) {
	admin := &UserProfile{Role: RoleAdmin}
	reception := &UserProfile{Role: RoleReception}
	visitor := &UserProfile{Role: RoleUser}

	assert.True(t, admin.IsAdmin())
	assert.True(t, admin.IsEmployee())
	assert.False(t, admin.IsReception())

	assert.True(t, reception.IsReception())
	assert.True(t, reception.IsEmployee())
	assert.False(t, reception.IsAdmin())

	assert.False(t, visitor.IsEmployee())
	assert.True(t, visitor.HasRole(RoleUser))
	assert.False(t, visitor.HasRole(RoleStaff))
}

func TestRoleHelpersOnNilProfile(t *testing.T) {
	var u *UserProfile
	assert.False(t, u.HasRole(RoleAdmin))
	assert.False(t, u.IsAdmin())
	assert.False(t, u.IsEmployee())
	assert.False(t, u.IsReception())
}
