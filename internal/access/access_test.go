package access

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/campuspoints/internal/models"
)

func TestCan(t *testing.T) {
	tests := []struct {
		role     models.Role
		action   Action
		resource Resource
		want     bool
	}{
		{models.RoleRegular, Create, Transfers, true},
		{models.RoleRegular, Create, Purchases, false},
		{models.RoleCashier, Create, Purchases, true},
		{models.RoleCashier, Create, Adjustments, false},
		{models.RoleCashier, Process, Redemptions, true},
		{models.RoleCashier, List, Users, false},
		{models.RoleManager, List, Users, true},
		{models.RoleManager, Flag, Transactions, true},
		{models.RoleManager, Manage, Roles, false},
		{models.RoleSuperuser, Manage, Roles, true},
		{models.RoleSuperuser, Read, Reports, true},
		{models.RoleSuperuser, Award, Self, false},
		{"owner", Read, Self, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.action)+"/"+string(tt.resource), func(t *testing.T) {
			assert.Equal(t, tt.want, Can(tt.role, tt.action, tt.resource))
		})
	}
}

func TestCanAssign(t *testing.T) {
	assert.True(t, CanAssign(models.RoleManager, models.RoleCashier))
	assert.True(t, CanAssign(models.RoleManager, models.RoleRegular))
	assert.False(t, CanAssign(models.RoleManager, models.RoleManager))
	assert.False(t, CanAssign(models.RoleManager, models.RoleSuperuser))
	assert.True(t, CanAssign(models.RoleSuperuser, models.RoleSuperuser))
	assert.False(t, CanAssign(models.RoleCashier, models.RoleRegular))
	assert.False(t, CanAssign(models.RoleSuperuser, "owner"))
}
