package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewatch/backend/internal/errs"
)

var (
	employee7  = Identity{UserID: 7, Role: "employee"}
	supervisor = Identity{UserID: 100, Role: "supervisor"}
)

func TestAllow(t *testing.T) {
	tests := []struct {
		name    string
		action  Action
		actor   Identity
		ownerID int64
		wantErr bool
	}{
		{"employee reads own", ActionRead, employee7, 7, false},
		{"employee reads other", ActionRead, employee7, 9, true},
		{"supervisor reads any", ActionRead, supervisor, 9, false},
		{"employee acks own", ActionAcknowledge, employee7, 7, false},
		{"employee acks other", ActionAcknowledge, employee7, 9, true},
		{"supervisor acks any", ActionAcknowledge, supervisor, 9, false},
		{"employee resolves own", ActionResolve, employee7, 7, true},
		{"supervisor resolves", ActionResolve, supervisor, 7, false},
		{"employee administers", ActionAdminister, employee7, 7, true},
		{"supervisor administers", ActionAdminister, supervisor, 0, false},
		{"unknown action denied", Action("bogus"), supervisor, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Allow(tt.action, tt.actor, tt.ownerID)
			if tt.wantErr {
				assert.ErrorIs(t, err, errs.ErrForbidden)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScopeUser_EmployeePinnedToSelf(t *testing.T) {
	scope, err := ScopeUser(employee7, nil)
	require.NoError(t, err)
	require.NotNil(t, scope)
	assert.Equal(t, int64(7), *scope)

	nine := int64(9)
	_, err = ScopeUser(employee7, &nine)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	seven := int64(7)
	scope, err = ScopeUser(employee7, &seven)
	require.NoError(t, err)
	assert.Equal(t, int64(7), *scope)
}

func TestScopeUser_SupervisorUnrestricted(t *testing.T) {
	scope, err := ScopeUser(supervisor, nil)
	require.NoError(t, err)
	assert.Nil(t, scope)

	nine := int64(9)
	scope, err = ScopeUser(supervisor, &nine)
	require.NoError(t, err)
	assert.Equal(t, int64(9), *scope)
}

func TestPasswordPolicy(t *testing.T) {
	assert.NoError(t, checkPasswordPolicy("Str0ng!pass"))
	assert.Error(t, checkPasswordPolicy("short1!"))
	assert.Error(t, checkPasswordPolicy("alllowercase1!"))
	assert.Error(t, checkPasswordPolicy("ALLUPPERCASE1!"))
	assert.Error(t, checkPasswordPolicy("NoDigits!!"))
	assert.Error(t, checkPasswordPolicy("NoSymbols11"))
}
