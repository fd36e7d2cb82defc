package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleString(t *testing.T) {
	assert.Equal(t, "USER", RoleUser.String())
	assert.Equal(t, "APPROVE", RoleApprove.String())
	assert.Equal(t, "SADMIN", RoleSAdmin.String())
	assert.Equal(t, "UNKNOWN", Role(99).String())
}
