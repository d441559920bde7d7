package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emsops/emsops/internal/platform/apperr"
)

type address struct {
	City string `json:"city" validate:"required"`
}

type sample struct {
	Username string   `json:"username" validate:"required,min=3"`
	Role     string   `json:"role" validate:"omitempty,oneof=admin supervisor crew"`
	Email    string   `json:"email" validate:"omitempty,email"`
	Address  *address `json:"address" validate:"omitempty"`
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, New().Validate(sample{Username: "medic1", Role: "crew"}))
}

func TestValidate_ReportsJSONFieldName(t *testing.T) {
	err := New().Validate(sample{Username: "ab"})
	require.Error(t, err)

	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	assert.Equal(t, "username", ae.Field)
	assert.Equal(t, "username must be at least 3", ae.Message)
}

func TestValidate_OneOfMessage(t *testing.T) {
	err := New().Validate(sample{Username: "medic1", Role: "pilot"})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "role must be one of admin, supervisor, crew", ae.Message)
}

func TestValidate_NestedPath(t *testing.T) {
	err := New().Validate(sample{Username: "medic1", Address: &address{}})
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "address.city", ae.Field)
}

func TestVar(t *testing.T) {
	v := New()
	assert.NoError(t, v.Var("password", "longenough", "min=8"))

	err := v.Var("password", "short", "min=8")
	ae, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "password", ae.Field)
}
