package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
)

func TestGenerateAndValidate(t *testing.T) {
	svc := NewJWTService("secret", "cmc-ua", time.Hour)
	actor := model.Actor{UserID: uuid.New(), Name: "Dr A", Roles: []model.Role{model.RoleDoctor, "janitor"}}

	token, err := svc.GenerateAccessToken(actor)
	require.NoError(t, err)

	got, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, actor.UserID, got.UserID)
	assert.Equal(t, []model.Role{model.RoleDoctor}, got.Roles)
}

func TestValidateRejects(t *testing.T) {
	actor := model.Actor{UserID: uuid.New(), Roles: []model.Role{model.RoleSecretary}}

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewJWTService("one", "cmc-ua", time.Hour).GenerateAccessToken(actor)
		require.NoError(t, err)
		_, err = NewJWTService("two", "cmc-ua", time.Hour).ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		svc := NewJWTService("secret", "cmc-ua", time.Hour).(*jwtService)
		svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, err := svc.GenerateAccessToken(actor)
		require.NoError(t, err)
		svc.now = time.Now
		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("no roles", func(t *testing.T) {
		svc := NewJWTService("secret", "cmc-ua", time.Hour)
		token, err := svc.GenerateAccessToken(model.Actor{UserID: uuid.New()})
		require.NoError(t, err)
		_, err = svc.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := NewJWTService("secret", "cmc-ua", time.Hour).ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
