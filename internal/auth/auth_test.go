package auth_test

import (
	"context"
	"taskflow/internal/auth"
	repo "taskflow/internal/repository"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession(t *testing.T) {
	ctx := context.Background()
	s := auth.NewSession()

	_, err := s.UserID(ctx)
	assert.ErrorIs(t, err, repo.ErrNotAuthenticated)

	user := uuid.New()
	s.SignIn(user)
	got, err := s.UserID(ctx)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	called := 0
	s.OnSignOut(func() { called++ })
	s.SignOut()

	assert.Equal(t, 1, called)
	_, err = s.UserID(ctx)
	assert.ErrorIs(t, err, repo.ErrNotAuthenticated)
}

func TestSession_OnSignIn(t *testing.T) {
	s := auth.NewSession()
	user := uuid.New()

	var seen uuid.UUID
	s.OnSignIn(func(id uuid.UUID) {
		// подписчик уже видит нового пользователя
		got, err := s.UserID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, id, got)
		seen = id
	})
	s.SignIn(user)
	assert.Equal(t, user, seen)
}
