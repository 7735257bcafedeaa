// Package auth хранит идентичность текущего пользователя.
package auth

import (
	"context"
	"sync"
	"taskflow/internal/logger"
	repo "taskflow/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Identity interface {
	// UserID возвращает repository.ErrNotAuthenticated, если вход не выполнен
	UserID(ctx context.Context) (uuid.UUID, error)
}

// Session - идентичность процесса. Вход и выход выполняет внешний поток аутентификации.
type Session struct {
	mtx       sync.RWMutex
	userID    uuid.UUID
	onSignIn  []func(userID uuid.UUID)
	onSignOut []func()
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) UserID(ctx context.Context) (uuid.UUID, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	if s.userID == uuid.Nil {
		return uuid.Nil, repo.ErrNotAuthenticated
	}
	return s.userID, nil
}

func (s *Session) SignIn(userID uuid.UUID) {
	s.mtx.Lock()
	s.userID = userID
	hooks := append([]func(uuid.UUID){}, s.onSignIn...)
	s.mtx.Unlock()

	logger.Info("Auth: Пользователь вошёл", zap.String("user_id", userID.String()))
	for _, h := range hooks {
		h(userID)
	}
}

// OnSignIn регистрирует подписчика входа (загрузка данных пользователя)
func (s *Session) OnSignIn(fn func(userID uuid.UUID)) {
	s.mtx.Lock()
	s.onSignIn = append(s.onSignIn, fn)
	s.mtx.Unlock()
}

// SignOut сбрасывает пользователя и вызывает подписчиков (остановка таймеров)
func (s *Session) SignOut() {
	s.mtx.Lock()
	s.userID = uuid.Nil
	hooks := append([]func(){}, s.onSignOut...)
	s.mtx.Unlock()

	for _, h := range hooks {
		h()
	}
	logger.Info("Auth: Пользователь вышел")
}

func (s *Session) OnSignOut(fn func()) {
	s.mtx.Lock()
	s.onSignOut = append(s.onSignOut, fn)
	s.mtx.Unlock()
}
