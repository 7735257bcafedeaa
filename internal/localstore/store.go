// Package localstore - долговременное локальное хранилище JSON-значений по ключу.
// Переживает перезапуск процесса: очередь синхронизации, открытая сессия, состояние фокуса.
package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Фиксированные ключи
const (
	KeyPendingSessions = "pendingTimeSessions"
	KeyActiveSession   = "activeSession"
	KeyFocus           = "focus-store"
)

// ActiveSessionKey - открытая сессия хранится отдельно для каждого пользователя
func ActiveSessionKey(userID uuid.UUID) string {
	return KeyActiveSession + ":" + userID.String()
}

type Store interface {
	// Get декодирует значение ключа в dst. false - ключа нет.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Remove(ctx context.Context, key string) error
}

// Memory - хранилище в памяти процесса (тесты, режим без диска)
type Memory struct {
	mtx    sync.RWMutex
	values map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string, dst any) (bool, error) {
	m.mtx.RLock()
	raw, ok := m.values[key]
	m.mtx.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, fmt.Errorf("декодирование %q: %w", key, err)
	}
	return true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("кодирование %q: %w", key, err)
	}
	m.mtx.Lock()
	m.values[key] = raw
	m.mtx.Unlock()
	return nil
}

func (m *Memory) Remove(ctx context.Context, key string) error {
	m.mtx.Lock()
	delete(m.values, key)
	m.mtx.Unlock()
	return nil
}

// Raw возвращает сырой JSON ключа
func (m *Memory) Raw(key string) (string, bool) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	raw, ok := m.values[key]
	return string(raw), ok
}
