// Package credential хранит секреты (ключ API парсера) в системном keyring.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const (
	serviceName = "taskflow"
	// ParserKey - ключ API языковой модели
	ParserKey = "parser-api-key"
)

var ErrNotFound = errors.New("секрет не найден")

type Store struct {
	ring keyring.Keyring
}

// Open открывает системный keyring. fileDir - каталог файлового бэкенда.
func Open(fileDir string) (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt("taskflow-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("открытие keyring: %w", err)
	}
	return New(ring), nil
}

func New(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

func (s *Store) Get(key string) (string, error) {
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("чтение секрета %q: %w", key, err)
	}
	return string(item.Data), nil
}

func (s *Store) Set(key, value string) error {
	err := s.ring.Set(keyring.Item{
		Key:  key,
		Data: []byte(value),
	})
	if err != nil {
		return fmt.Errorf("запись секрета %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(key string) error {
	err := s.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("удаление секрета %q: %w", key, err)
	}
	return nil
}

// APIKey возвращает ключ парсера
func (s *Store) APIKey() (string, error) {
	return s.Get(ParserKey)
}
