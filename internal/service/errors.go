package service

import (
	"errors"
	"fmt"
)

const (
	CodeNotAuthenticated  = "NOT_AUTHENTICATED"
	CodeRemoteWriteFailed = "REMOTE_WRITE_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeValidation        = "VALIDATION_ERROR"
	CodeSyncFailed        = "SYNC_FAILED"
	CodeRestoreExpired    = "RESTORE_EXPIRED"
)

// Сентинелы для errors.Is: сравнение идёт по коду
var (
	ErrNotAuthenticated  = &BusinessError{Code: CodeNotAuthenticated, Message: "пользователь не аутентифицирован"}
	ErrRemoteWriteFailed = &BusinessError{Code: CodeRemoteWriteFailed, Message: "удалённая запись не выполнена"}
	ErrNotFound          = &BusinessError{Code: CodeNotFound, Message: "не найдено"}
	ErrValidation        = &BusinessError{Code: CodeValidation, Message: "неверные данные"}
	ErrSyncFailed        = &BusinessError{Code: CodeSyncFailed, Message: "синхронизация не выполнена"}
	ErrRestoreExpired    = &BusinessError{Code: CodeRestoreExpired, Message: "срок восстановления истёк"}
)

type BusinessError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

type Detail struct {
	Key     string
	Payload any
}

func (b *BusinessError) Error() string {
	if b.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", b.Code, b.Message, b.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", b.Code, b.Message)
}

func (b *BusinessError) Unwrap() error {
	return b.Err
}

func (b *BusinessError) Is(target error) bool {
	t, ok := target.(*BusinessError)
	return ok && t.Code == b.Code
}

func ToDetail(key string, payload any) Detail {
	return Detail{
		Key:     key,
		Payload: payload,
	}
}

func NewBusinessError(code string, message string, details ...Detail) *BusinessError {
	busErr := &BusinessError{
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}

	for _, detail := range details {
		busErr.Details[detail.Key] = detail.Payload
	}

	return busErr
}

func NewNotFound(resource, id string) *BusinessError {
	return &BusinessError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %s не найден(а)", resource, id),
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func NewValidationError(field, reason string) *BusinessError {
	return &BusinessError{
		Code:    CodeValidation,
		Message: fmt.Sprintf("Неверное значение поля '%s': %s", field, reason),
		Details: map[string]any{
			"field":  field,
			"reason": reason,
		},
	}
}

func NewRemoteWriteFailed(op string, err error) *BusinessError {
	return &BusinessError{
		Code:    CodeRemoteWriteFailed,
		Message: fmt.Sprintf("операция %s не подтверждена хранилищем", op),
		Details: map[string]any{"op": op},
		Err:     err,
	}
}

func newNotAuthenticated(err error) *BusinessError {
	return &BusinessError{
		Code:    CodeNotAuthenticated,
		Message: "пользователь не аутентифицирован",
		Err:     err,
	}
}

// CodeOf возвращает код бизнес-ошибки или пустую строку
func CodeOf(err error) string {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
