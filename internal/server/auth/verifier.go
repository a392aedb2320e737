// Package auth определяет контракт проверки токенов устройств и две
// реализации: статическая таблица из конфигурации и JWT.
// Провайдер аутентификации (выдача токенов, регистрация) вне области
// ответственности сервера синхронизации.
package auth

import (
	"context"
	"errors"
)

//go:generate moq -out verifier_mock.go . Verifier

// Ошибки проверки токенов.
var (
	// ErrInvalidToken токен не прошел проверку
	ErrInvalidToken = errors.New("invalid token")
)

// Verifier проверяет токен устройства и возвращает идентификатор
// пользователя. Инжектируется в сервер как внешний коллаборатор.
type Verifier interface {
	// Verify возвращает userID для валидного токена
	// или ErrInvalidToken для отклоненного.
	Verify(ctx context.Context, token string) (string, error)
}
