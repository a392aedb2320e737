// Package store определяет долговременный журнал изменений на стороне
// сервера: упорядоченный по версиям append-only лог на пользователя.
package store

import (
	"context"
	"errors"

	"github.com/cobrain-app/cobrain-sync/internal/models"
)

//go:generate moq -out store_mock.go . ChangeStore

// Ошибки change store.
var (
	// ErrEmptyUserID попытка обращения без идентификатора пользователя
	ErrEmptyUserID = errors.New("empty user id")
)

// StoredChange изменение, принятое сервером: Change плюс присвоенная
// сервером версия, идентификатор пользователя и устройства-источника.
// Неизменяемо после создания.
type StoredChange struct {
	Change        *models.Change // само изменение
	UserID        string         // владелец
	DeviceID      string         // устройство, приславшее изменение
	ServerVersion uint64         // строго возрастающая версия внутри пользователя
}

// ChangeStore определяет интерфейс журнала изменений.
// Реализации обязаны быть безопасными для конкурентных вызовов;
// сериализацию записи внутри одного пользователя обеспечивает сервер.
type ChangeStore interface {
	// Append присваивает изменениям следующие версии пользователя и
	// сохраняет их. Версии строго возрастают, без пропусков.
	// После успешного возврата изменения долговременны.
	Append(ctx context.Context, userID, deviceID string, changes []*models.Change) ([]*StoredChange, error)

	// GetSince возвращает изменения пользователя с serverVersion > since,
	// по возрастанию версии, без пропусков.
	GetSince(ctx context.Context, userID string, since uint64) ([]*StoredChange, error)

	// LatestVersion возвращает версию последнего изменения пользователя
	// (0, если изменений еще нет).
	LatestVersion(ctx context.Context, userID string) (uint64, error)
}
