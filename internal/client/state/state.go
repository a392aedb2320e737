// Package state определяет персистентное состояние клиента синхронизации:
// указатели lastPushedVersion/lastPulledVersion и идентификатор устройства.
// Ядро синхронизации не владеет этим хранилищем — это внешний
// коллаборатор с непрозрачным get/set контрактом.
package state

import "context"

//go:generate moq -out storage_mock.go . Storage

// Storage хранит указатели синхронизации между перезапусками.
// Указатели продвигаются только после подтверждения сервером, поэтому
// переподключение возобновляет синхронизацию, а не начинает с нуля.
type Storage interface {
	// LastPushedVersion возвращает последнюю подтвержденную сервером
	// локальную версию (0, если push еще не выполнялся).
	LastPushedVersion(ctx context.Context) (uint64, error)

	// SaveLastPushedVersion сохраняет последнюю подтвержденную версию.
	SaveLastPushedVersion(ctx context.Context, version uint64) error

	// LastPulledVersion возвращает последнюю полученную серверную версию
	// (0, если pull еще не выполнялся).
	LastPulledVersion(ctx context.Context) (uint64, error)

	// SaveLastPulledVersion сохраняет последнюю полученную серверную версию.
	SaveLastPulledVersion(ctx context.Context, version uint64) error

	// DeviceID возвращает сохраненный идентификатор устройства
	// ("" если устройство еще не получало идентификатор).
	DeviceID(ctx context.Context) (string, error)

	// SaveDeviceID сохраняет идентификатор устройства.
	SaveDeviceID(ctx context.Context, deviceID string) error
}
