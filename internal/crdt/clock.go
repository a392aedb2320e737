package crdt

import (
	"encoding/hex"
	"sync"

	"github.com/google/uuid"
)

// SiteIDSize размер идентификатора реплики в байтах (UUID).
const SiteIDSize = 16

// Clock представляет логические часы одной реплики: монотонно растущий
// счетчик db_version плюс уникальный идентификатор реплики (site_id).
// Часы создаются на каждый экземпляр локальной БД и на каждого
// пользователя на сервере; глобального состояния нет.
type Clock struct {
	counter uint64     // монотонно возрастающий счетчик версий
	siteID  []byte     // уникальный идентификатор реплики
	mu      sync.Mutex // мьютекс для потокобезопасности
}

// NewClock создает новые логические часы с уникальным site_id (UUID).
func NewClock() *Clock {
	id := uuid.New()
	return &Clock{
		counter: 0,
		siteID:  id[:],
	}
}

// NewClockWithSiteID создает часы с заданным идентификатором реплики.
// Используется при восстановлении состояния из хранилища и в тестах.
func NewClockWithSiteID(siteID []byte) *Clock {
	id := make([]byte, len(siteID))
	copy(id, siteID)

	return &Clock{
		counter: 0,
		siteID:  id,
	}
}

// Tick увеличивает счетчик и возвращает новое значение версии.
// Вызывается при каждой локальной записи.
func (c *Clock) Tick() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counter++
	return c.counter
}

// Current возвращает текущее значение счетчика без его изменения.
func (c *Clock) Current() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.counter
}

// Set устанавливает счетчик в заданное значение.
// Используется для восстановления состояния часов после перезапуска.
func (c *Clock) Set(version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counter = version
}

// SiteID возвращает копию идентификатора реплики.
func (c *Clock) SiteID() []byte {
	id := make([]byte, len(c.siteID))
	copy(id, c.siteID)
	return id
}

// SiteIDHex возвращает идентификатор реплики в hex представлении.
func (c *Clock) SiteIDHex() string {
	return hex.EncodeToString(c.siteID)
}
