package models

import "bytes"

// Change представляет одно колоночное изменение с CRDT метаданными.
// Это единица синхронизации: локальная запись порождает Change,
// входящий Change применяется к локальному состоянию по правилу
// доминирования (см. Dominates).
type Change struct {
	Table      string // имя таблицы
	PK         []byte // непрозрачный ключ строки
	CID        string // идентификатор колонки
	Val        any    // значение колонки
	ColVersion uint64 // логические часы колонки, инкрементируются на устройстве-источнике
	DBVersion  uint64 // монотонный счетчик версий устройства-источника
	SiteID     []byte // глобально уникальный идентификатор реплики-источника
	CL         uint64 // causal length строки (1 = строка жива)
	Seq        uint64 // порядок внутри одной транзакции
}

// Dominates определяет, побеждает ли изменение c запись с часами
// (colVersion, siteID) по правилу last-writer-wins:
//  1. Большая ColVersion выигрывает.
//  2. При равных ColVersion выигрывает лексикографически больший SiteID.
//
// Равная пара (ColVersion, SiteID) не доминирует: применение изменения
// с идентичными часами определено как no-op. При корректной уникальности
// site_id такая пара означает уже примененное изменение.
func (c *Change) Dominates(colVersion uint64, siteID []byte) bool {
	if c.ColVersion != colVersion {
		return c.ColVersion > colVersion
	}
	return bytes.Compare(c.SiteID, siteID) > 0
}

// Clone создает глубокую копию изменения.
// Val копируется по значению: после десериализации это всегда
// скаляр или неизменяемое JSON значение.
func (c *Change) Clone() *Change {
	pk := make([]byte, len(c.PK))
	copy(pk, c.PK)

	siteID := make([]byte, len(c.SiteID))
	copy(siteID, c.SiteID)

	return &Change{
		Table:      c.Table,
		PK:         pk,
		CID:        c.CID,
		Val:        c.Val,
		ColVersion: c.ColVersion,
		DBVersion:  c.DBVersion,
		SiteID:     siteID,
		CL:         c.CL,
		Seq:        c.Seq,
	}
}
