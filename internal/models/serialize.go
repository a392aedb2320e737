package models

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/cobrain-app/cobrain-sync/pkg/api"
)

// SerializeChange кодирует изменение в транспортный вид:
// pk и site_id как base64, счетчики как десятичные строки.
func SerializeChange(c *Change) api.SerializedChange {
	return api.SerializedChange{
		Table:      c.Table,
		PK:         base64.StdEncoding.EncodeToString(c.PK),
		CID:        c.CID,
		Val:        c.Val,
		ColVersion: strconv.FormatUint(c.ColVersion, 10),
		DBVersion:  strconv.FormatUint(c.DBVersion, 10),
		SiteID:     base64.StdEncoding.EncodeToString(c.SiteID),
		CL:         strconv.FormatUint(c.CL, 10),
		Seq:        strconv.FormatUint(c.Seq, 10),
	}
}

// DeserializeChange декодирует транспортный вид обратно в Change.
// SerializeChange и DeserializeChange — точные обратные операции.
func DeserializeChange(sc api.SerializedChange) (*Change, error) {
	pk, err := base64.StdEncoding.DecodeString(sc.PK)
	if err != nil {
		return nil, fmt.Errorf("failed to decode pk: %w", err)
	}

	siteID, err := base64.StdEncoding.DecodeString(sc.SiteID)
	if err != nil {
		return nil, fmt.Errorf("failed to decode site_id: %w", err)
	}

	colVersion, err := strconv.ParseUint(sc.ColVersion, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse col_version: %w", err)
	}

	dbVersion, err := strconv.ParseUint(sc.DBVersion, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse db_version: %w", err)
	}

	cl, err := strconv.ParseUint(sc.CL, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cl: %w", err)
	}

	seq, err := strconv.ParseUint(sc.Seq, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse seq: %w", err)
	}

	return &Change{
		Table:      sc.Table,
		PK:         pk,
		CID:        sc.CID,
		Val:        sc.Val,
		ColVersion: colVersion,
		DBVersion:  dbVersion,
		SiteID:     siteID,
		CL:         cl,
		Seq:        seq,
	}, nil
}

// SerializeChanges кодирует пакет изменений, сохраняя порядок.
func SerializeChanges(changes []*Change) []api.SerializedChange {
	result := make([]api.SerializedChange, 0, len(changes))
	for _, c := range changes {
		result = append(result, SerializeChange(c))
	}
	return result
}

// DeserializeChanges декодирует пакет изменений, сохраняя порядок.
// Ошибка декодирования любого изменения прерывает весь пакет:
// частично разобранный push применять нельзя.
func DeserializeChanges(serialized []api.SerializedChange) ([]*Change, error) {
	result := make([]*Change, 0, len(serialized))
	for i, sc := range serialized {
		c, err := DeserializeChange(sc)
		if err != nil {
			return nil, fmt.Errorf("change %d: %w", i, err)
		}
		result = append(result, c)
	}
	return result, nil
}
