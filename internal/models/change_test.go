package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChange_Dominates(t *testing.T) {
	tests := []struct {
		name       string
		change     *Change
		colVersion uint64
		siteID     []byte
		expected   bool
	}{
		{
			name:       "higher col_version wins",
			change:     &Change{ColVersion: 5, SiteID: []byte{0x01}},
			colVersion: 3,
			siteID:     []byte{0xff},
			expected:   true,
		},
		{
			name:       "lower col_version loses",
			change:     &Change{ColVersion: 3, SiteID: []byte{0xff}},
			colVersion: 5,
			siteID:     []byte{0x01},
			expected:   false,
		},
		{
			name:       "equal col_version, greater site_id wins",
			change:     &Change{ColVersion: 5, SiteID: []byte{0xbb}},
			colVersion: 5,
			siteID:     []byte{0xaa},
			expected:   true,
		},
		{
			name:       "equal col_version, smaller site_id loses",
			change:     &Change{ColVersion: 5, SiteID: []byte{0xaa}},
			colVersion: 5,
			siteID:     []byte{0xbb},
			expected:   false,
		},
		{
			name:       "identical clock does not dominate",
			change:     &Change{ColVersion: 5, SiteID: []byte{0xaa}},
			colVersion: 5,
			siteID:     []byte{0xaa},
			expected:   false,
		},
		{
			name:       "site_id compared lexicographically by bytes",
			change:     &Change{ColVersion: 1, SiteID: []byte{0x01, 0xff}},
			colVersion: 1,
			siteID:     []byte{0x02, 0x00},
			expected:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.change.Dominates(tt.colVersion, tt.siteID)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestChange_Dominates_Antisymmetric(t *testing.T) {
	// Для разных часов ровно одна сторона доминирует
	a := &Change{ColVersion: 7, SiteID: []byte{0x10}}
	b := &Change{ColVersion: 7, SiteID: []byte{0x20}}

	assert.True(t, b.Dominates(a.ColVersion, a.SiteID))
	assert.False(t, a.Dominates(b.ColVersion, b.SiteID))
}

func TestChange_Clone(t *testing.T) {
	original := &Change{
		Table:      "notes",
		PK:         []byte("note-1"),
		CID:        "title",
		Val:        "hello",
		ColVersion: 3,
		DBVersion:  10,
		SiteID:     []byte{0x01, 0x02},
		CL:         1,
		Seq:        2,
	}

	clone := original.Clone()
	require.Equal(t, original, clone)

	// Мутация копии не затрагивает оригинал
	clone.PK[0] = 'x'
	clone.SiteID[0] = 0xff

	assert.Equal(t, []byte("note-1"), original.PK)
	assert.Equal(t, []byte{0x01, 0x02}, original.SiteID)
}
