package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestField_ZeroValueIsUnset(t *testing.T) {
	var f Field[float64]
	assert.Equal(t, FieldUnset, f.State())

	var u CellUpdate
	assert.True(t, u.Empty())
}

func TestField_States(t *testing.T) {
	assert.Equal(t, FieldUnset, Keep[string]().State())
	assert.Equal(t, FieldClear, Clear[string]().State())

	f := Set(10.5)
	assert.Equal(t, FieldSet, f.State())
	assert.Equal(t, 10.5, f.Value())
}

func TestFieldState_String(t *testing.T) {
	assert.Equal(t, "unset", FieldUnset.String())
	assert.Equal(t, "clear", FieldClear.String())
	assert.Equal(t, "set", FieldSet.String())
}

func TestUpdateTarget_Variants(t *testing.T) {
	byID := TargetValueID(42)
	assert.True(t, byID.Valid())
	id, ok := byID.ByValueID()
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
	_, ok = byID.ByCellKey()
	assert.False(t, ok)

	key := CellKey{
		BatchID:   uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		TenantID:  DefaultTenant,
		SeriesID:  uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		ValidTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	byKey := TargetCell(key)
	assert.True(t, byKey.Valid())
	got, ok := byKey.ByCellKey()
	assert.True(t, ok)
	assert.True(t, got.Equal(key))
	_, ok = byKey.ByValueID()
	assert.False(t, ok)

	var empty UpdateTarget
	assert.False(t, empty.Valid())
}

func TestCellUpdate_Empty(t *testing.T) {
	u := CellUpdate{Target: TargetValueID(1)}
	assert.True(t, u.Empty())

	u.Tags = Clear[[]string]()
	assert.False(t, u.Empty())
}
