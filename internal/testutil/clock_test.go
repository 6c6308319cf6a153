package testutil

import (
	"testing"
	"time"
)

func TestFixedClock_Frozen(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewFixedClock(base)

	if got := c.Now(); !got.Equal(base) {
		t.Errorf("Now() = %v, want %v", got, base)
	}
	if got := c.Now(); !got.Equal(base) {
		t.Errorf("second Now() = %v, want %v (clock must not advance on its own)", got, base)
	}
}

func TestFixedClock_Advance(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewFixedClock(base)

	got := c.Advance(90 * time.Second)
	want := base.Add(90 * time.Second)
	if !got.Equal(want) {
		t.Errorf("Advance() = %v, want %v", got, want)
	}
	if now := c.Now(); !now.Equal(want) {
		t.Errorf("Now() after Advance = %v, want %v", now, want)
	}
}

func TestFixedClock_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	local := time.Date(2024, 3, 1, 14, 0, 0, 0, loc)
	c := NewFixedClock(local)

	got := c.Now()
	if got.Location() != time.UTC {
		t.Errorf("Now() location = %v, want UTC", got.Location())
	}
	if !got.Equal(local) {
		t.Errorf("Now() = %v, not the same instant as %v", got, local)
	}
}
