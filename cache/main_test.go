package cache

import (
	"testing"
	"time"
)

func TestMemoryGetSet(t *testing.T) {
	c := NewMemory()

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss on empty cache")
	}

	c.Set("k", "v1", time.Minute)
	if got, ok := c.Get("k"); !ok || got != "v1" {
		t.Errorf("expected v1, got %q (%v)", got, ok)
	}

	c.Set("k", "v2", time.Minute)
	if got, _ := c.Get("k"); got != "v2" {
		t.Errorf("expected overwrite to v2, got %q", got)
	}
}

func TestMemoryExpiry(t *testing.T) {
	c := NewMemory()
	base := time.Date(2021, time.March, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	c.Set("spot", "100", 15*time.Minute)
	c.Set("forever", "1", 0)

	c.now = func() time.Time { return base.Add(14 * time.Minute) }
	if _, ok := c.Get("spot"); !ok {
		t.Error("entry expired before its ttl")
	}

	c.now = func() time.Time { return base.Add(16 * time.Minute) }
	if _, ok := c.Get("spot"); ok {
		t.Error("entry survived past its ttl")
	}
	if got, ok := c.Get("forever"); !ok || got != "1" {
		t.Error("zero ttl entry must never expire")
	}
}
