package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		c := NewMemoryCache(100, time.Minute)
		if err := c.Set(ctx, "k1", []byte("v1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := c.Get(ctx, "k1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "v1" {
			t.Errorf("expected 'v1', got '%s'", val)
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		c := NewMemoryCache(100, time.Minute)
		val, err := c.Get(ctx, "missing")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil on miss, got %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		c := NewMemoryCache(100, time.Minute)
		c.Set(ctx, "k1", []byte("v1"), time.Minute)
		if err := c.Delete(ctx, "k1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := c.Get(ctx, "k1"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		c := NewMemoryCache(100, time.Minute)
		c.Set(ctx, "short", []byte("v"), 20*time.Millisecond)

		time.Sleep(50 * time.Millisecond)

		if val, _ := c.Get(ctx, "short"); val != nil {
			t.Error("expected expired entry to be gone")
		}
	})

	t.Run("CapacityBound", func(t *testing.T) {
		c := NewMemoryCache(3, time.Minute)
		for i := range 5 {
			c.Set(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Minute)
		}

		size, capacity := c.Stats()
		if size != 3 || capacity != 3 {
			t.Errorf("expected size 3 of 3, got %d of %d", size, capacity)
		}

		// Overwriting an existing key is always allowed
		if err := c.Set(ctx, "k0", []byte("v2"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if val, _ := c.Get(ctx, "k0"); string(val) != "v2" {
			t.Errorf("expected overwritten value, got '%s'", val)
		}
	})

	t.Run("ExpiredEntriesFreeRoom", func(t *testing.T) {
		c := NewMemoryCache(2, time.Minute)
		c.Set(ctx, "a", []byte("1"), 10*time.Millisecond)
		c.Set(ctx, "b", []byte("2"), 10*time.Millisecond)

		time.Sleep(30 * time.Millisecond)

		c.Set(ctx, "c", []byte("3"), time.Minute)
		if val, _ := c.Get(ctx, "c"); string(val) != "3" {
			t.Error("expected write to succeed after expired entries were purged")
		}
	})

	t.Run("Close", func(t *testing.T) {
		c := NewMemoryCache(10, time.Minute)
		c.Set(ctx, "k", []byte("v"), time.Minute)
		if err := c.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
		if size, _ := c.Stats(); size != 0 {
			t.Errorf("expected empty cache after close, got %d", size)
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 10, LocalTTL: 60})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()

		if _, ok := c.(*MemoryCache); !ok {
			t.Errorf("expected *MemoryCache, got %T", c)
		}
		if err := c.Ping(context.Background()); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("NoneType", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "none"})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if c != nil {
			t.Errorf("expected nil cache, got %T", c)
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
