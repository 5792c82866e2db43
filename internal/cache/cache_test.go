package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-claims/kestrel/internal/domain"
)

func TestLRUCache(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		c := NewLRUCache(10)

		if err := c.Set(ctx, tenantID, "k1", []byte("v1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := c.Get(ctx, tenantID, "k1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "v1" {
			t.Errorf("expected v1, got %s", val)
		}
	})

	t.Run("MissReturnsNil", func(t *testing.T) {
		c := NewLRUCache(10)

		val, err := c.Get(ctx, tenantID, "missing")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for miss, got %s", val)
		}
	})

	t.Run("TTLExpiry", func(t *testing.T) {
		c := NewLRUCache(10)

		c.Set(ctx, tenantID, "fleeting", []byte("x"), 10*time.Millisecond)
		time.Sleep(30 * time.Millisecond)

		val, err := c.Get(ctx, tenantID, "fleeting")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Error("expected expired entry to be gone")
		}
	})

	t.Run("EvictsOldest", func(t *testing.T) {
		c := NewLRUCache(3)

		for i := 0; i < 4; i++ {
			c.Set(ctx, tenantID, fmt.Sprintf("k%d", i), []byte("v"), time.Minute)
		}

		size, capacity := c.Stats()
		if size != 3 || capacity != 3 {
			t.Errorf("expected size 3/3, got %d/%d", size, capacity)
		}

		// k0 was oldest and should be gone
		val, _ := c.Get(ctx, tenantID, "k0")
		if val != nil {
			t.Error("expected oldest entry evicted")
		}
		val, _ = c.Get(ctx, tenantID, "k3")
		if val == nil {
			t.Error("expected newest entry kept")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		c := NewLRUCache(10)

		c.Set(ctx, "tenant-a", "shared-key", []byte("a"), time.Minute)
		c.Set(ctx, "tenant-b", "shared-key", []byte("b"), time.Minute)

		val, _ := c.Get(ctx, "tenant-a", "shared-key")
		if string(val) != "a" {
			t.Errorf("tenant-a sees %s", val)
		}
		val, _ = c.Get(ctx, "tenant-b", "shared-key")
		if string(val) != "b" {
			t.Errorf("tenant-b sees %s", val)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		c := NewLRUCache(10)

		if err := c.Set(ctx, "", "k", []byte("v"), time.Minute); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := c.Get(ctx, "", "k"); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		c := NewLRUCache(10)

		c.Set(ctx, tenantID, "doomed", []byte("v"), time.Minute)
		if err := c.Delete(ctx, tenantID, "doomed"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := c.Get(ctx, tenantID, "doomed")
		if val != nil {
			t.Error("expected deleted entry to be gone")
		}
	})

	t.Run("ReportRoundTrip", func(t *testing.T) {
		c := NewLRUCache(10)

		report := &domain.Report{
			ID:        "rep-77",
			ClaimType: domain.ClaimAuto,
			Routing:   domain.RouteFastTrack,
			RiskFlags: []string{},
			Reasoning: "Routed to fast-track: all mandatory fields present and estimated damage 900.00 is within the fast-track threshold of 25000.",
		}

		if err := c.SetReport(ctx, tenantID, report.ID, report, time.Minute); err != nil {
			t.Fatalf("SetReport failed: %v", err)
		}

		cached, err := c.GetReport(ctx, tenantID, report.ID)
		if err != nil {
			t.Fatalf("GetReport failed: %v", err)
		}
		if cached == nil {
			t.Fatal("expected cached report")
		}
		if cached.Routing != domain.RouteFastTrack || cached.ClaimType != domain.ClaimAuto {
			t.Errorf("report did not round-trip: %+v", cached)
		}
	})

	t.Run("GetReportMiss", func(t *testing.T) {
		c := NewLRUCache(10)

		cached, err := c.GetReport(ctx, tenantID, "nope")
		if err != nil {
			t.Fatalf("GetReport failed: %v", err)
		}
		if cached != nil {
			t.Error("expected nil report on miss")
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		c := NewLRUCache(10)

		for want := int64(1); want <= 3; want++ {
			got, err := c.IncrementCounter(ctx, tenantID, "policy:POL-1", time.Minute)
			if err != nil {
				t.Fatalf("IncrementCounter failed: %v", err)
			}
			if got != want {
				t.Errorf("expected count %d, got %d", want, got)
			}
		}
	})

	t.Run("CounterWindowResets", func(t *testing.T) {
		c := NewLRUCache(10)

		c.IncrementCounter(ctx, tenantID, "policy:POL-2", 10*time.Millisecond)
		time.Sleep(30 * time.Millisecond)

		got, err := c.IncrementCounter(ctx, tenantID, "policy:POL-2", time.Minute)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if got != 1 {
			t.Errorf("expected counter reset to 1, got %d", got)
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer c.Close()

		if _, ok := c.(*LRUCache); !ok {
			t.Errorf("expected LRUCache, got %T", c)
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		_, err := New(domain.CacheConfig{Type: "memcached"})
		if err == nil {
			t.Error("expected error for unsupported cache type")
		}
	})
}
