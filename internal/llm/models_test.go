package llm

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestModelCacheTTL(t *testing.T) {
	calls := 0
	cache := NewModelCache(30*time.Second, func(ctx context.Context) ([]string, error) {
		calls++
		return []string{"model-a", "model-b"}, nil
	})
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	models, err := cache.Get(context.Background(), false)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(models, []string{"model-a", "model-b"}) {
		t.Fatalf("unexpected models: %v", models)
	}
	if calls != 1 {
		t.Fatalf("expected one fetch, got %d", calls)
	}

	// Within TTL the cache answers without refetching.
	clock = clock.Add(10 * time.Second)
	if _, err := cache.Get(context.Background(), false); err != nil {
		t.Fatalf("get: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected cached answer, fetch ran %d times", calls)
	}

	// Past TTL it refetches.
	clock = clock.Add(31 * time.Second)
	if _, err := cache.Get(context.Background(), false); err != nil {
		t.Fatalf("get: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected refetch after ttl, got %d", calls)
	}
}

func TestModelCacheForceRefresh(t *testing.T) {
	calls := 0
	cache := NewModelCache(time.Hour, func(ctx context.Context) ([]string, error) {
		calls++
		return []string{"m"}, nil
	})
	if _, err := cache.Get(context.Background(), false); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := cache.Get(context.Background(), true); err != nil {
		t.Fatalf("get: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected force to bypass cache, fetch ran %d times", calls)
	}
}

func TestModelCacheKeepsStaleOnFailure(t *testing.T) {
	healthy := true
	cache := NewModelCache(time.Nanosecond, func(ctx context.Context) ([]string, error) {
		if !healthy {
			return nil, errors.New("backend down")
		}
		return []string{"m"}, nil
	})

	if _, err := cache.Get(context.Background(), false); err != nil {
		t.Fatalf("get: %v", err)
	}

	healthy = false
	models, err := cache.Get(context.Background(), true)
	if err == nil {
		t.Fatal("expected fetch error surfaced")
	}
	if !reflect.DeepEqual(models, []string{"m"}) {
		t.Fatalf("expected stale models kept, got %v", models)
	}
}
