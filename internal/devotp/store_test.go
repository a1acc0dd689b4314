package devotp

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_PutGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	expiresAt := time.Now().UTC().Add(5 * time.Minute)

	store.Put(ctx, "req-1", "123456", expiresAt)

	code, ok := store.Get(ctx, "req-1")
	if !ok {
		t.Fatal("Get should return code after Put")
	}
	if code != "123456" {
		t.Errorf("code = %q, want %q", code, "123456")
	}
}

func TestMemoryStore_Get_Missing(t *testing.T) {
	store := NewMemoryStore()
	code, ok := store.Get(context.Background(), "nonexistent")
	if ok {
		t.Error("Get should return false when code is missing")
	}
	if code != "" {
		t.Errorf("code = %q, want empty string", code)
	}
}

func TestMemoryStore_Get_Expired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	store.Put(ctx, "req-1", "123456", time.Now().UTC().Add(-time.Minute))

	if _, ok := store.Get(ctx, "req-1"); ok {
		t.Error("Get should return false when code is expired")
	}
	// entry is deleted on first expired read
	if _, ok := store.Get(ctx, "req-1"); ok {
		t.Error("Get should return false after cleanup")
	}
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	expiresAt := time.Now().UTC().Add(5 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			requestID := "req-" + string(rune('0'+id))
			store.Put(ctx, requestID, "123456", expiresAt)
			store.Get(ctx, requestID)
		}(i)
	}
	wg.Wait()
}

func TestMemoryStore_MultipleCodes(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	expiresAt := time.Now().UTC().Add(5 * time.Minute)

	store.Put(ctx, "req-1", "111111", expiresAt)
	store.Put(ctx, "req-2", "222222", expiresAt)

	if code, ok := store.Get(ctx, "req-1"); !ok || code != "111111" {
		t.Errorf("req-1: ok=%v, code=%q", ok, code)
	}
	if code, ok := store.Get(ctx, "req-2"); !ok || code != "222222" {
		t.Errorf("req-2: ok=%v, code=%q", ok, code)
	}
}
