package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryGetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("kg", time.Minute)

	if _, err := c.Get(ctx, "missing"); !IsNotFound(err) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}

	if err := c.Set(ctx, "cid:abc", `{"name":"demo"}`, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := c.Get(ctx, "cid:abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != `{"name":"demo"}` {
		t.Errorf("Get = %q", got)
	}

	if err := c.Delete(ctx, "cid:abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, "cid:abc"); !IsNotFound(err) {
		t.Errorf("Get after Delete = %v, want ErrNotFound", err)
	}
}

func TestMemoryTTLExpires(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("", time.Minute)

	if err := c.Set(ctx, "k", "v", 10*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, err := c.Get(ctx, "k"); !IsNotFound(err) {
		t.Errorf("Get after TTL = %v, want ErrNotFound", err)
	}
}

func TestNewDefaultsToMemory(t *testing.T) {
	c, err := New(Config{Kind: "memory"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
