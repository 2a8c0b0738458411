//go:build integration

package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestRedisStore_Integration(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		url = "redis://localhost:6379/15"
	}

	ctx := context.Background()
	client, err := Connect(ctx, url)
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	defer client.Close()

	store := NewRedisStore(client)
	payload := Payload{SessionID: 12, Username: "alice", UserID: 3}

	if err := store.Save(ctx, "tok-1", payload, time.Minute); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	ttl, err := client.TTL(ctx, "sess:tok-1").Result()
	if err != nil || ttl <= 0 || ttl > time.Minute {
		t.Errorf("expected TTL within a minute, got %v (%v)", ttl, err)
	}

	got, err := store.Load(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *got != payload {
		t.Errorf("Load() = %+v, want %+v", *got, payload)
	}

	if err := store.Delete(ctx, "tok-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, "tok-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}
