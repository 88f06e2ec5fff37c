package store

import (
	"context"
	"errors"
	"testing"

	"party-rounds/internal/game"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestFallbackStoreStartsDegradedWhenRedisUnreachable(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	primary := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1}), DefaultTTL)
	f := NewFallbackStore(ctx, primary, NewMemoryStore(DefaultTTL, 0))
	t.Cleanup(func() { _ = f.Close() })

	if !f.Degraded() {
		t.Fatalf("expected degraded store when redis is down")
	}
	if Backend(f) != "memory-fallback" {
		t.Fatalf("unexpected backend %s", Backend(f))
	}
	if err := f.Create(ctx, newTestGame("AAAAAA")); err != nil {
		t.Fatalf("create on fallback: %v", err)
	}
	if _, err := f.Get(ctx, "AAAAAA"); err != nil {
		t.Fatalf("get on fallback: %v", err)
	}
}

func TestFallbackStoreSwitchesOnConnectionLoss(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	primary := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), DefaultTTL)
	f := NewFallbackStore(ctx, primary, NewMemoryStore(DefaultTTL, 0))
	t.Cleanup(func() { _ = f.Close() })

	if f.Degraded() {
		t.Fatalf("expected redis to serve initially")
	}
	var events []string
	if err := f.Subscribe(ctx, "BBBBBB", func(msg Message) { events = append(events, msg.Event) }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	mr.Close()

	if err := f.Create(ctx, newTestGame("BBBBBB")); err != nil {
		t.Fatalf("expected create to succeed on fallback, got %v", err)
	}
	if !f.Degraded() {
		t.Fatalf("expected store degraded after connection loss")
	}
	if _, err := f.Get(ctx, "BBBBBB"); err != nil {
		t.Fatalf("get after fallback: %v", err)
	}
	if _, err := f.Get(ctx, "MISSNG"); !errors.Is(err, game.ErrGameNotFound) {
		t.Fatalf("expected domain not found from fallback, got %v", err)
	}

	if err := f.Publish(ctx, "BBBBBB", "playerJoined", nil); err != nil {
		t.Fatalf("publish after fallback: %v", err)
	}
	if len(events) != 1 || events[0] != "playerJoined" {
		t.Fatalf("expected subscription carried over to memory, got %v", events)
	}
}

func TestFallbackStoreDomainErrorsDoNotDegrade(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	primary := NewRedisStoreWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), DefaultTTL)
	f := NewFallbackStore(ctx, primary, NewMemoryStore(DefaultTTL, 0))
	t.Cleanup(func() { _ = f.Close() })

	if _, err := f.Get(ctx, "NOPE00"); !errors.Is(err, game.ErrGameNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	_ = f.Create(ctx, newTestGame("CCCCCC"))
	if err := f.Create(ctx, newTestGame("CCCCCC")); !errors.Is(err, game.ErrDuplicateCode) {
		t.Fatalf("expected duplicate code, got %v", err)
	}
	if f.Degraded() {
		t.Fatalf("domain errors must not trigger fallback")
	}
}

func TestOpenWithoutURLUsesMemory(t *testing.T) {
	s, err := Open(context.Background(), "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if Backend(s) != "memory" {
		t.Fatalf("expected memory backend, got %s", Backend(s))
	}
}
