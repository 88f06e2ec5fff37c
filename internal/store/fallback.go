package store

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"syscall"

	"party-rounds/internal/game"

	"github.com/redis/go-redis/v9"
)

// FallbackStore serves from Redis until Redis stops answering, then switches
// to the in-memory store for the rest of the process lifetime.
type FallbackStore struct {
	primary *RedisStore
	memory  *MemoryStore

	mu       sync.RWMutex
	degraded bool
	handlers map[string][]Handler
}

// NewFallbackStore pings primary and starts degraded if it does not answer.
func NewFallbackStore(ctx context.Context, primary *RedisStore, memory *MemoryStore) *FallbackStore {
	f := &FallbackStore{
		primary:  primary,
		memory:   memory,
		handlers: make(map[string][]Handler),
	}
	if err := primary.Ping(ctx); err != nil {
		log.Printf("redis unreachable, using in-memory store error=%v", err)
		f.degraded = true
	}
	return f
}

// Degraded reports whether the in-memory store is serving.
func (f *FallbackStore) Degraded() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.degraded
}

func (f *FallbackStore) backend() GameStore {
	if f.Degraded() {
		return f.memory
	}
	return f.primary
}

// observe switches to memory when err shows Redis is unreachable. It reports
// whether the caller should retry the operation against memory.
func (f *FallbackStore) observe(err error) bool {
	if !unavailable(err) {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.degraded {
		return true
	}
	f.degraded = true
	log.Printf("redis connection lost, falling back to in-memory store error=%v", err)
	for code, handlers := range f.handlers {
		for _, handler := range handlers {
			_ = f.memory.Subscribe(context.Background(), code, handler)
		}
	}
	return true
}

func unavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, redis.Nil) || errors.Is(err, redis.TxFailedErr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var domainErr *game.Error
	if errors.As(err, &domainErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, redis.ErrClosed) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET)
}

func (f *FallbackStore) Save(ctx context.Context, g *game.Game) error {
	err := f.backend().Save(ctx, g)
	if f.observe(err) {
		return f.memory.Save(ctx, g)
	}
	return err
}

func (f *FallbackStore) Create(ctx context.Context, g *game.Game) error {
	err := f.backend().Create(ctx, g)
	if f.observe(err) {
		return f.memory.Create(ctx, g)
	}
	return err
}

func (f *FallbackStore) Get(ctx context.Context, code string) (*game.Game, error) {
	g, err := f.backend().Get(ctx, code)
	if f.observe(err) {
		return f.memory.Get(ctx, code)
	}
	return g, err
}

func (f *FallbackStore) Update(ctx context.Context, code string, fn UpdateFunc) (*game.Game, error) {
	g, err := f.backend().Update(ctx, code, fn)
	if f.observe(err) {
		return f.memory.Update(ctx, code, fn)
	}
	return g, err
}

func (f *FallbackStore) Delete(ctx context.Context, code string) error {
	err := f.backend().Delete(ctx, code)
	if f.observe(err) {
		return f.memory.Delete(ctx, code)
	}
	return err
}

func (f *FallbackStore) DeleteIf(ctx context.Context, code string, cond func(g *game.Game) bool) (bool, error) {
	ok, err := f.backend().DeleteIf(ctx, code, cond)
	if f.observe(err) {
		return f.memory.DeleteIf(ctx, code, cond)
	}
	return ok, err
}

func (f *FallbackStore) Exists(ctx context.Context, code string) (bool, error) {
	ok, err := f.backend().Exists(ctx, code)
	if f.observe(err) {
		return f.memory.Exists(ctx, code)
	}
	return ok, err
}

func (f *FallbackStore) Publish(ctx context.Context, code, event string, payload any) error {
	err := f.backend().Publish(ctx, code, event, payload)
	if f.observe(err) {
		return f.memory.Publish(ctx, code, event, payload)
	}
	return err
}

func (f *FallbackStore) Subscribe(ctx context.Context, code string, handler Handler) error {
	f.mu.Lock()
	f.handlers[code] = append(f.handlers[code], handler)
	f.mu.Unlock()
	err := f.backend().Subscribe(ctx, code, handler)
	if f.observe(err) {
		// observe already re-registered every recorded handler on memory.
		return nil
	}
	return err
}

func (f *FallbackStore) Unsubscribe(ctx context.Context, code string) error {
	f.mu.Lock()
	delete(f.handlers, code)
	f.mu.Unlock()
	err := f.backend().Unsubscribe(ctx, code)
	if f.observe(err) {
		return f.memory.Unsubscribe(ctx, code)
	}
	return err
}

func (f *FallbackStore) Close() error {
	_ = f.memory.Close()
	return f.primary.Close()
}

// Open returns the GameStore for url. An empty url selects the in-memory store.
func Open(ctx context.Context, url string) (GameStore, error) {
	memory := NewMemoryStore(DefaultTTL, SweepInterval)
	if url == "" {
		log.Printf("no redis url configured, using in-memory store")
		return memory, nil
	}
	primary, err := NewRedisStore(url, DefaultTTL)
	if err != nil {
		_ = memory.Close()
		return nil, err
	}
	return NewFallbackStore(ctx, primary, memory), nil
}

// Backend names the storage currently serving s.
func Backend(s GameStore) string {
	switch v := s.(type) {
	case *FallbackStore:
		if v.Degraded() {
			return "memory-fallback"
		}
		return "redis"
	case *RedisStore:
		return "redis"
	case *MemoryStore:
		return "memory"
	}
	return "unknown"
}
