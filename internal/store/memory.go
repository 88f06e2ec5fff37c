package store

import (
	"context"
	"log"
	"sync"
	"time"

	"party-rounds/internal/game"
)

type memoryEntry struct {
	fields    map[string]string
	expiresAt time.Time
}

// MemoryStore is the single-process GameStore. Each document is kept in its
// encoded form so every read decodes a private copy.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time

	subsMu sync.RWMutex
	subs   map[string][]Handler

	stop      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore returns a store whose entries expire ttl after their last
// write. A positive sweepEvery starts a background eviction loop.
func NewMemoryStore(ttl, sweepEvery time.Duration) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
		subs:    make(map[string][]Handler),
		stop:    make(chan struct{}),
	}
	if sweepEvery > 0 {
		go s.sweepLoop(sweepEvery)
	}
	return s
}

func (s *MemoryStore) sweepLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.Printf("memory store swept expired games count=%d", n)
			}
		case <-s.stop:
			return
		}
	}
}

// Sweep evicts expired entries and reports how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for code, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, code)
			removed++
		}
	}
	return removed
}

// lookup returns the live entry for code. Callers hold s.mu.
func (s *MemoryStore) lookup(code string) (memoryEntry, bool) {
	entry, ok := s.entries[code]
	if !ok {
		return memoryEntry{}, false
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, code)
		return memoryEntry{}, false
	}
	return entry, true
}

func (s *MemoryStore) put(g *game.Game) error {
	fields, err := encodeGame(g)
	if err != nil {
		return err
	}
	s.entries[g.Code] = memoryEntry{fields: fields, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Save(_ context.Context, g *game.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.Version++
	return s.put(g)
}

func (s *MemoryStore) Create(_ context.Context, g *game.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lookup(g.Code); ok {
		return game.ErrDuplicateCode
	}
	g.Version++
	return s.put(g)
}

func (s *MemoryStore) Get(_ context.Context, code string) (*game.Game, error) {
	s.mu.Lock()
	entry, ok := s.lookup(code)
	s.mu.Unlock()
	if !ok {
		return nil, game.ErrGameNotFound
	}
	return decodeGame(entry.fields)
}

func (s *MemoryStore) Update(_ context.Context, code string, fn UpdateFunc) (*game.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.lookup(code)
	if !ok {
		return nil, game.ErrGameNotFound
	}
	g, err := decodeGame(entry.fields)
	if err != nil {
		return nil, err
	}
	if err := fn(g); err != nil {
		return nil, err
	}
	g.Version++
	if err := s.put(g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *MemoryStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, code)
	return nil
}

func (s *MemoryStore) DeleteIf(_ context.Context, code string, cond func(g *game.Game) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.lookup(code)
	if !ok {
		return false, nil
	}
	g, err := decodeGame(entry.fields)
	if err != nil {
		return false, err
	}
	if !cond(g) {
		return false, nil
	}
	delete(s.entries, code)
	return true, nil
}

func (s *MemoryStore) Exists(_ context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lookup(code)
	return ok, nil
}

// Publish delivers synchronously to local subscribers in publish order.
func (s *MemoryStore) Publish(_ context.Context, code, event string, payload any) error {
	data, err := encodeMessage(event, payload, s.now())
	if err != nil {
		return err
	}
	msg, err := decodeMessage(data)
	if err != nil {
		return err
	}
	s.subsMu.RLock()
	handlers := append([]Handler(nil), s.subs[code]...)
	s.subsMu.RUnlock()
	for _, handler := range handlers {
		handler(msg)
	}
	return nil
}

func (s *MemoryStore) Subscribe(_ context.Context, code string, handler Handler) error {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subs[code] = append(s.subs[code], handler)
	return nil
}

func (s *MemoryStore) Unsubscribe(_ context.Context, code string) error {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	delete(s.subs, code)
	return nil
}

func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.stop) })
	return nil
}
