package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"party-rounds/internal/game"

	"github.com/redis/go-redis/v9"
)

const maxUpdateAttempts = 16

// RedisStore keeps each game as a hash at game:<code> and fans events out
// over the channel of the same name.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time

	mu       sync.Mutex
	pubsub   *redis.PubSub
	handlers map[string][]Handler
}

// NewRedisStore parses a redis:// or rediss:// URL. It does not dial.
func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStoreWithClient(redis.NewClient(opts), ttl), nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:   client,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
		handlers: make(map[string][]Handler),
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) write(ctx context.Context, pipe redis.Pipeliner, g *game.Game) error {
	fields, err := encodeGame(g)
	if err != nil {
		return err
	}
	key := gameKey(g.Code)
	pipe.HSet(ctx, key, fieldArgs(fields)...)
	pipe.Expire(ctx, key, s.ttl)
	return nil
}

func (s *RedisStore) Save(ctx context.Context, g *game.Game) error {
	g.Version++
	var encodeErr error
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		encodeErr = s.write(ctx, pipe, g)
		return encodeErr
	})
	if encodeErr != nil {
		return encodeErr
	}
	return err
}

func (s *RedisStore) Create(ctx context.Context, g *game.Game) error {
	key := gameKey(g.Code)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return game.ErrDuplicateCode
		}
		g.Version = 1
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.write(ctx, pipe, g)
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return game.ErrDuplicateCode
	}
	return err
}

func (s *RedisStore) Get(ctx context.Context, code string) (*game.Game, error) {
	fields, err := s.client.HGetAll(ctx, gameKey(code)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, game.ErrGameNotFound
	}
	return decodeGame(fields)
}

// Update is an optimistic compare-and-swap: WATCH the key, read, mutate,
// then MULTI/EXEC. A concurrent writer aborts the EXEC and the loop retries.
func (s *RedisStore) Update(ctx context.Context, code string, fn UpdateFunc) (*game.Game, error) {
	key := gameKey(code)
	var updated *game.Game
	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return game.ErrGameNotFound
		}
		g, err := decodeGame(fields)
		if err != nil {
			return err
		}
		if err := fn(g); err != nil {
			return err
		}
		g.Version++
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.write(ctx, pipe, g)
		})
		if err != nil {
			return err
		}
		updated = g
		return nil
	}
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
	}
	log.Printf("redis update contention game_code=%s attempts=%d", code, maxUpdateAttempts)
	return nil, game.Unavailable("too much contention updating game")
}

func (s *RedisStore) Delete(ctx context.Context, code string) error {
	return s.client.Del(ctx, gameKey(code)).Err()
}

func (s *RedisStore) DeleteIf(ctx context.Context, code string, cond func(g *game.Game) bool) (bool, error) {
	key := gameKey(code)
	var deleted bool
	txf := func(tx *redis.Tx) error {
		deleted = false
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return nil
		}
		g, err := decodeGame(fields)
		if err != nil {
			return err
		}
		if !cond(g) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return pipe.Del(ctx, key).Err()
		})
		if err != nil {
			return err
		}
		deleted = true
		return nil
	}
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return deleted, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return false, err
		}
	}
	return false, game.Unavailable("too much contention deleting game")
}

func (s *RedisStore) Exists(ctx context.Context, code string) (bool, error) {
	n, err := s.client.Exists(ctx, gameKey(code)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisStore) Publish(ctx context.Context, code, event string, payload any) error {
	data, err := encodeMessage(event, payload, s.now())
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, channelName(code), data).Err()
}

// Subscribe shares one PubSub connection across all codes.
func (s *RedisStore) Subscribe(ctx context.Context, code string, handler Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	channel := channelName(code)
	if _, ok := s.handlers[channel]; !ok {
		if s.pubsub == nil {
			ps := s.client.Subscribe(ctx, channel)
			if _, err := ps.Receive(ctx); err != nil {
				_ = ps.Close()
				return err
			}
			s.pubsub = ps
			go s.listen(ps)
		} else if err := s.pubsub.Subscribe(ctx, channel); err != nil {
			return err
		}
	}
	s.handlers[channel] = append(s.handlers[channel], handler)
	return nil
}

func (s *RedisStore) Unsubscribe(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	channel := channelName(code)
	if _, ok := s.handlers[channel]; !ok {
		return nil
	}
	delete(s.handlers, channel)
	if s.pubsub == nil {
		return nil
	}
	return s.pubsub.Unsubscribe(ctx, channel)
}

func (s *RedisStore) listen(ps *redis.PubSub) {
	for msg := range ps.Channel() {
		decoded, err := decodeMessage([]byte(msg.Payload))
		if err != nil {
			log.Printf("redis message decode failed channel=%s error=%v", msg.Channel, err)
			continue
		}
		s.mu.Lock()
		handlers := append([]Handler(nil), s.handlers[msg.Channel]...)
		s.mu.Unlock()
		for _, handler := range handlers {
			handler(decoded)
		}
	}
}

func (s *RedisStore) Close() error {
	s.mu.Lock()
	ps := s.pubsub
	s.pubsub = nil
	s.mu.Unlock()
	if ps != nil {
		_ = ps.Close()
	}
	return s.client.Close()
}
