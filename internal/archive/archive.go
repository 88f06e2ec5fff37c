package archive

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"party-rounds/internal/db"
	"party-rounds/internal/game"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultBuffer = 256
	writeTimeout  = 5 * time.Second

	pgUniqueViolation = "23505"
)

// sink writes one archive row.
type sink interface {
	insert(ctx context.Context, row any) error
}

type gormSink struct {
	conn *gorm.DB
}

// session scopes a write; a result for an already archived game instance is skipped.
func (s gormSink) session(ctx context.Context, row any) *gorm.DB {
	tx := s.conn.WithContext(ctx)
	if _, ok := row.(*db.GameResult); ok {
		tx = tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "game_code"}, {Name: "game_created_at"}}, DoNothing: true})
	}
	return tx
}

func (s gormSink) insert(ctx context.Context, row any) error {
	err := s.session(ctx, row).Create(row).Error
	if isUniqueViolation(err) {
		return nil
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Recorder archives published events and completed games to Postgres from a
// single background worker. Writes never block callers; when the queue is
// full the row is dropped and logged. A Recorder without a database does nothing.
type Recorder struct {
	sink  sink
	queue chan any
	now   func() time.Time

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func New(conn *gorm.DB, buffer int) *Recorder {
	if conn == nil {
		return &Recorder{}
	}
	return newRecorder(gormSink{conn: conn}, buffer)
}

func newRecorder(s sink, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	r := &Recorder{
		sink:  s,
		queue: make(chan any, buffer),
		now:   func() time.Time { return time.Now().UTC() },
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) Enabled() bool {
	return r != nil && r.sink != nil
}

func (r *Recorder) run() {
	defer close(r.done)
	for row := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := r.sink.insert(ctx, row); err != nil {
			log.Printf("archive write failed row=%T error=%v", row, err)
		}
		cancel()
	}
}

func (r *Recorder) enqueue(row any) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- row:
	default:
		log.Printf("archive queue full, dropping row=%T", row)
	}
}

func (r *Recorder) RecordEvent(_ context.Context, code, event string, payload any) {
	if !r.Enabled() {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("archive encode failed game_code=%s event=%s error=%v", code, event, err)
		return
	}
	r.enqueue(&db.GameEvent{
		GameCode:  code,
		Type:      event,
		Payload:   datatypes.JSON(data),
		CreatedAt: r.now(),
	})
}

func (r *Recorder) RecordResult(_ context.Context, g *game.Game) {
	if !r.Enabled() || g == nil {
		return
	}
	standings := g.Standings()
	data, err := json.Marshal(standings)
	if err != nil {
		log.Printf("archive encode failed game_code=%s error=%v", g.Code, err)
		return
	}
	var winner string
	if len(standings) > 0 {
		winner = standings[0].Nickname
	}
	r.enqueue(&db.GameResult{
		GameCode:      g.Code,
		GameCreatedAt: g.CreatedAt,
		GameType:      string(g.Type),
		Rounds:        g.CurrentRound,
		Winner:        winner,
		FinalScores:   datatypes.JSON(data),
		CompletedAt:   r.now(),
	})
}

// Close stops accepting rows and waits for queued ones to be written.
func (r *Recorder) Close() {
	if !r.Enabled() {
		return
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done
}
