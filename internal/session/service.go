package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"party-rounds/internal/game"
	"party-rounds/internal/oracle"
	"party-rounds/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// errStale aborts a write whose expected phase or turn no longer holds.
var errStale = errors.New("stale transition")

// Recorder receives every published event and every completed game.
// Implementations must not block.
type Recorder interface {
	RecordEvent(ctx context.Context, code, event string, payload any)
	RecordResult(ctx context.Context, g *game.Game)
}

type Options struct {
	// RevealDelay is how long Guessio results stay up before the next round.
	RevealDelay time.Duration
	// StoryRevealDelay applies to EmojiStory and TwoTruths results.
	StoryRevealDelay time.Duration
	InterpretWindow  time.Duration
	StoryVoteWindow  time.Duration
	// Retention is how long a completed game is kept before it is deleted.
	Retention time.Duration
	Recorder  Recorder
}

func DefaultOptions() Options {
	return Options{
		RevealDelay:      5 * time.Second,
		StoryRevealDelay: 8 * time.Second,
		InterpretWindow:  60 * time.Second,
		StoryVoteWindow:  45 * time.Second,
		Retention:        5 * time.Minute,
	}
}

// Service drives games: lobby membership, round phases, scoring and event fan-out.
type Service struct {
	store    store.GameStore
	oracle   oracle.ScoringOracle
	opts     Options
	recorder Recorder
	timers   *Scheduler
	tracer   trace.Tracer
	variants map[game.Type]variant
	now      func() time.Time

	wg sync.WaitGroup

	deletedMu sync.Mutex
	onDeleted []func(code string)
}

func New(st store.GameStore, o oracle.ScoringOracle, opts Options) *Service {
	defaults := DefaultOptions()
	if opts.RevealDelay <= 0 {
		opts.RevealDelay = defaults.RevealDelay
	}
	if opts.StoryRevealDelay <= 0 {
		opts.StoryRevealDelay = defaults.StoryRevealDelay
	}
	if opts.InterpretWindow <= 0 {
		opts.InterpretWindow = defaults.InterpretWindow
	}
	if opts.StoryVoteWindow <= 0 {
		opts.StoryVoteWindow = defaults.StoryVoteWindow
	}
	if opts.Retention <= 0 {
		opts.Retention = defaults.Retention
	}
	s := &Service{
		store:    st,
		oracle:   o,
		opts:     opts,
		recorder: opts.Recorder,
		timers:   NewScheduler(),
		tracer:   otel.Tracer("party-rounds/internal/session"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	s.variants = s.buildVariants()
	return s
}

// OnGameDeleted registers fn to run after a game is removed from the store.
func (s *Service) OnGameDeleted(fn func(code string)) {
	s.deletedMu.Lock()
	defer s.deletedMu.Unlock()
	s.onDeleted = append(s.onDeleted, fn)
}

// Wait blocks until background image generation and scoring finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

// Close stops every pending timer and waits for background work.
func (s *Service) Close() {
	s.timers.Close()
	s.wg.Wait()
}

func (s *Service) startSpan(ctx context.Context, name, code string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "session."+name, trace.WithAttributes(attribute.String("game.code", code)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) goAsync(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

type outbound struct {
	event   string
	payload any
}

type pendingTimer struct {
	key   timerKey
	delay time.Duration
	fire  func(ctx context.Context)
}

// effects collects what a mutation wants done once its write has landed.
type effects struct {
	events    []outbound
	cancels   []timerKey
	timers    []pendingTimer
	tasks     []func(ctx context.Context)
	completed bool
}

func (fx *effects) emit(event string, payload any) {
	fx.events = append(fx.events, outbound{event: event, payload: payload})
}

func (fx *effects) cancel(key timerKey) {
	fx.cancels = append(fx.cancels, key)
}

func (fx *effects) schedule(key timerKey, delay time.Duration, fire func(ctx context.Context)) {
	fx.timers = append(fx.timers, pendingTimer{key: key, delay: delay, fire: fire})
}

func (fx *effects) spawn(task func(ctx context.Context)) {
	fx.tasks = append(fx.tasks, task)
}

// mutate applies fn through the store's serialized update and, once the write
// succeeds, publishes the collected events and arms the collected timers.
func (s *Service) mutate(ctx context.Context, code string, fn func(g *game.Game, fx *effects) error) (*game.Game, error) {
	var fx *effects
	g, err := s.store.Update(ctx, code, func(g *game.Game) error {
		fx = &effects{}
		if err := fn(g, fx); err != nil {
			return err
		}
		g.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.apply(ctx, g, fx)
	return g, nil
}

func (s *Service) apply(ctx context.Context, g *game.Game, fx *effects) {
	ctx = context.WithoutCancel(ctx)
	for _, ev := range fx.events {
		s.publish(ctx, g.Code, ev.event, ev.payload)
	}
	for _, key := range fx.cancels {
		s.timers.Cancel(key)
	}
	for _, t := range fx.timers {
		s.timers.Schedule(t.key, t.delay, func() {
			t.fire(context.Background())
		})
	}
	for _, task := range fx.tasks {
		s.goAsync(func() { task(ctx) })
	}
	if fx.completed && s.recorder != nil {
		s.recorder.RecordResult(ctx, g)
	}
}

func (s *Service) publish(ctx context.Context, code, event string, payload any) {
	if err := s.store.Publish(ctx, code, event, payload); err != nil {
		log.Printf("publish failed game_code=%s event=%s error=%v", code, event, err)
	}
	if s.recorder != nil {
		s.recorder.RecordEvent(ctx, code, event, payload)
	}
}

func (s *Service) GetGame(ctx context.Context, code string) (g *game.Game, err error) {
	ctx, span := s.startSpan(ctx, "GetGame", code)
	defer func() { endSpan(span, err) }()
	return s.store.Get(ctx, code)
}

func requirePlayer(g *game.Game, playerID string) (*game.Player, error) {
	p, ok := g.Player(playerID)
	if !ok {
		return nil, game.ErrPlayerNotFound
	}
	return p, nil
}

// activeRound returns the current round of a playing game of type kind.
func activeRound(g *game.Game, kind game.Type) (*game.Round, error) {
	if g.Status != game.StatusPlaying {
		return nil, game.ErrWrongPhase
	}
	if g.Type != kind {
		return nil, game.Invalid("that action does not apply to this game type")
	}
	r := g.Current()
	if r == nil {
		return nil, game.ErrWrongPhase
	}
	return r, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func wholeSeconds(d time.Duration) int {
	return int(d / time.Second)
}
