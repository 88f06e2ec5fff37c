package session

import (
	"context"
	"errors"
	"log"

	"party-rounds/internal/game"
)

// errNotStartable makes StartGame report false without writing.
var errNotStartable = errors.New("game cannot start")

func (s *Service) CreateGame(ctx context.Context, code, hostID, hostNickname string, gameType game.Type) (g *game.Game, err error) {
	ctx, span := s.startSpan(ctx, "CreateGame", code)
	defer func() { endSpan(span, err) }()

	if !gameType.Valid() {
		return nil, game.ErrUnknownGameType
	}
	nickname, err := game.CleanNickname(hostNickname)
	if err != nil {
		return nil, err
	}
	g = game.New(code, gameType, hostID, nickname, s.now())
	if err := s.store.Create(ctx, g); err != nil {
		return nil, err
	}
	log.Printf("game created game_code=%s game_type=%s host_id=%s", code, gameType, hostID)
	if s.recorder != nil {
		s.recorder.RecordEvent(context.WithoutCancel(ctx), code, eventGameCreated, presencePayload{PlayerID: hostID, Nickname: nickname})
	}
	return g, nil
}

// JoinGame adds a player to a lobby. A player already in the game is simply
// marked online again.
func (s *Service) JoinGame(ctx context.Context, code, playerID, nickname string) (g *game.Game, err error) {
	ctx, span := s.startSpan(ctx, "JoinGame", code)
	defer func() { endSpan(span, err) }()

	cleaned, err := game.CleanNickname(nickname)
	if err != nil {
		return nil, err
	}
	g, err = s.mutate(ctx, code, func(g *game.Game, fx *effects) error {
		if p, ok := g.Player(playerID); ok {
			if p.IsOnline {
				return errStale
			}
			p.IsOnline = true
			fx.emit(EventPlayerOnline, presencePayload{PlayerID: p.ID, Nickname: p.Nickname})
			return nil
		}
		if g.Status != game.StatusLobby {
			return game.ErrAlreadyStarted
		}
		if g.Players.Len() >= g.MaxPlayers {
			return game.ErrGameFull
		}
		if g.NicknameTaken(cleaned, playerID) {
			return game.ErrNicknameTaken
		}
		// A lobby emptied by leaves has no host; the next joiner takes it.
		p := &game.Player{ID: playerID, Nickname: cleaned, IsOnline: true, IsHost: g.Host() == nil, JoinedAt: s.now()}
		g.Players.Set(playerID, p)
		fx.emit(EventPlayerJoined, playerJoinedPayload{Player: *p, TotalPlayers: g.Players.Len()})
		return nil
	})
	if errors.Is(err, errStale) {
		return s.store.Get(ctx, code)
	}
	if err != nil {
		return nil, err
	}
	log.Printf("player joined game_code=%s player_id=%s players=%d", code, playerID, g.Players.Len())
	return g, nil
}

// LeaveGame removes a lobby player, or marks a mid-game player offline so their
// scores stay. The game is deleted once nobody is left.
func (s *Service) LeaveGame(ctx context.Context, code, playerID string) (err error) {
	ctx, span := s.startSpan(ctx, "LeaveGame", code)
	defer func() { endSpan(span, err) }()

	g, err := s.mutate(ctx, code, func(g *game.Game, fx *effects) error {
		p, err := requirePlayer(g, playerID)
		if err != nil {
			return err
		}
		if g.Status == game.StatusLobby {
			g.Players.Delete(playerID)
			if p.IsHost {
				for _, next := range g.Players.All() {
					next.IsHost = true
					break
				}
			}
		} else {
			p.IsOnline = false
		}
		if g.Players.Len() > 0 {
			fx.emit(EventPlayerLeft, playerLeftPayload{PlayerID: p.ID, Nickname: p.Nickname, TotalPlayers: g.Players.Len()})
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("player left game_code=%s player_id=%s players=%d", code, playerID, g.Players.Len())
	if g.Players.Len() == 0 {
		s.deleteIfEmpty(ctx, code)
	}
	return nil
}

// StartGame moves a lobby to round 1. It reports false, without error, when
// the caller is not the host, the game is not in the lobby, or fewer than two
// players have joined.
func (s *Service) StartGame(ctx context.Context, code, hostID string) (started bool, err error) {
	ctx, span := s.startSpan(ctx, "StartGame", code)
	defer func() { endSpan(span, err) }()

	g, err := s.mutate(ctx, code, func(g *game.Game, fx *effects) error {
		host, ok := g.Player(hostID)
		if !ok || !host.IsHost || g.Status != game.StatusLobby || g.Players.Len() < 2 {
			return errNotStartable
		}
		g.Settings.MaxRounds = min(g.Settings.MaxRounds, g.Players.Len())
		g.Status = game.StatusPlaying
		s.startRound(g, 1, fx, EventGameStarted)
		return nil
	})
	if errors.Is(err, errNotStartable) || errors.Is(err, game.ErrGameNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	log.Printf("game started game_code=%s players=%d max_rounds=%d", code, g.Players.Len(), g.Settings.MaxRounds)
	return true, nil
}

// UpdatePlayerOnlineStatus records presence. It never changes the phase and
// publishes only when the flag actually flips.
func (s *Service) UpdatePlayerOnlineStatus(ctx context.Context, code, playerID string, online bool) (err error) {
	ctx, span := s.startSpan(ctx, "UpdatePlayerOnlineStatus", code)
	defer func() { endSpan(span, err) }()

	_, err = s.mutate(ctx, code, func(g *game.Game, fx *effects) error {
		p, err := requirePlayer(g, playerID)
		if err != nil {
			return err
		}
		if p.IsOnline == online {
			return errStale
		}
		p.IsOnline = online
		event := EventPlayerOffline
		if online {
			event = EventPlayerOnline
		}
		fx.emit(event, presencePayload{PlayerID: p.ID, Nickname: p.Nickname})
		return nil
	})
	if errors.Is(err, errStale) {
		return nil
	}
	return err
}

// SendChat relays a chat line to everyone in the game. Nothing is stored.
func (s *Service) SendChat(ctx context.Context, code, playerID, text string) (err error) {
	ctx, span := s.startSpan(ctx, "SendChat", code)
	defer func() { endSpan(span, err) }()

	message, err := game.CleanText("message", text, game.MaxChatLength)
	if err != nil {
		return err
	}
	g, err := s.store.Get(ctx, code)
	if err != nil {
		return err
	}
	p, err := requirePlayer(g, playerID)
	if err != nil {
		return err
	}
	s.publish(context.WithoutCancel(ctx), code, EventChatMessage, chatPayload{
		PlayerID:  p.ID,
		Nickname:  p.Nickname,
		Message:   message,
		Timestamp: s.now(),
	})
	return nil
}

// deleteIfEmpty drops the game unless someone joined after the last leave.
func (s *Service) deleteIfEmpty(ctx context.Context, code string) {
	deleted, err := s.store.DeleteIf(context.WithoutCancel(ctx), code, func(g *game.Game) bool {
		return g.Players.Len() == 0
	})
	if err != nil {
		log.Printf("delete game failed game_code=%s error=%v", code, err)
		return
	}
	if !deleted {
		log.Printf("game kept after rejoin game_code=%s", code)
		return
	}
	s.timers.CancelGame(code)
	s.gameDeleted(code)
}

func (s *Service) deleteGame(ctx context.Context, code string) {
	s.timers.CancelGame(code)
	if err := s.store.Delete(context.WithoutCancel(ctx), code); err != nil {
		log.Printf("delete game failed game_code=%s error=%v", code, err)
		return
	}
	s.gameDeleted(code)
}

func (s *Service) gameDeleted(code string) {
	log.Printf("game deleted game_code=%s", code)
	s.deletedMu.Lock()
	hooks := append([]func(string){}, s.onDeleted...)
	s.deletedMu.Unlock()
	for _, fn := range hooks {
		fn(code)
	}
}
