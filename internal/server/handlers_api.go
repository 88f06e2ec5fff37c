package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"party-rounds/internal/game"
	"party-rounds/internal/store"

	"github.com/gin-gonic/gin"
)

const maxCodeAttempts = 10

type createGameRequest struct {
	HostNickname string `json:"hostNickname" binding:"required,nickname"`
	GameType     string `json:"gameType" binding:"omitempty,gametype"`
}

type joinGameRequest struct {
	GameCode string `json:"gameCode" binding:"required,gamecode"`
	Nickname string `json:"nickname" binding:"required,nickname"`
}

type gameURI struct {
	Code string `uri:"code" binding:"required,gamecode"`
}

var (
	createGameMessages = bindMessages{
		"HostNickname": {
			"required": "Host nickname is required",
			"nickname": fmt.Sprintf("Nickname must be 1-%d characters", game.MaxNicknameLength),
		},
		"GameType": {"gametype": "Unknown game type"},
	}
	joinGameMessages = bindMessages{
		"GameCode": {
			"required": "Game code and nickname are required",
			"gamecode": "Game code must be 6 letters or digits",
		},
		"Nickname": {
			"required": "Game code and nickname are required",
			"nickname": fmt.Sprintf("Nickname must be 1-%d characters", game.MaxNicknameLength),
		},
	}
	gameURIMessages = bindMessages{
		"Code": {"gamecode": "Game code must be 6 letters or digits"},
	}
)

func (s *Server) handleCreateGame(c *gin.Context) {
	var req createGameRequest
	if !bindJSON(c, &req, createGameMessages, "invalid create request") {
		return
	}
	gameType := game.Type(req.GameType)
	if gameType == "" {
		gameType = game.TypeGuessio
	}
	hostID := s.resolveIdentity(c)
	g, err := s.createWithFreshCode(c.Request.Context(), hostID, req.HostNickname, gameType)
	if err != nil {
		writeError(c, err, "Failed to create game")
		return
	}
	s.setIdentity(c, hostID)
	c.JSON(http.StatusOK, gin.H{
		"gameCode": g.Code,
		"hostId":   hostID,
		"game":     game.ViewOf(g),
	})
}

func (s *Server) createWithFreshCode(ctx context.Context, hostID, nickname string, gameType game.Type) (*game.Game, error) {
	for range maxCodeAttempts {
		code, err := s.newCode()
		if err != nil {
			return nil, err
		}
		g, err := s.svc.CreateGame(ctx, code, hostID, nickname, gameType)
		if errors.Is(err, game.ErrDuplicateCode) {
			log.Printf("game code collision game_code=%s", code)
			continue
		}
		return g, err
	}
	return nil, fmt.Errorf("no free game code after %d attempts", maxCodeAttempts)
}

func (s *Server) handleJoinGame(c *gin.Context) {
	var req joinGameRequest
	if !bindJSON(c, &req, joinGameMessages, "Game code and nickname are required") {
		return
	}
	code := normalizeCode(req.GameCode)
	playerID := s.resolveIdentity(c)
	g, err := s.svc.JoinGame(c.Request.Context(), code, playerID, req.Nickname)
	if err != nil {
		writeError(c, err, "Failed to join game")
		return
	}
	s.setIdentity(c, playerID)
	c.JSON(http.StatusOK, gin.H{
		"playerId": playerID,
		"gameCode": code,
		"game":     game.ViewOf(g),
	})
}

func (s *Server) handleGetGame(c *gin.Context) {
	var uri gameURI
	if !bindURI(c, &uri, gameURIMessages, "invalid game code") {
		return
	}
	g, err := s.svc.GetGame(c.Request.Context(), normalizeCode(uri.Code))
	if err != nil {
		writeError(c, err, "Failed to get game")
		return
	}
	c.JSON(http.StatusOK, gin.H{"game": game.ViewOf(g)})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"store":     store.Backend(s.store),
		"timestamp": time.Now().UTC(),
	})
}
