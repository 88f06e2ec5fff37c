package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"party-rounds/internal/config"
	"party-rounds/internal/session"
	"party-rounds/internal/store"

	"github.com/gin-gonic/gin"
)

type Server struct {
	svc        *session.Service
	store      store.GameStore
	cfg        config.Config
	ws         *wsHub
	identities identities
	handlers   map[string]action
	newCode    func() (string, error)
}

func New(svc *session.Service, st store.GameStore, cfg config.Config) *Server {
	s := &Server{
		svc:   svc,
		store: st,
		cfg:   cfg,
		ws:    newWSHub(),
		identities: identities{
			secret: []byte(cfg.SessionSecret),
			secure: cfg.CookieSecure,
			now:    time.Now,
		},
		newCode: newGameCode,
	}
	s.handlers = s.actions()
	svc.OnGameDeleted(s.forgetGame)
	return s
}

func (s *Server) Handler() http.Handler {
	registerValidators()
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware(s.cfg.AllowOrigins))

	api := router.Group("/api")
	{
		api.POST("/create-game", s.handleCreateGame)
		api.POST("/join-game", s.handleJoinGame)
		api.GET("/game/:code", s.handleGetGame)
	}
	router.GET("/health", s.handleHealth)
	router.GET("/ws", s.handleWebsocket)
	return router
}

// CloseConnections drops every websocket client. Hijacked connections are
// not closed by http.Server.Shutdown.
func (s *Server) CloseConnections() {
	s.ws.CloseAll()
}

// forgetGame drops sockets and the channel subscription of a deleted game.
func (s *Server) forgetGame(code string) {
	if !s.ws.Forget(code) {
		return
	}
	if err := s.store.Unsubscribe(context.Background(), code); err != nil {
		log.Printf("unsubscribe failed game_code=%s error=%v", code, err)
	}
}
