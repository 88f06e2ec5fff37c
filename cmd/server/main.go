package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"party-rounds/internal/archive"
	"party-rounds/internal/config"
	"party-rounds/internal/db"
	"party-rounds/internal/oracle"
	"party-rounds/internal/server"
	"party-rounds/internal/session"
	"party-rounds/internal/store"
	"party-rounds/internal/telemetry"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Printf("failed to load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTELEndpoint, cfg.ServiceName)
	if err != nil {
		log.Printf("tracing disabled error=%v", err)
	}

	st, err := store.Open(ctx, cfg.StoreURL())
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	opts := session.Options{
		RevealDelay:      cfg.RevealDelay(),
		StoryRevealDelay: cfg.StoryRevealDelay(),
		Retention:        cfg.Retention(),
	}
	var recorder *archive.Recorder
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(cfg.DatabaseURL, db.PoolOptions{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.DBConnMaxLifetimeSeconds) * time.Second,
		})
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		if err := db.Migrate(conn); err != nil {
			log.Fatalf("database migration: %v", err)
		}
		recorder = archive.New(conn, archive.DefaultBuffer)
		opts.Recorder = recorder
		log.Printf("game archive enabled")
	}

	svc := session.New(st, oracle.New(cfg.OpenAIAPIKey), opts)
	gin.SetMode(gin.ReleaseMode)
	srv := server.New(svc, st, cfg)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("party-rounds server listening on %s store=%s", httpServer.Addr, store.Backend(st))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error=%v", err)
	}
	srv.CloseConnections()
	svc.Close()
	if recorder != nil {
		recorder.Close()
	}
	if err := st.Close(); err != nil {
		log.Printf("store close error=%v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Printf("tracing shutdown error=%v", err)
	}
}
