// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/muster-gg/muster/internal/auth"
	"github.com/muster-gg/muster/internal/cache"
	"github.com/muster-gg/muster/internal/config"
	"github.com/muster-gg/muster/internal/database"
	"github.com/muster-gg/muster/internal/handlers"
	"github.com/muster-gg/muster/internal/metrics"
	"github.com/muster-gg/muster/internal/middleware"
	"github.com/muster-gg/muster/internal/state"
)

func main() {
	logger := logrus.StandardLogger()
	if lvl, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	cfg := config.Load(os.Getenv("MUSTER_CONFIG"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer db.Close()

	seed, err := db.ActiveGames(ctx)
	if err != nil {
		logger.Fatalf("load active games: %v", err)
	}
	store := state.New(seed)
	logger.Infof("seeded state store with %d running games", len(seed))

	queue, err := cache.Connect(cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.Queue)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer queue.Close()

	var keys *auth.Keys
	if cfg.Auth.KeySeed != "" {
		keys, err = auth.NewKeysFromSeed(cfg.Auth.KeySeed, cfg.Auth.TokenExpire)
	} else {
		logger.Warn("AUTH_KEY_SEED not set; player tokens will not survive a restart")
		keys, err = auth.NewKeys(cfg.Auth.TokenExpire)
	}
	if err != nil {
		logger.Fatalf("auth keys: %v", err)
	}

	m := metrics.New(store)
	srv := handlers.NewServer(store, db, queue, keys, m, logger, cfg)

	mux := http.NewServeMux()

	// The websocket endpoint hijacks its connection, so it stays outside the
	// logging middleware and reports its own lifecycle.
	mux.Handle("/connect/ws", handlers.ConnectWSHandler(logger, srv))

	// platform endpoints
	mux.Handle("/api/games", middleware.LogMiddleware(logger)(handlers.GamesHandler(srv)))
	mux.Handle("/api/games/", middleware.LogMiddleware(logger)(handlers.CloseGameHandler(srv)))

	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", handlers.HealthzHandler)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- httpSrv.ListenAndServe() }()
	logger.Infof("muster server listening on %s", cfg.ListenAddr)

	select {
	case err := <-errc:
		logger.Fatalf("server exited: %v", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
	logger.Info("muster server stopped")
}
