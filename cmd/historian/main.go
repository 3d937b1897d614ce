// cmd/historian/main.go runs the asynchronous historian: it pops event
// records from the Redis queue and persists them to PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/muster-gg/muster/internal/cache"
	"github.com/muster-gg/muster/internal/config"
	"github.com/muster-gg/muster/internal/database"
	"github.com/muster-gg/muster/internal/historian"
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

	queue, err := cache.Connect(cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.Queue)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer queue.Close()

	svc := historian.New(queue, db, historian.Config{
		BatchSize:  getEnvInt("HISTORIAN_BATCH_SIZE", 20),
		FlushDelay: time.Duration(getEnvInt("HISTORIAN_FLUSH_MS", 500)) * time.Millisecond,
		Inactivity: time.Duration(getEnvInt("GAME_INACTIVITY_TIMEOUT_SEC", 600)) * time.Second,
	})

	logger.Infof("muster historian draining queue %q", queue.Name())
	if err := svc.Run(ctx); err != nil {
		logger.Fatalf("historian: %v", err)
	}
	logger.Info("muster historian stopped")
}

// getEnvInt retrieves an integer value from an environment variable or
// returns a default value.
func getEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}
