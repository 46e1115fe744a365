package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"taskquest/internal/api/routes"
	"taskquest/internal/config"
	"taskquest/internal/database"
	"taskquest/internal/directory"
	"taskquest/internal/feed"
	"taskquest/internal/realtime"
)

func main() {
	// Best-effort; env vars win over .env
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	slog.Info("Starting taskquest realtime server")

	redisClient, err := database.NewRedisConnection(&cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	db, err := database.NewPostgresConnection(cfg.Database.URI())
	if err != nil {
		slog.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}

	// Postgres is the source of truth; redis mirrors it for cheap
	// presence reads by other services.
	userDir := directory.NewTee(
		directory.NewPostgres(db),
		directory.NewRedis(redisClient),
	)

	var eventFeed feed.Feed = feed.Nop{}
	if cfg.Kafka.Enabled {
		kafkaFeed := feed.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kafkaFeed.Close()
		eventFeed = kafkaFeed
	}

	tracker := realtime.NewTracker(userDir)
	ctx := context.Background()
	if err := tracker.Reconcile(ctx); err != nil {
		slog.Warn("Cold-start presence reconciliation failed", "error", err)
	}

	hub := realtime.NewHub(tracker, eventFeed, cfg.Realtime.AuthDeadline)
	go hub.Run()

	router := routes.NewRouter(hub, cfg.JWT.Secret)
	router.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub.Shutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Forced shutdown", "error", err)
	}
	slog.Info("Server stopped")
}
