package main

import (
	"log"
	"log/slog"

	"github.com/joho/godotenv"

	"taskquest/internal/config"
	"taskquest/internal/database"
	"taskquest/internal/models"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	db, err := database.NewPostgresConnection(cfg.Database.URI())
	if err != nil {
		log.Fatal("Failed to connect to PostgreSQL:", err)
	}

	if err := db.AutoMigrate(&models.User{}); err != nil {
		log.Fatal("Migration failed:", err)
	}
	slog.Info("Migration complete")
}
