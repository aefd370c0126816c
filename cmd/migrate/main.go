package main

import (
	"context"
	"os"

	"github.com/safar/go-checkout/internal/config"
	"github.com/safar/go-checkout/internal/database"
	"github.com/safar/go-checkout/internal/logging"
	"github.com/safar/go-checkout/migrations"
)

func main() {
	log := logging.New(config.LogConfig{Level: "info", Format: "text"}, "migrate")

	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate [up|down]")
	}

	direction := os.Args[1]
	if direction != "up" && direction != "down" {
		log.Fatal("Direction must be 'up' or 'down'")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(context.Background(), &cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	apply := migrations.Up
	if direction == "down" {
		apply = migrations.Down
	}

	n, err := apply(db)
	if err != nil {
		log.Fatalf("Migrate %s: %v", direction, err)
	}

	log.Infof("Successfully ran %d migration(s) %s", n, direction)
}
