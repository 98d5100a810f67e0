package main

import (
	"context"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"logitdash/internal"
	"logitdash/internal/migration"
)

func main() {
	_ = godotenv.Load()
	log := internal.NewDefaultLogger()

	databaseURL := os.Getenv("DATABASE_URL")
	if len(os.Args) > 1 {
		databaseURL = os.Args[1]
	}
	if databaseURL == "" {
		log.Error("Usage: migrate <database_url> (or set DATABASE_URL)")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		log.Error("[Migrate] failed to connect to database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	runner := migration.NewRunner()
	log.Info("[Migrate] applying schema version %s", runner.Version())
	if err := runner.Run(ctx, db); err != nil {
		log.Error("[Migrate] %v", err)
		os.Exit(1)
	}
	log.Info("[Migrate] fit journal schema is up to date")
}
