package main

import (
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/safar/storefront/internal/config"
	"github.com/safar/storefront/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/run_migrations.go [up|down]")
	}
	direction := os.Args[1]

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Build logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()

	applied, err := database.Migrate(db, cfg.Database.MigrationsDir, direction)
	for _, name := range applied {
		logger.Info("ran migration", zap.String("file", name))
	}
	if err != nil {
		logger.Fatal("migrate", zap.String("direction", direction), zap.Error(err))
	}

	logger.Info("migrations complete", zap.Int("count", len(applied)), zap.String("direction", direction))
}
