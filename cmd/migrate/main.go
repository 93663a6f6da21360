package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"rentshare-backend/internal/config"
	"rentshare-backend/internal/logger"
	"rentshare-backend/internal/repository/postgres"
)

const usage = `Usage: migrate [-config path] <command> [args]

Commands:
  up          Migrate to the most recent version
  up-to V     Migrate up to version V
  down        Roll back one version
  down-to V   Roll back to version V
  redo        Re-run the latest migration
  status      Print migration status
  version     Print the current version
`

func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Usage = func() { _, _ = os.Stderr.WriteString(usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	command, args := flag.Arg(0), flag.Args()[1:]

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)

	ctx := context.Background()
	db, err := postgres.Open(ctx, cfg.GetDatabaseConnectionString(), 1, 1)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	logger.Info("Running migrations", "command", command, "database", cfg.Database.Name)
	if err := postgres.Migrate(ctx, db, command, args...); err != nil {
		logger.Error("Migration failed", "command", command, "error", err)
		os.Exit(1)
	}
	logger.Info("Migrations finished", "command", command)
}
