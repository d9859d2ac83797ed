package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"payment-reconciler/internal/config"
	"payment-reconciler/internal/logger"
	"payment-reconciler/internal/storage"
)

func main() {
	envFlag := flag.String("env", "dev", "Environment (dev, test, prod)")
	envFileFlag := flag.String("env-file", "", "Path to .env file")
	timeoutFlag := flag.Duration("timeout", 30*time.Second, "Migration timeout")
	flag.Parse()

	log := logger.NewLogger()
	defer log.Close()

	loadEnv(log, *envFlag, *envFileFlag)

	cfg := config.Load()
	store, err := storage.NewMySQLStore(cfg.Database, log)
	if err != nil {
		log.Error("MIGRATE", "Failed to connect to database: "+err.Error())
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	// NewMySQLStore already ran the schema; rerunning is a no-op that
	// confirms every table and index is present.
	if err := store.InitSchema(ctx); err != nil {
		log.Error("MIGRATE", "Migration failed: "+err.Error())
		os.Exit(1)
	}

	log.Info("MIGRATE", fmt.Sprintf("Migration completed successfully on %s:%s/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database))
}

func loadEnv(log *logger.Logger, env, envFile string) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err == nil {
			log.Info("ENV", "Loaded environment from "+envFile)
			return
		}
	}

	envSpecificFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envSpecificFile); err == nil {
		log.Info("ENV", "Loaded environment from "+envSpecificFile)
		return
	}

	if err := godotenv.Load(); err == nil {
		log.Info("ENV", "Loaded environment from .env")
		return
	}

	log.Warn("ENV", "No .env file found, using system environment variables")
}
