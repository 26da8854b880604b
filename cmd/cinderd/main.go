package main

import (
	"log"
	"os"

	"github.com/seantiz/cinder/internal/api"
	"github.com/seantiz/cinder/internal/config"
	"github.com/seantiz/cinder/internal/engine"
	"github.com/seantiz/cinder/internal/script"
	"github.com/seantiz/cinder/internal/store"
	"github.com/seantiz/cinder/internal/vm/gojavm"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("cinder: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"script_timeout", cfg.ScriptTimeout,
		"cache_max_count", cfg.CacheMaxCount,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	factory := gojavm.New(cfg.Limits, cfg.EnableConsole)
	runner := script.NewRunner(factory, script.Config{
		Timeout:         cfg.ScriptTimeout,
		CacheMaxCount:   cfg.CacheMaxCount,
		CacheExpiration: cfg.CacheExpiration,
	}, logger)
	eng := engine.NewEngine(db, runner, logger)

	srv := api.NewServer(cfg.ListenAddr, db, eng, logger)

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
