package main

import (
	"flag"
	"log"
	"os"

	"CandleSync/internal/di"
	"CandleSync/pkg/config"

	"github.com/spf13/afero"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	envFile := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(afero.NewOsFs(), *configPath, *envFile)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s remote=%s instrument=%s cache=%s journal=%s",
		cfg.Environment, cfg.Remote.BaseURL, cfg.Remote.Instrument, cfg.Cache.Backend, cfg.Journal.Backend)

	// Wire DI: Initialize all dependencies
	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run application (blocks until signal)
	err = app.Run()
	cleanup()
	if err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
