package main

import (
	"flag"
	"log"
	"os"

	"SignalScope/internal/di"
	"SignalScope/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	log.Printf("env=%s scanner=%s strategies=%v clickhouse=%t kafka=%t",
		cfg.Environment, cfg.Scanner.Timeframe, cfg.Scanner.Strategies, cfg.ClickHouse.Enabled, cfg.Kafka.Enabled)

	runErr := app.Run()
	cleanup()
	if runErr != nil {
		log.Printf("app error: %v", runErr)
		os.Exit(1)
	}
}
