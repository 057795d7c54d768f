package main

import (
	"fmt"
	"os"

	"github.com/umich-dbgroup/litmus/internal/config"
	"github.com/umich-dbgroup/litmus/internal/server"
	"github.com/umich-dbgroup/litmus/pkg/logger"
	"github.com/umich-dbgroup/litmus/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  cfg.Debug,
		Prefix: "server",
	})
	logger.Init(consoleLogger)

	if cfg.MetaDatabaseURL == "" {
		logger.Fatal("META_DATABASE_URL is required")
	}
	server.Init(cfg)
}
