package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vitalwatch/monitor/internal/config"
	"github.com/vitalwatch/monitor/internal/logging"
	"github.com/vitalwatch/monitor/internal/mockserver"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "vitalwatch.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	quiet := flag.Bool("quiet", false, "Do not generate alerts")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}
	cfg.ApplyEnv()
	if *port > 0 {
		cfg.Mock.Port = *port
	}

	logCfg := cfg.Log
	logCfg.Format = "console"
	logger := logging.NewStdoutLogger(logCfg, "vitalwatch-mock")
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, gen := mockserver.New(cfg.Mock, logger)
	if !*quiet {
		gen.Start(ctx)
	}

	logger.Info("mock backend starting",
		zap.String("host", cfg.Mock.Host),
		zap.Int("port", cfg.Mock.Port),
		zap.Int("users", len(cfg.Mock.Users)),
	)
	if err := srv.ListenAndServe(ctx, cfg.Mock.Host, cfg.Mock.Port); err != nil {
		logger.Error("server error", zap.Error(err))
		return 1
	}
	logger.Info("shut down")
	return 0
}
