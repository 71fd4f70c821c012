package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/vitalwatch/monitor/internal/app"
	"github.com/vitalwatch/monitor/internal/auth"
	"github.com/vitalwatch/monitor/internal/client"
	"github.com/vitalwatch/monitor/internal/config"
	"github.com/vitalwatch/monitor/internal/logging"
	"github.com/vitalwatch/monitor/internal/monitoring"
	"github.com/vitalwatch/monitor/internal/poller"
	"github.com/vitalwatch/monitor/internal/registry"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run returns the process exit code so deferred cleanup, including the
// final log flush, happens before exit.
func run(args []string) int {
	fs := flag.NewFlagSet("vitalwatch", flag.ContinueOnError)
	configPath := fs.String("config", "vitalwatch.yaml", "Path to config file")
	baseURL := fs.String("url", "", "Backend base URL, e.g. http://127.0.0.1:8000")
	logLevel := fs.String("log-level", "", "Override log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: load config: %v\n", err)
		return 1
	}
	cfg.ApplyEnv()
	if *baseURL != "" {
		cfg.Server.BaseURL = *baseURL
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger := logging.NewFileLogger(cfg.Log, "vitalwatch")
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("base_url", cfg.Server.BaseURL),
		zap.Duration("poll_interval", cfg.Sync.PollInterval),
	)

	api := client.NewHTTPClient(cfg.Server.BaseURL, cfg.Sync.RequestTimeout, logger)
	guard := auth.NewGuard(logger)
	regs := registry.NewSet(logger)
	poll := poller.New(api, guard, regs, cfg.Sync, logger)
	ctl := monitoring.NewController(api, guard, regs, poll, logger)
	authn := auth.NewAuthenticator(api, guard, auth.Resetters{regs, ctl}, logger)

	m := app.New(app.Deps{
		Authenticator:  authn,
		Guard:          guard,
		Registries:     regs,
		Poller:         poll,
		Controller:     ctl,
		Logger:         logger,
		Username:       cfg.Auth.Username,
		Password:       cfg.Auth.Password,
		RequestTimeout: cfg.Sync.RequestTimeout,
	})
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go poll.Run(ctx)
	if cfg.Sync.Hints {
		go client.NewNotifier(cfg.Server.BaseURL, api.Jar(), logger).Run(ctx, m.HintFunc())
	}

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logger.Error("ui exited", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
