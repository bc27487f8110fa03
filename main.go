// Command netmon runs the network monitor API or its scenario checks.
//
//	netmon [-config netmon.yaml] [-env .env] [-addr 127.0.0.1:8080] serve
//	netmon [-scenario beacon-capture] [-base-url http://localhost:8888] check
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raysh454/netmon/internal/app"
	"github.com/raysh454/netmon/internal/cli"
	"github.com/raysh454/netmon/internal/logging"
	"github.com/raysh454/netmon/internal/scenario"
	"github.com/raysh454/netmon/internal/server"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	args, err := cli.ParseArgs(argv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "netmon: %v\n", err)
		return 2
	}

	cfg, err := app.LoadConfig(args.ConfigPath, args.EnvFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "netmon: %v\n", err)
		return 1
	}
	if args.ListenAddr != "" {
		cfg.Server.ListenAddr = args.ListenAddr
	}
	if args.BaseURL != "" {
		cfg.Checks.BaseURL = args.BaseURL
	}
	logger := cfg.NewLogger("netmon")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args.Command {
	case cli.CommandCheck:
		return check(ctx, cfg, args.Scenarios, logger)
	default:
		if err := serve(ctx, cfg, logger); err != nil {
			logger.Error("serve failed", logging.Err(err))
			return 1
		}
		return 0
	}
}

func serve(ctx context.Context, cfg *app.Config, logger logging.Logger) error {
	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating application: %w", err)
	}
	if err := application.Start(); err != nil {
		_ = application.Shutdown(context.Background())
		return fmt.Errorf("starting application: %w", err)
	}

	srv, err := server.NewServer(server.Config{
		ListenAddr: cfg.Server.ListenAddr,
		App:        application,
		Logger:     logger.With(logging.F("component", "server")),
	})
	if err != nil {
		_ = application.Shutdown(context.Background())
		return err
	}
	httpServer := srv.HTTPServer()

	errs := make(chan error, 1)
	go func() {
		logger.Info("api listening",
			logging.F("addr", cfg.Server.ListenAddr),
			logging.F("proxy_addr", application.ProxyAddr()))
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err = <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("api shutdown returned error", logging.Err(serr))
	}
	srv.Close()
	if serr := application.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}

func check(ctx context.Context, cfg *app.Config, names []string, logger logging.Logger) int {
	scenarios, err := app.SelectScenarios(names)
	if err != nil {
		fmt.Fprintf(os.Stderr, "netmon: %v\n", err)
		return 2
	}

	orch := app.NewOrchestrator(cfg, logger)
	defer orch.Close()

	reports, err := orch.RunChecks(ctx, scenarios, func(done int, rep *scenario.Report) {
		logger.Info("scenario finished",
			logging.F("scenario", rep.Scenario),
			logging.F("passed", rep.Passed),
			logging.F("done", done),
			logging.F("total", len(scenarios)))
	})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(reports)

	if err != nil {
		logger.Error("checks aborted", logging.Err(err))
		return 1
	}
	for _, rep := range reports {
		if !rep.Passed {
			return 1
		}
	}
	return 0
}
