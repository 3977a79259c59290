// Command server starts the tour booking risk gate.
//
// Usage:
//
//	go run ./cmd/server [flags]
//
// Flags:
//
//	-replay  Path to a JSON file of attempts to replay on startup (default: none)
//
// Everything else is configured through the environment; see internal/config.
// The operator routes are served only when OPERATOR_PORT is set, on that
// port, and should be bound to an internal network.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tourbook/risk-gate/internal/api"
	"tourbook/risk-gate/internal/blacklist"
	"tourbook/risk-gate/internal/config"
	"tourbook/risk-gate/internal/domain"
	"tourbook/risk-gate/internal/logging"
	"tourbook/risk-gate/internal/orchestrator"
	"tourbook/risk-gate/internal/review"
	"tourbook/risk-gate/internal/rules"
	"tourbook/risk-gate/internal/scoring"
	"tourbook/risk-gate/internal/store"
	"tourbook/risk-gate/internal/webhook"
)

// backend is what the server needs from a store implementation.
type backend interface {
	store.History
	store.Failures
	store.Blacklist
	store.Reviews
}

func main() {
	replayFile := flag.String("replay", "", "path to a JSON file of attempts to replay on startup")
	flag.Parse()

	if err := run(*replayFile); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(replayFile string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("configuration loaded",
		"env", cfg.Env,
		"store", cfg.StoreBackend,
		"rules_file", cfg.RulesFile,
		"review_webhook", cfg.ReviewWebhookURL != "",
		"operator_port", cfg.OperatorPort,
	)

	ctx := context.Background()

	// ── Wire dependencies ─────────────────────────────────────────────────────
	var s backend
	var pinger api.Pinger
	switch cfg.StoreBackend {
	case config.BackendMemory:
		s = store.New()
	default:
		rs, err := store.Connect(ctx, store.RedisOptions{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			ReadTimeout:  cfg.RedisTimeout,
			WriteTimeout: cfg.RedisTimeout,
		})
		if err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		defer rs.Close()
		s, pinger = rs, rs
	}

	var src rules.Source = rules.StaticSource{Rules: rules.Default()}
	if cfg.RulesFile != "" {
		src = rules.FileSource{Path: cfg.RulesFile}
	}
	rp, err := rules.NewProvider(ctx, src)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	logger.Info("rules loaded", "version", rp.Current().Version)

	engine := scoring.New(s, s, s, rp)
	reviews := review.New(s, s)
	gate := orchestrator.New(engine, s, s, reviews)
	if cfg.ReviewWebhookURL != "" {
		gate.WithNotifier(webhook.New(cfg.ReviewWebhookURL))
	}
	handler := api.NewHandler(gate, reviews, blacklist.New(s), rp, pinger)

	// ── Replay ────────────────────────────────────────────────────────────────
	if replayFile != "" {
		if err := replay(ctx, gate, replayFile); err != nil {
			// Non-fatal: the gate works fine with empty history.
			logger.Warn("replay not loaded", "file", replayFile, "reason", err.Error())
		}
	}

	// ── Start HTTP servers ────────────────────────────────────────────────────
	servers := []*http.Server{newServer(cfg.Port, api.NewRouter(handler))}
	if cfg.OperatorPort != "" {
		servers = append(servers, newServer(cfg.OperatorPort, api.NewOperatorRouter(handler)))
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	return serve(logger, servers, quit)
}

// serve runs every server until quit fires or one of them fails to listen,
// then shuts all of them down. A listen failure is returned.
func serve(logger *slog.Logger, servers []*http.Server, quit <-chan os.Signal) error {
	errc := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info("server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- fmt.Errorf("listen on %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var serveErr error
	select {
	case <-quit:
		logger.Info("shutting down...")
	case serveErr = <-errc:
		logger.Error("server error", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "addr", srv.Addr, "error", err)
		}
	}
	logger.Info("server stopped")
	return serveErr
}

func newServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      h,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// replay feeds a JSON file of attempts through the gate so the server starts
// with history behind it.
func replay(ctx context.Context, g *orchestrator.Gate, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var attempts []domain.TransactionAttempt
	if err := json.Unmarshal(data, &attempts); err != nil {
		return fmt.Errorf("parse error: %w", err)
	}

	sum := g.Replay(ctx, attempts)
	slog.Info("replay loaded",
		"file", path,
		"recorded", sum.Recorded,
		"queued", sum.Queued,
		"blocked", sum.Blocked,
		"invalid", sum.Invalid,
	)
	return nil
}
