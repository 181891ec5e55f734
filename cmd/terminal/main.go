package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"warungpos/terminal/internal/catalog"
	"warungpos/terminal/internal/clock"
	"warungpos/terminal/internal/config"
	"warungpos/terminal/internal/connectivity"
	"warungpos/terminal/internal/coordinator"
	"warungpos/terminal/internal/domain"
	"warungpos/terminal/internal/httpapi"
	"warungpos/terminal/internal/outbox"
	"warungpos/terminal/internal/remote"
	"warungpos/terminal/internal/session"
	"warungpos/terminal/internal/store"
	"warungpos/terminal/internal/store/memory"
	sqlitestore "warungpos/terminal/internal/store/sqlite"
	"warungpos/terminal/internal/syncer"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := validateConfig(cfg); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := session.New(cfg.SessionToken, cfg.TenantID, cfg.BranchID, cfg.TerminalID)
	if err != nil {
		logger.Fatal("invalid session token", zap.Error(err))
	}
	if sess.Expired(time.Now()) {
		logger.Warn("session token is expired, remote submissions will be rejected until re-login")
	}

	closers := make([]func() error, 0, 3)

	var repo store.Repository
	if cfg.DataPath != "" {
		sq, err := sqlitestore.New(cfg.DataPath)
		if err != nil {
			logger.Fatal("open terminal store", zap.String("path", cfg.DataPath), zap.Error(err))
		}
		repo = sq
		closers = append(closers, sq.Close)
		logger.Info("store: sqlite", zap.String("path", cfg.DataPath))
	} else {
		repo = memory.New()
		logger.Warn("store: in-memory, queued sales will not survive a restart; set DATA_PATH for durability")
	}

	var coord coordinator.Coordinator
	if cfg.RedisAddr != "" {
		rc := coordinator.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, sess.ScopeID(), logger)
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		err := rc.Ping(pingCtx)
		pingCancel()
		if err != nil {
			logger.Warn("redis unavailable, falling back to single-process coordination", zap.Error(err))
			_ = rc.Close()
			coord = coordinator.NewLocal()
		} else {
			rc.Start()
			coord = rc
			closers = append(closers, rc.Close)
			logger.Info("coordinator: redis", zap.String("scope", sess.ScopeID()))
		}
	} else {
		coord = coordinator.NewLocal()
		logger.Info("coordinator: local")
	}

	client := remote.NewClient(cfg.RemoteBaseURL, sess.Token, time.Duration(cfg.TimeoutSeconds)*time.Second, logger)
	clk := clock.System()

	cache := catalog.NewCache(repo, sess.CatalogKey(), logger)
	needsResync := false
	if err := cache.Load(ctx); err != nil {
		if errors.Is(err, store.ErrCorrupted) {
			needsResync = true
		} else {
			logger.Fatal("load catalog", zap.Error(err))
		}
	}

	ob := outbox.New(repo, sess.OutboxKey(), cfg.MaxAttempts, clk, logger)
	if err := ob.Recover(ctx); err != nil {
		// A corrupted outbox is a data-loss risk for queued sales; refuse to
		// start rather than silently dropping them.
		logger.Fatal("recover outbox, pending sales unreadable", zap.Error(err))
	}

	monitor := connectivity.NewMonitor(client, time.Duration(cfg.HoldSeconds)*time.Second, clk, logger)
	refresher := catalog.NewRefresher(client, cache, clk, logger)
	dispatcher := syncer.New(ob, client, monitor, coord, sess.SessionID, clk, logger, syncer.Options{
		DrainInterval: time.Duration(cfg.DrainIntervalSeconds) * time.Second,
	})

	refreshTrigger := make(chan struct{}, 1)
	requestRefresh := func() {
		select {
		case refreshTrigger <- struct{}{}:
		default:
		}
	}

	// Reconnecting both kicks the dispatcher and refreshes the catalog.
	monitor.OnChange(func(state domain.ConnectivityState) {
		if state == domain.StateOnline {
			dispatcher.Trigger()
			requestRefresh()
		}
	})

	go monitor.Run(ctx, time.Duration(cfg.ProbeIntervalSeconds)*time.Second)
	go dispatcher.Run(ctx)
	go refresher.Run(ctx, time.Duration(cfg.CatalogRefreshMinutes)*time.Minute, refreshTrigger)

	if needsResync {
		requestRefresh()
	}

	// A completion signal from any process (this one included) means local
	// state changed: re-read the catalog snapshot. Observers never re-enqueue
	// or re-dispatch off a signal.
	coord.Subscribe(func(coordinator.Signal) {
		if err := cache.Load(ctx); err != nil {
			logger.Warn("reload catalog after signal", zap.Error(err))
		}
	})

	api := httpapi.New(cache, ob, monitor, dispatcher, refresher, cfg.AllowedOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("terminal agent listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
	cancel()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Warn("close error", zap.Error(err))
		}
	}
	logger.Info("terminal agent stopped")
}

func validateConfig(cfg config.Config) error {
	if cfg.RemoteBaseURL == "" {
		return fmt.Errorf("REMOTE_BASE_URL must be set")
	}
	if cfg.TenantID == "" || cfg.BranchID == "" {
		return fmt.Errorf("TENANT_ID and BRANCH_ID must be set")
	}
	if cfg.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be at least 1")
	}
	return nil
}
