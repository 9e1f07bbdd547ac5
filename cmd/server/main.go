package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zimkada/BarTender-sub004/internal/audit"
	"github.com/Zimkada/BarTender-sub004/internal/cache"
	"github.com/Zimkada/BarTender-sub004/internal/config"
	"github.com/Zimkada/BarTender-sub004/internal/httpapi"
	"github.com/Zimkada/BarTender-sub004/internal/logger"
	"github.com/Zimkada/BarTender-sub004/internal/service"
	"github.com/Zimkada/BarTender-sub004/internal/store"
	"github.com/Zimkada/BarTender-sub004/internal/store/memory"
	pgstore "github.com/Zimkada/BarTender-sub004/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}

	lg, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.LogDevelopment})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()

	if cfg.ManagerPIN == "" {
		lg.Warnw("MANAGER_PIN is not set; sale cancel and consignment forfeit are disabled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			lg.Fatalw("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", "error", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			lg.Fatalw("apply schema", "error", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		lg.Infow("repository ready", "backend", "postgres")
	} else {
		repo = memory.NewSeeded()
		lg.Infow("repository ready", "backend", "memory")
	}

	var stats cache.StatsCache = cache.NoopStatsCache{}
	var sink audit.Sink = audit.NewLogSink(lg)
	if cfg.RedisAddr != "" {
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		redisCache := cache.NewRedisStatsCache(client, "")
		if err := redisCache.Ping(ctx); err != nil {
			lg.Warnw("redis unavailable, statistics are not cached", "error", err)
			_ = client.Close()
		} else {
			stats = redisCache
			sink = audit.Multi{sink, audit.NewRedisStreamSink(client, cfg.AuditStream, 0)}
			closers = append(closers, redisCache.Close)
			lg.Infow("cache ready", "backend", "redis", "audit_stream", cfg.AuditStream)
		}
	}

	svc, err := service.New(repo, service.Options{
		Venue:             cfg.VenueSettings(),
		Audit:             sink,
		Stats:             stats,
		StatsTTL:          cfg.StatsTTL,
		LowStockThreshold: cfg.LowStockDefault,
		Logger:            lg,
	})
	if err != nil {
		lg.Fatalw("service", "error", err)
	}
	auth, err := httpapi.NewAuthManager(cfg.AuthSecret, cfg.ManagerPIN)
	if err != nil {
		lg.Fatalw("auth", "error", err)
	}
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin:     cfg.AllowedOrigin,
		RequestsPerMinute: cfg.RequestsPerMin,
		Production:        cfg.Production,
		Logger:            lg,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		lg.Infow("bar ledger listening",
			"addr", cfg.Address(),
			"mode", cfg.OperatingMode,
			"close_hour", cfg.CloseHour,
			"timezone", cfg.Location().String(),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatalw("server error", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownDeadline)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Warnw("shutdown error", "error", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			lg.Warnw("close error", "error", err)
		}
	}

	lg.Info("server stopped")
}

// validateSecurityConfig checks the secrets. An empty MANAGER_PIN is
// allowed and leaves the PIN-gated endpoints disabled.
func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.ManagerPIN == "" {
		return nil
	}
	if len(cfg.ManagerPIN) < 6 {
		return fmt.Errorf("MANAGER_PIN must be at least 6 digits")
	}
	for _, r := range cfg.ManagerPIN {
		if r < '0' || r > '9' {
			return fmt.Errorf("MANAGER_PIN must contain digits only")
		}
	}
	if err := validatePINStrength(cfg.ManagerPIN); err != nil {
		return fmt.Errorf("MANAGER_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that repeat one digit, run in sequence,
// or appear on a short list of common choices.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"121212": true, "112233": true, "123123": true, "101010": true,
		"696969": true, "159753": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}

	return nil
}
