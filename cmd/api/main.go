package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sitewatch/backend/internal/alerts"
	"github.com/sitewatch/backend/internal/attendance"
	"github.com/sitewatch/backend/internal/auth"
	"github.com/sitewatch/backend/internal/config"
	"github.com/sitewatch/backend/internal/database"
	"github.com/sitewatch/backend/internal/fabric"
	"github.com/sitewatch/backend/internal/handlers"
	"github.com/sitewatch/backend/internal/ingest"
)

const (
	offlineSweepEvery = time.Minute
	offlineSilence    = 5 * time.Minute
	retentionEvery    = 24 * time.Hour
)

func main() {
	log.Println("🚀 Starting SiteWatch backend...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}

	store, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := store.Bootstrap(ctx); err != nil {
		log.Fatalf("Schema bootstrap failed: %v", err)
	}

	policy, err := alerts.LoadPolicy(cfg.ThresholdsFile)
	if err != nil {
		log.Fatalf("Threshold policy failed to load: %v", err)
	}

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authSvc := auth.NewService(store, tokens)

	bus := fabric.NewBus()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("REDIS_URL invalid: %v", err)
		}
		bridge := fabric.NewRedisBridge(redis.NewClient(opts), fabric.DefaultBridgeChannel, bus)
		defer bridge.Close()
		log.Println("🌐 Redis event bridge enabled")
	}

	alertMgr := alerts.NewManager(store, bus)
	machine := attendance.NewMachine(time.Local)
	pipeline := ingest.NewPipeline(store, policy, machine, bus)
	sweeper := ingest.NewSweeper(store, bus)

	socket := fabric.NewSocketServer(bus, authSvc, alertMgr, fabric.SocketOptions{
		PingInterval:  cfg.WSPingInterval,
		IdleTimeout:   cfg.WSIdleTimeout,
		AllowedOrigin: cfg.AllowedOrigin,
		Environment:   cfg.Environment,
	})

	api := handlers.New(cfg, store, authSvc, alertMgr, machine, pipeline, bus, socket)

	go offlineSweepLoop(ctx, sweeper)
	go absentSweepLoop(ctx, machine, store, cfg.AttendanceEnd)
	go retentionLoop(ctx, store, cfg)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Listening on :%s (env=%s)", cfg.Port, cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Received shutdown signal, shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

// offlineSweepLoop raises offline alerts for devices that went silent.
func offlineSweepLoop(ctx context.Context, sweeper *ingest.Sweeper) {
	ticker := time.NewTicker(offlineSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sweeper.OfflineSweep(ctx, offlineSilence); err != nil {
				slog.Error("offline sweep failed", "error", err)
			}
		}
	}
}

// absentSweepLoop marks no-show employees absent once per day, shortly
// after the working window closes.
func absentSweepLoop(ctx context.Context, machine *attendance.Machine, store *database.Store, dayEnd time.Duration) {
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
			Add(dayEnd + time.Hour)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
			date := machine.DateOf(next)
			if _, err := machine.Sweep(ctx, store, date); err != nil {
				slog.Error("absent sweep failed", "date", date, "error", err)
			}
		}
	}
}

// retentionLoop prunes old telemetry on the configured windows.
func retentionLoop(ctx context.Context, store *database.Store, cfg *config.Config) {
	ticker := time.NewTicker(retentionEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			if n, err := store.CleanupVitals(ctx, now.AddDate(0, 0, -cfg.VitalsRetentionDays)); err != nil {
				slog.Error("vitals retention failed", "error", err)
			} else if n > 0 {
				slog.Info("vitals retention pruned readings", "count", n)
			}
			if n, err := store.CleanupAlerts(ctx, now.AddDate(0, 0, -cfg.AlertsRetentionDays)); err != nil {
				slog.Error("alerts retention failed", "error", err)
			} else if n > 0 {
				slog.Info("alerts retention pruned alerts", "count", n)
			}
		}
	}
}
