package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kreativelabske/lipia-backend/internal/api"
	"github.com/kreativelabske/lipia-backend/internal/auth"
	"github.com/kreativelabske/lipia-backend/internal/config"
	"github.com/kreativelabske/lipia-backend/internal/db"
	"github.com/kreativelabske/lipia-backend/internal/gateway"
	"github.com/kreativelabske/lipia-backend/internal/logger"
	"github.com/kreativelabske/lipia-backend/internal/metrics"
	"github.com/kreativelabske/lipia-backend/internal/repository/postgres"
	"github.com/kreativelabske/lipia-backend/internal/services"
	"github.com/kreativelabske/lipia-backend/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if os.Getenv("APP_MIGRATE") == "true" {
		if err := db.RunMigrations(ctx, pool); err != nil {
			log.Error("migrations", "err", err)
			os.Exit(1)
		}
	}

	metrics.Init()

	repos := postgres.NewRepositories(pool)
	wp := worker.NewPool(cfg.DispatchWorkers)
	defer wp.Stop()

	gw := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout)
	hook := services.NewWordCreditHook(repos.WordCredits, cfg.Plans)
	paySvc := services.NewPaymentService(repos.Transactions, repos.AuditLogs, gw, hook, wp, cfg)

	// pick up work left over from the previous run
	if err := paySvc.RecoverQueued(ctx); err != nil {
		log.Error("requeue recovery", "err", err)
	}

	go worker.NewReconciler(paySvc, cfg.PollInterval).Run(ctx)
	go worker.NewSweeper(paySvc, cfg.SweepInterval).Run(ctx)

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	r := api.NewRouter(cfg, paySvc, verifier)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
