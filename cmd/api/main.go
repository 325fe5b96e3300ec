package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"apsplan/internal/api"
	"apsplan/internal/buildinfo"
	"apsplan/internal/config"
	"apsplan/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvDeps, err := api.NewServer(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}
	metrics.RegisterDefault()

	mux := http.NewServeMux()

	// Scheduling
	mux.HandleFunc("/v1/schedule", srvDeps.ScheduleHandler)
	mux.HandleFunc("/v1/duration", srvDeps.DurationHandler)
	mux.HandleFunc("/v1/lines", srvDeps.LinesHandler)
	mux.HandleFunc("/v1/wire-rate", srvDeps.WireRateHandler)

	// Run history and live events
	mux.HandleFunc("/v1/runs", srvDeps.RunsIndexHandler)
	mux.HandleFunc("/v1/runs/", srvDeps.RunByIDHandler) // includes /stream and /ws

	// Subscriptions
	mux.HandleFunc("/v1/subscriptions", srvDeps.SubscriptionsHandler)
	mux.HandleFunc("/v1/subscriptions/", srvDeps.SubscriptionByIDHandler)

	// Admin
	mux.HandleFunc("/v1/admin/scheduler/config", srvDeps.AdminSchedulerConfigHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries", srvDeps.WebhookDeliveriesHandler)
	mux.HandleFunc("/v1/admin/webhook-deliveries/", srvDeps.WebhookDeliveryRetryHandler)

	// Health and introspection
	mux.HandleFunc("/healthz", srvDeps.HealthHandler)
	mux.HandleFunc("/readyz", srvDeps.ReadyHandler)
	mux.HandleFunc("/debug/vars.json", srvDeps.DebugJSON)
	mux.Handle("/metrics", metrics.Handler())

	limiter := api.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, srvDeps.RateKey)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           logMiddleware(api.Instrument(limiter.Middleware(mux))),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go srvDeps.NewWebhookWorker().Run(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	info := buildinfo.Info()
	log.Printf("API listening on %s version=%s commit=%s lines=%d", cfg.Addr(), info["version"], info["commit"], len(srvDeps.Catalog.Lines()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	log.Printf("API stopped")
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start))
	})
}
