package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"SocialPublisher/config"
	"SocialPublisher/database"
	"SocialPublisher/handlers"
	"SocialPublisher/middleware"
	"SocialPublisher/publishers"
	"SocialPublisher/services"
	"SocialPublisher/utils"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := config.Load()
	utils.SetLogLevel(cfg.LogLevel)

	cipher, err := utils.NewTokenCipher(cfg.TokenEncryptionKey)
	if err != nil {
		utils.Fatalf("credential cipher: %v", err)
	}
	if !cipher.Enabled() {
		utils.Warnf("TOKEN_ENCRYPTION_KEY is empty, account credentials are stored in clear text")
	}

	db, err := database.NewDatabase(cfg.DatabaseURL, cipher)
	if err != nil {
		utils.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	scheduler := newScheduler(cfg, db, registry)
	authService := services.NewAuthService(cfg.JWTSecret)
	limiter := middleware.NewRateLimiter(cfg.AdminRateLimitRPS, cfg.AdminRateLimitBurst)

	handler := handlers.NewHandler(scheduler, db)
	r := setupRoutes(handler, authService, limiter, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SchedulerAutostart {
		if err := scheduler.Start(); err != nil {
			utils.Fatalf("scheduler start: %v", err)
		}
	} else if active, err := scheduler.AutoManage(ctx); err != nil {
		utils.Warnf("scheduler auto-manage failed: %v", err)
	} else {
		utils.Infof("scheduler auto-managed active=%t", active)
	}

	go cleanupVisitors(ctx, limiter)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.Infof("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	utils.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Warnf("http shutdown: %v", err)
	}
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		utils.Warnf("scheduler pass still running at shutdown: %v", err)
	}
}

func newScheduler(cfg *config.Config, db *database.Database, reg prometheus.Registerer) *services.Scheduler {
	opts := publishers.ClientOptions{
		Timeout:    cfg.HTTPTimeout,
		MaxRetries: cfg.HTTPMaxRetries,
	}

	registry := publishers.NewRegistry(
		publishers.NewTwitterPublisher(cfg.TwitterAPIURL, opts),
		publishers.NewFacebookPublisher(cfg.GraphAPIURL, opts),
		publishers.NewInstagramPublisher(publishers.InstagramConfig{
			GraphURL:     cfg.GraphAPIURL,
			PollInterval: cfg.InstagramPollInterval,
			ImageMaxWait: cfg.InstagramImageMaxWait,
			VideoMaxWait: cfg.InstagramVideoMaxWait,
		}, opts),
	)

	publisher := services.NewPublisherService(registry, cfg.PublishTimeout)
	cache := services.NewHealthCache(publisher.ValidateAccount, services.HealthCacheConfig{
		HealthyTTL:   cfg.HealthyCacheTTL,
		ErrorTTL:     cfg.ErrorCacheTTL,
		CheckTimeout: cfg.HealthCheckTimeout,
	})
	stats := services.NewStats(reg)

	processor := services.NewBatchProcessor(db, publisher, cache, stats, services.BatchProcessorConfig{
		Policy:       services.NewPolicy(cfg.RateLimitDelay, cfg.NetworkDelay),
		UnknownGrace: cfg.UnknownErrorGrace,
		Usage:        db,
	})

	return services.NewScheduler(db, processor, cache, stats, services.SchedulerConfig{
		Interval: cfg.SchedulerInterval,
		Workers:  cfg.SchedulerWorkers,
	})
}

func setupRoutes(h *handlers.Handler, authService *services.AuthService, limiter *middleware.RateLimiter, metrics http.Handler) *mux.Router {
	r := mux.NewRouter()

	// Public routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.Handle("/metrics", metrics).Methods("GET")

	// Protected routes
	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(limiter.Limit())
	protected.Use(middleware.AuthMiddleware(authService))

	protected.HandleFunc("/scheduler/stats", h.GetSchedulerStats).Methods("GET")
	protected.HandleFunc("/scheduler/report", h.GetPublishingReport).Methods("GET")

	protected.HandleFunc("/media", h.RegisterMedia).Methods("POST")
	protected.HandleFunc("/posts", h.SchedulePost).Methods("POST")
	protected.HandleFunc("/posts/{id}/retry", h.RetryPost).Methods("POST")

	// Admin routes
	admin := protected.PathPrefix("/scheduler").Subrouter()
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/start", h.StartScheduler).Methods("POST")
	admin.HandleFunc("/stop", h.StopScheduler).Methods("POST")
	admin.HandleFunc("/trigger", h.TriggerScheduler).Methods("POST")
	admin.HandleFunc("/stats/reset", h.ResetSchedulerStats).Methods("POST")
	admin.HandleFunc("/auto-manage", h.AutoManageScheduler).Methods("POST")

	return r
}

func cleanupVisitors(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(3 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Cleanup(5 * time.Minute)
		}
	}
}
