package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gluk-w/termhub/internal/config"
	"github.com/gluk-w/termhub/internal/database"
	"github.com/gluk-w/termhub/internal/handlers"
	"github.com/gluk-w/termhub/internal/healthcheck"
	"github.com/gluk-w/termhub/internal/inventory"
	"github.com/gluk-w/termhub/internal/logging"
	"github.com/gluk-w/termhub/internal/metrics"
	"github.com/gluk-w/termhub/internal/termsession"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	config.Load()
	logging.Init()
	defer logging.Shutdown()

	if err := database.Init(); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	if err := inventory.Init(ctx); err != nil {
		log.Printf("WARNING: %v", err)
	}

	auditor := database.NewAuditor(database.DB, 0)
	registry := termsession.NewRegistry(
		&termsession.WSDialer{Backend: config.Cfg.TerminalBackend},
		termsession.RegistryConfig{
			HistoryLines:     config.Cfg.TerminalHistoryLines,
			RecordingEnabled: config.Cfg.TerminalRecording,
			RecordingEntries: config.Cfg.TerminalRecordingEntries,
			MaxSessions:      config.Cfg.MaxSessions,
			HandshakeTimeout: config.Cfg.HandshakeTimeout,
		},
		termsession.Observers{metrics.NewRecorder(), auditor},
	)
	handlers.Registry = registry
	log.Printf("Session registry initialized (backend=%s, history=%d lines, recording=%v, max_sessions=%d)",
		config.Cfg.TerminalBackend, config.Cfg.TerminalHistoryLines, config.Cfg.TerminalRecording, config.Cfg.MaxSessions)

	prober := healthcheck.NewProber(config.Cfg.TerminalBackend, registry)
	if err := prober.Start(config.Cfg.HealthSchedule); err != nil {
		log.Fatalf("Health prober: %v", err)
	}
	if err := prober.AddJob("@daily", "history prune", func() {
		cutoff := time.Now().Add(-config.Cfg.HistoryRetention)
		n, err := database.PruneSessionHistory(database.DB, cutoff)
		if err != nil {
			log.Printf("[history] prune failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("[history] pruned %d session records older than %s", n, cutoff.Format(time.RFC3339))
		}
	}); err != nil {
		log.Printf("WARNING: history prune job: %v", err)
	}
	handlers.Prober = prober

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Handle("/metrics", promhttp.Handler())
	handlers.Mount(r)

	// Graceful shutdown
	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: r,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	prober.Stop()
	registry.CloseAll()
	auditor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
