package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/events"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/extractor"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/handler"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/pipeline"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/repository"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/service"
	"github.com/cnhflow/cnhflow-backend/internal/cnh/storage"
	"github.com/cnhflow/cnhflow-backend/pkg/auth"
	"github.com/cnhflow/cnhflow-backend/pkg/config"
	"github.com/cnhflow/cnhflow-backend/pkg/database"
	"github.com/cnhflow/cnhflow-backend/pkg/httputil"
	"github.com/cnhflow/cnhflow-backend/pkg/logger"
	"github.com/cnhflow/cnhflow-backend/pkg/messaging"
)

func main() {
	// Load configuration
	cfg, err := config.LoadWithValidation(config.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(config.ServiceName, cfg.Server.Environment).SetLevel(cfg.Server.LogLevel)
	log.Info().Msg("starting CNH extraction service")

	// Extraction pipeline
	opts, err := pipeline.ExtractorOptions(cfg.Extraction)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid extraction configuration")
	}
	roi, err := pipeline.DefaultROI(cfg.OCR)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid OCR configuration")
	}
	registry, engine, err := pipeline.Registry(cfg.Extraction.Producers, cfg.OCR, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build token producers")
	}
	defer engine.Close()
	log.Info().Strs("producers", registry.Names()).Msg("token producers ready")

	store := storage.NewTempStorage(cfg.Storage.JobTTL)
	defer store.Close()

	svc := service.NewService(registry, extractor.New(opts), store, log).
		WithFingerprintKey(cfg.Storage.FingerprintKey).
		WithTimeout(cfg.OCR.Timeout).
		WithDocumentDefaults(cfg.OCR.Zoom, roi)

	sep, err := cfg.Extraction.Separator()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid extraction configuration")
	}
	h := handler.NewHandler(svc, handler.Options{
		ServiceName:   config.ServiceName,
		MaxUploadSize: cfg.Server.MaxUploadSize,
		CSVSeparator:  sep,
	}, log)

	// Audit log (optional)
	if cfg.Database.Enabled {
		db, err := database.New(&cfg.Database, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		auditRepo := repository.NewAuditRepository(db.DB)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = auditRepo.EnsureSchema(ctx)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create audit schema")
		}

		svc.WithAudit(auditRepo)
		h.WithHealthCheck("database", db.Health)
	}

	// Extraction events (optional)
	if cfg.RabbitMQ.Enabled {
		rmq, err := messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		publisher, err := messaging.NewPublisher(rmq, cfg.RabbitMQ.Exchange, config.ServiceName, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}

		svc.WithNotifier(events.NewNotifier(publisher, log))
		h.WithHealthCheck("rabbitmq", func(context.Context) map[string]string { return rmq.Health() })
	}

	// Create router
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(middleware.Timeout(cfg.Server.WriteTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.JWT.Enabled {
			r.Use(httputil.Authenticate(auth.NewManager(&cfg.JWT)))
		} else {
			log.Warn().Msg("jwt disabled, extraction endpoints are unauthenticated")
		}
		h.Routes(r)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := svc.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("extraction jobs still running at shutdown")
	}

	log.Info().Msg("server stopped")
}
