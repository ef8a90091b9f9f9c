package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresvega/loaderd/internal/api"
	"github.com/andresvega/loaderd/internal/config"
	"github.com/andresvega/loaderd/internal/ledger"
	"github.com/andresvega/loaderd/internal/loader"
	"github.com/andresvega/loaderd/internal/logger"
	"github.com/andresvega/loaderd/internal/notify"
	"github.com/andresvega/loaderd/internal/pipeline"
	"github.com/andresvega/loaderd/internal/repository"
	"github.com/andresvega/loaderd/internal/scheduler"
	"github.com/andresvega/loaderd/internal/schema"
	"github.com/andresvega/loaderd/internal/session"
	"github.com/andresvega/loaderd/internal/storage"
	"github.com/andresvega/loaderd/internal/transform"
)

// sessionTTL bounds how long an upload can sit unused before a load.
const sessionTTL = 24 * time.Hour

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog := logger.New(&logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		File:        cfg.Logging.File,
		ServiceName: "loaderd",
	})
	logger.SetDefault(appLog)
	defer logger.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize database")
	}

	store, err := storage.NewStore(&cfg.Storage)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize storage")
	}

	// Repositories and core services
	jobRepo := repository.NewJobRepository(db)
	recordRepo := repository.NewLoadRecordRepository(db)
	transformationRepo := repository.NewTransformationRepository(db)

	sessions := session.NewStore(sessionTTL)
	schemas := schema.NewProvider(db)
	registry := transform.NewRegistry(transformationRepo)
	notifier := notify.New(&cfg.Notify)
	ld := loader.New(db)
	lg := ledger.New(db, recordRepo)

	sched := scheduler.New(jobRepo, cfg.Scheduler.Workers,
		time.Duration(cfg.Scheduler.CleanupAfterDays)*24*time.Hour)
	pipe := pipeline.New(store, sessions, schemas, registry, ld, lg, notifier, jobRepo, cfg.Pipeline.ChunkSize)
	sched.Register(pipeline.JobKindLoad, pipe.Handle)

	ctx := appLog.WithContext(context.Background())
	sched.Start(ctx)

	router := api.SetupRouter(api.Deps{
		DB:       db,
		Store:    store,
		Sessions: sessions,
		Schemas:  schemas,
		Registry: registry,
		Records:  recordRepo,
		Sched:    sched,
		Pipe:     pipe,
		Log:      appLog,
		Mode:     cfg.Server.Mode,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLog.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Error("Server forced to shutdown")
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Error("Scheduler forced to shutdown")
	}

	appLog.Info("Server exited")
}
