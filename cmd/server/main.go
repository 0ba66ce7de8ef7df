// NetFortress backs up network device configurations to Gitea.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agncf/netfortress/internal/backup"
	"github.com/agncf/netfortress/internal/config"
	"github.com/agncf/netfortress/internal/database"
	"github.com/agncf/netfortress/internal/gitea"
	"github.com/agncf/netfortress/internal/handler"
	"github.com/agncf/netfortress/internal/inventory"
	"github.com/agncf/netfortress/internal/middleware"
	"github.com/agncf/netfortress/internal/repository"
	"github.com/agncf/netfortress/internal/scheduler"
	"github.com/agncf/netfortress/internal/secrets"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(cfg.Database); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	logger.Info("database ready")

	cipher, err := secrets.NewCipher(cfg.Credentials.FernetKey)
	if err != nil {
		log.Fatalf("invalid FERNET_KEY: %v", err)
	}

	sites := repository.NewSiteRepository(db.Pool())
	credentials := repository.NewCredentialRepository(db.Pool())
	devices := repository.NewDeviceRepository(db.Pool())
	jobs := repository.NewJobRepository(db.Pool())
	schedules := repository.NewScheduleRepository(db.Pool())

	// Jobs left running by a previous process can never finish.
	if orphaned, err := jobs.ReconcileOrphans(context.Background()); err != nil {
		logger.Error("failed to reconcile orphaned jobs", "error", err)
	} else if len(orphaned) > 0 {
		logger.Warn("marked orphaned jobs as failed", "job_ids", orphaned)
	}

	giteaClient := gitea.NewClient(&cfg.Gitea)
	bus := backup.NewBus()
	resolver := inventory.NewResolver(cipher, cfg.Credentials.NetUserGlobal, cfg.Credentials.NetPassGlobal)
	snapshotter := inventory.NewSnapshotter(devices, resolver)
	engine := backup.NewEngine(jobs, snapshotter, giteaClient, bus, &cfg.Backup)

	sched := scheduler.New(schedules, devices, jobs, engine)
	if err := sched.Start(context.Background()); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}

	inventoryHandler := handler.NewInventoryHandler(sites, credentials, devices, cipher)
	backupHandler := handler.NewBackupHandler(jobs, devices, sites, bus, engine, giteaClient, cfg.Gitea.Org)
	scheduleHandler := handler.NewScheduleHandler(schedules, sched)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, `{"status":"unhealthy"}`)
			return
		}
		fmt.Fprint(w, `{"status":"ok"}`)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// The SSE event stream holds its connection open, so the request
		// timeout applies to the plain JSON routes only.
		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(30 * time.Second))
			r.Mount("/", inventoryHandler.Routes())
			r.Mount("/schedules", scheduleHandler.Routes())
		})
		r.Mount("/backups", backupHandler.Routes())
	})

	srv := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		// WriteTimeout stays unset so SSE streams are not cut off.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Let in-flight cron-triggered jobs finish before the HTTP drain.
	<-sched.Stop().Done()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}

	logger.Info("server stopped")
}

func logLevel(name string) slog.Level {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
