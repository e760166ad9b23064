package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pesio-ai/be-inventory/internal/auth"
	"github.com/pesio-ai/be-inventory/internal/client"
	"github.com/pesio-ai/be-inventory/internal/config"
	"github.com/pesio-ai/be-inventory/internal/database"
	"github.com/pesio-ai/be-inventory/internal/flows"
	"github.com/pesio-ai/be-inventory/internal/handler"
	"github.com/pesio-ai/be-inventory/internal/logger"
	"github.com/pesio-ai/be-inventory/internal/metrics"
	"github.com/pesio-ai/be-inventory/internal/middleware"
	"github.com/pesio-ai/be-inventory/internal/repository"
	"github.com/pesio-ai/be-inventory/internal/service"
	"github.com/pesio-ai/be-inventory/internal/session"
	"github.com/pesio-ai/be-inventory/internal/telemetry"
	"github.com/pesio-ai/be-inventory/internal/workflow"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "be-inventory",
		Short:         "Inventory service with guided supplier and item dialogs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("INVENTORY_CONFIG"), "path to a YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(configPath)
		},
	})
	return root
}

func setup(configPath string) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})
	return cfg, log, nil
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*database.DB, error) {
	return database.New(ctx, database.Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		User:           cfg.User,
		Password:       cfg.Password,
		Database:       cfg.Database,
		SSLMode:        cfg.SSLMode,
		MaxConns:       cfg.MaxConns,
		MinConns:       cfg.MinConns,
		MaxConnTime:    cfg.MaxConnTime,
		MaxIdleTime:    cfg.MaxIdleTime,
		HealthCheck:    cfg.HealthCheck,
		ConnectTimeout: cfg.ConnectTimeout,
	}, log.Component("database"))
}

func migrate(configPath string) error {
	cfg, log, err := setup(configPath)
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := openDatabase(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	applied, err := db.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	log.Info().Strs("files", applied).Msg("Migrations applied")
	return nil
}

func serve(configPath string) error {
	cfg, log, err := setup(configPath)
	if err != nil {
		return err
	}

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Bool("demo_mode", cfg.Workflow.DemoMode).
		Msg("Starting Inventory Service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Stdout:      cfg.Telemetry.Stdout,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
		Environment: cfg.Service.Environment,
	})
	if err != nil {
		return err
	}

	// Initialize database
	db, err := openDatabase(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	if cfg.Database.MigrateOnStart {
		applied, err := db.Migrate(ctx)
		if err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
		log.Info().Strs("files", applied).Msg("Migrations applied")
	}

	// Initialize repositories and services
	inventoryService := service.NewInventoryService(
		repository.NewSupplierRepository(db),
		repository.NewItemRepository(db),
		repository.NewAuditRepository(db),
		log,
	)

	// Notification and refresh publishers; an empty URL leaves both disabled
	nc, err := client.Connect(cfg.NATS.URL, cfg.Service.Name, cfg.NATS.ConnectWait, log.Component("nats"))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	var publisher client.Publisher
	if nc != nil {
		defer nc.Drain()
		publisher = nc
	}
	notifier := client.NewNotificationPublisher(publisher, cfg.NATS.SubjectPrefix, log.Component("notifications"))
	refresher := client.NewRefreshPublisher(publisher, cfg.NATS.SubjectPrefix, log.Component("refresh"))

	m := metrics.New()

	// Guided dialogs
	orchestrator := workflow.NewOrchestrator(workflow.Dependencies{
		Notifier:  notifier,
		Refresher: refresher,
		Observer:  m,
		Logger:    log.Logger,
	})
	registry, err := flows.NewRegistry(inventoryService, flows.Config{
		MinSearchLength: cfg.Workflow.MinSearchLength,
		SearchLimit:     cfg.Workflow.SearchLimit,
		Debounce:        cfg.Workflow.Debounce,
	})
	if err != nil {
		return fmt.Errorf("failed to build dialog flows: %w", err)
	}
	store := session.NewStore(registry, orchestrator, session.Config{
		TTL:         cfg.Workflow.SessionTTL,
		MaxSessions: cfg.Workflow.MaxSessions,
		Session: workflow.SessionConfig{
			LookupTimeout: cfg.Workflow.LookupTimeout,
			CommitTimeout: cfg.Workflow.CommitTimeout,
		},
	}, log.Component("sessions"))
	defer store.Close()
	m.RegisterSessionGauge(store.Len)

	log.Info().Strs("flows", registry.Names()).Msg("Dialog flows registered")

	// Setup HTTP routes
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		status, code := "healthy", http.StatusOK
		if err := db.Ping(r.Context()); err != nil {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":    status,
			"sessions":  store.Len(),
			"demo_mode": cfg.Workflow.DemoMode,
		})
	})
	mux.Handle("GET /metrics", m.Handler())
	handler.NewHTTPHandler(inventoryService, log.Component("http")).Register(mux)
	handler.NewDialogHandler(store, log.Component("dialogs")).Register(mux)

	// Apply middleware
	var h http.Handler = mux
	h = auth.Middleware(cfg.Workflow.DemoMode)(h)
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS(cfg.Server.AllowedOrigins)(h)
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// gRPC server
	grpcServer, healthServer := handler.NewGRPCServer(
		handler.NewGRPCHandler(inventoryService, log.Component("grpc")),
		handler.GRPCOptions{Reflection: cfg.GRPC.Reflection, DemoMode: cfg.Workflow.DemoMode},
		log.Component("grpc"),
	)
	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		return fmt.Errorf("failed to create gRPC listener: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Int("port", cfg.GRPC.Port).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("gRPC server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		handler.WatchHealth(gctx, healthServer, db, cfg.Database.HealthCheck, log.Component("health"))
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
		stopGRPC(grpcServer.GracefulStop, grpcServer.Stop, cfg.Server.ShutdownTimeout)
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Tracer shutdown failed")
		}
		return nil
	})

	err = g.Wait()
	log.Info().Msg("Server stopped")
	return err
}

// stopGRPC waits up to timeout for in-flight calls, then forces the stop
func stopGRPC(graceful, force func(), timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		graceful()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		force()
	}
}
