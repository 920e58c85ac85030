package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/payment-lifecycle/internal"
	"github.com/frahmantamala/payment-lifecycle/internal/core/events"
	"github.com/frahmantamala/payment-lifecycle/internal/gateway"
	"github.com/frahmantamala/payment-lifecycle/internal/payment"
	paymentrepo "github.com/frahmantamala/payment-lifecycle/internal/payment/postgres"
	"github.com/frahmantamala/payment-lifecycle/internal/tenant"
	"github.com/frahmantamala/payment-lifecycle/internal/transport"
	"github.com/frahmantamala/payment-lifecycle/internal/transport/rest"
	"github.com/frahmantamala/payment-lifecycle/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server for lifecycle operations and gateway callbacks`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config         *internal.Config
	DB             *sqlx.DB
	Router         *chi.Mux
	PaymentHandler *payment.Handler
	WebhookHandler *payment.WebhookHandler
	Reconciler     *payment.Reconciler
	Logger         *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}

	rest.RegisterAllRoutes(deps.Router, deps.DB.DB, deps.PaymentHandler, deps.WebhookHandler, deps.Logger)

	reconcilerCtx, stopReconciler := context.WithCancel(context.Background())
	defer stopReconciler()
	deps.Reconciler.Start(reconcilerCtx)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)

		stopReconciler()
		deps.Reconciler.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("database close error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			deps.Logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}

	deps.Logger.Info("server stopped")
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	appLogger := logger.LoggerWrapper()

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// gorm rides the same pgx connection pool the health check pings
	gormDB, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: db.DB}), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	registry, err := tenant.NewRegistry(config.Tenants)
	if err != nil {
		return nil, fmt.Errorf("failed to build tenant registry: %w", err)
	}

	paylinkClient := gateway.NewPaylinkClient(gateway.PaylinkConfig{
		BaseURL:        config.Gateway.BaseURL,
		RequestTimeout: config.Gateway.RequestTimeout,
		MaxRetries:     config.Gateway.MaxRetries,
	}, appLogger)

	eventBus := events.NewEventBus(appLogger)
	repo := paymentrepo.NewPaymentRepository(gormDB)

	paymentService := payment.NewService(repo, paylinkClient, registry, eventBus, config.Server.BaseURL, appLogger)

	baseHandler := transport.NewBaseHandler(appLogger)
	paymentHandler := payment.NewHandler(paymentService, appLogger)
	webhookHandler := payment.NewWebhookHandler(baseHandler, paymentService, paylinkClient, registry, config.Gateway.CallbackBudget, appLogger)
	reconciler := payment.NewReconciler(paymentService, config.Reconciliation, appLogger)

	return &Dependencies{
		Config:         config,
		DB:             db,
		Router:         chi.NewRouter(),
		PaymentHandler: paymentHandler,
		WebhookHandler: webhookHandler,
		Reconciler:     reconciler,
		Logger:         appLogger,
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
