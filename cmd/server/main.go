package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"igo/internal/network"
	"igo/internal/session"
	"igo/internal/store"
	"igo/pkg/config"
	"igo/pkg/logger"
)

var (
	addr       = flag.String("addr", "", "http service address (overrides config)")
	configFile = flag.String("config", "config.yml", "path to config file")
	logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
	showCaller = flag.Bool("show-caller", false, "show caller information in logs")
	migrate    = flag.Bool("migrate", true, "apply database migrations on startup")
)

// Simple handler for home page
func homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"name": "igo game server", "version": "1.0.0", "status": "running"}`)
}

// Health check handler
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "healthy"}`)
}

func main() {
	flag.Parse()

	logger.InitLoggers(logger.ParseLevel(*logLevel), *showCaller)
	serverLogger := logger.ServerLogger

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		serverLogger.Warn("Could not load config file %s: %v", *configFile, err)
		serverLogger.Info("Using default configuration")
		cfg = config.Default()
	} else {
		serverLogger.Info("Loaded configuration from %s", *configFile)
	}

	serverAddr := cfg.GetAddr()
	if *addr != "" {
		serverAddr = *addr
	}

	serverLogger.Info("Starting igo game server on %s", serverAddr)
	serverLogger.Info("Environment: %s", cfg.Server.Environment)

	// The server id must be stable across restarts of this host and
	// distinct from every other server's; refuse to start without it.
	serverID, err := store.LoadServerID(cfg.Server.MachineIDPath)
	if err != nil {
		serverLogger.Fatal("Failed to load server id: %v", err)
	}
	serverLogger.Info("Server id: %s", serverID[:12])

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dsn := cfg.Database.DSN()
	if *migrate {
		if err := store.RunMigrations(ctx, dsn); err != nil {
			serverLogger.Fatal("Failed to run migrations: %v", err)
		}
		serverLogger.Info("Database migrations applied")
	}

	st, err := store.New(ctx, dsn, serverID, cfg.Database.MaxConnections, logger.StoreLogger)
	if err != nil {
		serverLogger.Fatal("Failed to connect to database: %v", err)
	}
	defer st.Close()

	// Crash recovery: release whatever keys a previous incarnation of this
	// server still holds, before any client can connect.
	if err := st.Cleanup(ctx); err != nil {
		serverLogger.Fatal("Failed to run startup cleanup: %v", err)
	}

	var trigger session.AITrigger
	if cfg.AI.ServerURL != "" {
		aiClient, err := session.NewAIServerClient(cfg.AI.ServerURL, logger.SessionLogger)
		if err != nil {
			serverLogger.Fatal("Failed to create AI server client: %v", err)
		}
		trigger = aiClient
		serverLogger.Info("AI games enabled via %s", cfg.AI.ServerURL)
	} else {
		serverLogger.Warn("No AI server configured; vs=computer games will have no opponent")
	}

	manager := session.NewManager(st, trigger, logger.SessionLogger)
	st.SetRecoveryHook(manager.RecoverOwnership)

	frontend := network.NewFrontend(manager, cfg.WebSocket, logger.ServerLogger)

	router := mux.NewRouter()
	router.HandleFunc("/", homeHandler)
	router.HandleFunc("/health", healthHandler)
	router.HandleFunc("/websocket", frontend.HandleWebSocket)

	srv := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		IdleTimeout: 120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return st.Run(gctx)
	})

	g.Go(func() error {
		return manager.Run(gctx)
	})

	g.Go(func() error {
		serverLogger.Info("Server listening on %s", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		serverLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			serverLogger.Warn("Server forced to shutdown: %v", err)
		}
		// drain pending updates, then release every key this server holds
		manager.Shutdown(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		serverLogger.Fatal("Server exited with error: %v", err)
	}

	serverLogger.Info("Server gracefully stopped")
}
