package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"agent-tracking/internal/api"
	"agent-tracking/internal/config"
	"agent-tracking/internal/modules/geofences"
	"agent-tracking/internal/modules/tracking"
	"agent-tracking/pkg/email"
	"agent-tracking/pkg/notify"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	// 1. --- Configuration ---
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	e := echo.New()

	// 2. --- Middleware ---
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.ClientOrigin},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// 3. --- Database Connection ---
	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to parse database configuration: %v", err)
	}

	dbPool, err := pgxpool.NewWithConfig(context.Background(), dbConfig)
	if err != nil {
		log.Fatalf("Unable to create connection pool: %v", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	e.Logger.Info("Successfully connected to the database!")

	// 4. --- Notification Channels ---
	// Both channels are optional; the pipeline treats notification delivery
	// as best-effort either way.
	var channels []notify.Dispatcher

	if cfg.AmqpURL != "" {
		amqpConn, err := amqp.Dial(cfg.AmqpURL)
		if err != nil {
			log.Fatalf("Unable to connect to RabbitMQ: %v", err)
		}
		defer amqpConn.Close()

		amqpDispatcher, err := notify.NewAmqpDispatcher(amqpConn)
		if err != nil {
			log.Fatalf("Unable to set up AMQP dispatcher: %v", err)
		}
		defer amqpDispatcher.Close()
		channels = append(channels, amqpDispatcher)
	}

	if cfg.SESRegion != "" && cfg.AlertRecipients != "" {
		sender, err := email.NewSESV2Sender(context.Background(), cfg.SESRegion, cfg.SESFromEmail)
		if err != nil {
			log.Fatalf("Unable to set up SES sender: %v", err)
		}
		templates, err := email.NewTemplateManager()
		if err != nil {
			log.Fatalf("Unable to parse email templates: %v", err)
		}
		recipients := strings.Split(cfg.AlertRecipients, ",")
		channels = append(channels, notify.NewEmailAlerter(sender, templates, recipients))
	}

	dispatcher := notify.NewMulti(channels...)

	// 5. --- Dependency Injection (Wiring everything up) ---
	rootCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	// --- Tracking Module ---
	store := tracking.NewRepository(dbPool)
	sessions := tracking.NewSessionManager(store)
	evaluator := tracking.NewGeofenceEvaluator(store)
	registry := tracking.NewGeofenceRegistry(store)
	if err := registry.Refresh(rootCtx); err != nil {
		log.Printf("WARN: initial geofence load failed, starting with an empty set: %v", err)
	}
	go registry.Run(rootCtx, cfg.GeofenceRefreshInterval)

	trackingService := tracking.NewService(store, dispatcher, sessions, evaluator, registry, cfg.StoreTimeout, cfg.NotifyTimeout)
	trackingHandler := tracking.NewHandler(trackingService)

	// Stale-session janitor: ACTIVE sessions that stop pinging get completed
	// eventually instead of lingering forever.
	go func() {
		ticker := time.NewTicker(cfg.StaleSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-rootCtx.Done():
				return
			case <-ticker.C:
				closed, err := sessions.CloseStale(rootCtx, cfg.SessionIdleCutoff)
				if err != nil {
					log.Printf("WARN: stale session sweep failed: %v", err)
				} else if closed > 0 {
					log.Printf("stale session sweep completed %d sessions", closed)
				}
			}
		}
	}()

	// --- Geofence Admin Module ---
	geofenceRepo := geofences.NewRepository(dbPool)
	geofenceService := geofences.NewService(geofenceRepo, registry)
	geofenceHandler := geofences.NewHandler(geofenceService)

	// 6. --- Initialize Router ---
	api.SetupRoutes(e, trackingHandler, geofenceHandler, cfg.JWTSecret)

	// 7. --- Start Server with graceful shutdown logic ---
	go func() {
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server an error occurred:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal("Server forced to shutdown:", err)
	}
	log.Println("Server exiting")
}
