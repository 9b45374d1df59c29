// Package main initializes and starts the FinSync server: configuration,
// logging, database, the realtime change feed, services, and the HTTP
// and websocket surface.
package main

import (
	"cmp"
	"context"
	"fmt"
	"time"

	nethttp "net/http"

	"github.com/avoronova/FinSync/internal/assistant"
	"github.com/avoronova/FinSync/internal/config"
	"github.com/avoronova/FinSync/internal/db"
	"github.com/avoronova/FinSync/internal/logger"
	"github.com/avoronova/FinSync/internal/realtime"
	"github.com/avoronova/FinSync/internal/repository"
	"github.com/avoronova/FinSync/internal/server/handler/http"
	"github.com/avoronova/FinSync/internal/service"
	"github.com/avoronova/FinSync/internal/store"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()
	addr := options.Port

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init("Info"); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	if options.JWTSecret == "" {
		zapLogger.Fatal("JWT secret is required (-secret or JWT_SECRET)")
	}
	secret := []byte(options.JWTSecret)

	// Initialize PostgreSQL connection and schema.
	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}

	// Repair orphaned public mirrors in the background.
	db.StartMirrorSweeper(context.Background(), postgresDB,
		time.Duration(options.SweepIntervalMinutes)*time.Minute,
		zapLogger,
	)

	// Document storage plus the LISTEN/NOTIFY change feed driving
	// realtime subscriptions.
	docs := repository.NewPostgresDocumentStore(postgresDB)
	feed, err := repository.ConnectFeed(options.DatabaseDSN, zapLogger)
	if err != nil {
		zapLogger.Fatal("cannot connect change feed", zap.Error(err))
	}
	manager := realtime.NewManager(docs, feed, zapLogger)
	entityStore := store.New()

	// Initialize business-logic services.
	mirrorService := service.NewMirrorService(docs, zapLogger)
	crudService := service.NewCRUDService(docs, mirrorService, zapLogger)
	adoptionService := service.NewAdoptionService(docs, zapLogger)
	assistantClient := assistant.NewClient(options.AssistantURL, 30*time.Second)
	chatService := service.NewChatService(docs, assistantClient, crudService, zapLogger)

	// Create the HTTP and websocket handlers.
	loadTimeout := time.Duration(options.LoadTimeoutSeconds) * time.Second
	handlers := http.Handlers{
		Token:    &http.TokenHandler{Secret: secret},
		Entities: &http.EntityHandler{CRUD: crudService, Cache: entityStore},
		Public:   &http.PublicHandler{Docs: docs, Adoption: adoptionService},
		Chat:     &http.ChatHandler{Chat: chatService},
		WS:       http.NewWSHandler(manager, entityStore, loadTimeout, zapLogger),
	}

	// Build the router with middleware and routes.
	router := http.NewRouter(handlers, secret, zapLogger)

	server := &nethttp.Server{
		Addr:    addr,
		Handler: router,
	}

	zapLogger.Info("starting HTTP server", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}
}
