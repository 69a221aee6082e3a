package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"apartner/internal/auth"
	"apartner/internal/cloudinary"
	"apartner/internal/config"
	"apartner/internal/database"
	"apartner/internal/dropboxsign"
	"apartner/internal/events"
	"apartner/internal/handlers"
	"apartner/internal/jobs"
	"apartner/internal/policy"
	"apartner/internal/repository"
	"apartner/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// app holds the wired dependencies shared by every command
type app struct {
	logger      *slog.Logger
	db          *gorm.DB
	repo        *repository.Repository
	provider    *dropboxsign.Client
	store       *cloudinary.Client
	publisher   events.Publisher
	contracts   *services.ContractService
	coordinator *services.SigningCoordinator
	suggestions *services.SuggestionService
	bills       *services.BillService
	polls       *jobs.SignaturePollJob
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := database.Connect(cfg.GetDSN())
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, err
	}

	var publisher events.Publisher = events.NewLogPublisher(logger)
	if cfg.NATS.URL != "" {
		nats, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			return nil, err
		}
		publisher = nats
	}

	repo := repository.NewRepository(db)
	provider := dropboxsign.NewClient(cfg.Signing)
	store, err := cloudinary.NewClient(cfg.Storage)
	if err != nil {
		return nil, err
	}

	contracts := services.NewContractService(repo, provider, store, logger)
	coordinator := services.NewSigningCoordinator(contracts, cfg.Signing, logger)

	return &app{
		logger:      logger,
		db:          db,
		repo:        repo,
		provider:    provider,
		store:       store,
		publisher:   publisher,
		contracts:   contracts,
		coordinator: coordinator,
		suggestions: services.NewSuggestionService(repo, repo, logger),
		bills:       services.NewBillService(repo, store, logger),
		polls:       jobs.NewSignaturePollJob(coordinator, logger),
	}, nil
}

func (a *app) router(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
	if cfg.Server.FrontendURL != "" {
		allowedOrigins = append(allowedOrigins, cfg.Server.FrontendURL)
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	table, err := policy.Default()
	if err != nil {
		// The embedded table is validated by its tests
		panic(fmt.Sprintf("invalid embedded policy: %v", err))
	}

	handlers.RegisterRoutes(router, handlers.Routes{
		Tokens:      auth.NewTokenManager(cfg.App.JWTSecret, cfg.App.TokenTTL),
		Roles:       a.repo,
		Policy:      table,
		Contracts:   handlers.NewContractHandler(a.contracts, a.coordinator, a.polls),
		Suggestions: handlers.NewSuggestionHandler(a.suggestions, a.contracts),
		Bills:       handlers.NewBillHandler(a.bills),
		Users:       handlers.NewUserHandler(a.repo),
		Webhook:     handlers.NewWebhookHandler(a.contracts, a.provider, cfg.Signing.VerifyEvents, a.logger),
	})
	return router
}

func (a *app) Close() {
	a.polls.Stop()
	a.publisher.Close()
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

// newLogger builds the process logger; serve logs JSON, one-shot commands text
func newLogger(level string, json bool) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var logger *slog.Logger
	if json {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	slog.SetDefault(logger)
	return logger
}
