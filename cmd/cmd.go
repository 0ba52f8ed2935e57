package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"direct-chat-backend/internal/config"
	"direct-chat-backend/internal/handlers"
	"direct-chat-backend/internal/repository"
	mongorepo "direct-chat-backend/internal/repository/mongo"
	pgrepo "direct-chat-backend/internal/repository/postgres"
	"direct-chat-backend/internal/services"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Run starts the message gateway and blocks until SIGINT or SIGTERM
func Run() {
	// Load configuration
	path := os.Getenv("CHAT_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	ctx := context.Background()

	// Connect to database
	userRepo, messageRepo, closeDB, err := openRepositories(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to open database")
	}
	defer closeDB()
	log.Info().Str("driver", cfg.Database.Driver).Msg("Database connection established")

	// Initialize services
	media, err := services.NewMediaService(ctx, cfg.AWS, cfg.Media)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create media service")
	}

	var offline services.OfflineNotifier
	if cfg.APNS.Enabled {
		notifier, err := services.NewAPNSNotifier(cfg.APNS)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create APNs notifier")
		}
		offline = notifier
	}

	wsHub := services.NewWSHub()
	userService := services.NewUserService(userRepo, media, cfg.JWT.Secret)
	messageService := services.NewMessageService(userRepo, messageRepo, media, wsHub, offline)

	// Setup router
	router := handlers.NewRouter(handlers.RouterDeps{
		Users:         handlers.NewUserHandler(userService),
		Messages:      handlers.NewMessageHandler(messageService, wsHub),
		WebSocket:     handlers.NewWebSocketHandler(wsHub, userService, cfg.Server.AllowedOrigin),
		Tokens:        userService,
		AllowedOrigin: cfg.Server.AllowedOrigin,
	})

	// Uploads can take up to the media timeout, so writes get the same budget
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Media.UploadTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Hijacked WebSocket connections are not closed by Shutdown
	wsHub.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// openRepositories connects the configured document store and prepares its schema
func openRepositories(ctx context.Context, cfg config.DatabaseConfig) (repository.UserRepository, repository.MessageRepository, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		if err := pgrepo.Migrate(cfg.MigrateURL()); err != nil {
			return nil, nil, nil, err
		}
		db, err := pgrepo.NewDB(ctx, cfg.DSN())
		if err != nil {
			return nil, nil, nil, err
		}
		return pgrepo.NewUserRepository(db), pgrepo.NewMessageRepository(db), db.Close, nil

	default:
		db, err := mongorepo.NewDB(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := mongorepo.EnsureIndexes(ctx, db); err != nil {
			return nil, nil, nil, err
		}
		closeFn := func() {
			if err := db.Client().Disconnect(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Failed to disconnect from mongo")
			}
		}
		return mongorepo.NewUserRepository(db), mongorepo.NewMessageRepository(db), closeFn, nil
	}
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
