package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quantum-relay/cache"
	"quantum-relay/contract"
	"quantum-relay/internal"
	"quantum-relay/moderation"
	"quantum-relay/observability"
	"quantum-relay/projection"
	"quantum-relay/repositories"
	"quantum-relay/runtime"
	"quantum-relay/runtime/workers"
	"quantum-relay/services"
	"quantum-relay/sink"
	"quantum-relay/transport"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the transport and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load() // best effort, real deployments use the environment
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}

	// 2. Storage (BadgerDB + Bluge)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = blugeWriter.Close()
	}()

	// 3. Optional distributed cache
	var presenceCache contract.Cache = cache.NewNoopCache()
	if config.RedisAddr != "" {
		redisCache, err := cache.NewRedisCache(config.RedisAddr, config.RedisPassword)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisCache.Close()
		presenceCache = redisCache
		log.Info("Presence cache enabled", "addr", config.RedisAddr)
	}

	// 4. Moderation
	censoredData, err := moderation.LoadEmbedded()
	if err != nil {
		return fmt.Errorf("loading censored words failed: %w", err)
	}
	moderator, err := moderation.NewModerator(censoredData.Words, charReplacement)
	if err != nil {
		return fmt.Errorf("building moderator failed: %w", err)
	}

	// 5. Core components
	supervisor := workers.NewSupervisor(log, config.RestartInterval)
	registry := runtime.NewRegistry(log, config.RegistryBufferSize)
	rooms := runtime.NewRooms()
	health := observability.NewHealthManager()
	timeline := projection.NewTimeline(config.TimelineDepth)
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)
	userRepository := repositories.NewUserRepository(db)
	searchRepository := repositories.NewSearchRepository(blugeWriter, log)

	relay := runtime.NewRelay(
		log, registry, rooms, supervisor, messageRepository,
		&moderator, timeline, health, config.RoomBufferSize,
	)
	relay.AddSink(sink.NewSearchSink(searchRepository, log))

	presence := workers.NewPresenceWorker(
		registry.Events(), registry, rooms, presenceCache,
		config.PresenceGracePeriod, config.PresenceTTL, log,
	)
	reporter := workers.NewReporterWorker(health, config.HealthInterval, log)
	supervisor.Add(presence, reporter)

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	relay.Start(ctx)
	go supervisor.Run(ctx)

	// 7. HTTP & Websocket server
	authService := services.NewAuthService(userRepository, []byte(config.JwtSecret), config.AuthTokenDuration)
	server := transport.NewServer(
		ctx, log, relay, presence, searchRepository, authService,
		health, []byte(config.JwtSecret), config.ConnectionBufferSize,
	)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	httpServer := &http.Server{Addr: address, Handler: server.Router()}

	// Use an error channel to capture ListenAndServe issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting relay server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	supervisor.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
