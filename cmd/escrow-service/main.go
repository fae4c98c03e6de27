package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/subrat243/DeCent-Pay/internal/auth"
	"github.com/subrat243/DeCent-Pay/internal/cache"
	"github.com/subrat243/DeCent-Pay/internal/config"
	"github.com/subrat243/DeCent-Pay/internal/db"
	"github.com/subrat243/DeCent-Pay/internal/events"
	"github.com/subrat243/DeCent-Pay/internal/excel"
	httphandler "github.com/subrat243/DeCent-Pay/internal/http"
	"github.com/subrat243/DeCent-Pay/internal/http/middleware"
	"github.com/subrat243/DeCent-Pay/internal/ledger"
	"github.com/subrat243/DeCent-Pay/internal/logger"
	"github.com/subrat243/DeCent-Pay/internal/pdf"
	"github.com/subrat243/DeCent-Pay/internal/repository"
	"github.com/subrat243/DeCent-Pay/internal/service"
)

// idempotencyCleanupInterval is how often expired in-process idempotency
// records are swept.
const idempotencyCleanupInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)
	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("escrow service stopped")
		os.Exit(1)
	}
}

// run owns every resource with a deferred close, so all of them are released
// before main exits on an error.
func run(cfg *config.Config, log zerolog.Logger) error {
	ctx := context.Background()

	store, err := openStore(cfg, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	publisher, closePublisher, err := openPublisher(cfg, log)
	if err != nil {
		return fmt.Errorf("init event publisher: %w", err)
	}
	defer closePublisher()

	idempotency, err := openIdempotencyStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open idempotency store: %w", err)
	}

	clock := ledger.NewWallClock(cfg.Platform.LedgerGenesis, cfg.Platform.LedgerUnit)
	transfers := service.NewLedgerTransfer()

	services := httphandler.Services{
		Escrows:    service.NewEscrowService(store, transfers, clock, publisher, cfg.Platform.CustodyAccount, log),
		Admin:      service.NewAdminService(store, transfers, clock, publisher, log),
		Market:     service.NewMarketplaceService(store, clock, publisher, cfg.Platform.MaxApplications, log),
		Reputation: service.NewReputationService(store, clock, publisher, log),
	}

	if err := services.Admin.Bootstrap(ctx, cfg.Platform.Owner, cfg.Platform.FeeCollector, cfg.Platform.FeeBP, cfg.Platform.WhitelistedTokens); err != nil {
		return fmt.Errorf("bootstrap platform settings: %w", err)
	}

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	handler := httphandler.NewHandler(services, pdf.NewGenerator(), excel.NewGenerator(), log)
	router := httphandler.NewRouter(handler, cfg.Environment, cfg.HTTP.AllowedOrigins, log,
		middleware.Auth(tokenParser),
		middleware.Idempotency(idempotency, log),
	)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	log.Info().Str("addr", addr).Str("store", cfg.DB.Driver).Msg("starting escrow service")

	return router.Run(addr)
}

func openStore(cfg *config.Config, log zerolog.Logger) (repository.Store, error) {
	if cfg.DB.Driver == config.StoreDriverMemory {
		log.Warn().Msg("using in-memory store, state is lost on restart")
		return repository.NewMemoryStore(), nil
	}
	database, err := db.New(cfg, log)
	if err != nil {
		return nil, err
	}
	return repository.NewPostgresStore(database), nil
}

func openPublisher(cfg *config.Config, log zerolog.Logger) (service.EventPublisher, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.NewLogPublisher(log), func() {
			log.Info().Msg("event publisher closed")
		}, nil
	}
	publisher, err := events.NewKafkaPublisher(cfg.Kafka.Brokers, events.TopicsByDomain(cfg.Kafka.TopicPrefix, service.EventTypes))
	if err != nil {
		return nil, nil, err
	}
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close kafka writer")
			return
		}
		log.Info().Msg("event publisher closed")
	}, nil
}

func openIdempotencyStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (cache.IdempotencyStore, error) {
	if cfg.Redis.URL == "" {
		return cache.NewMemoryIdempotencyStore(cfg.Redis.IdempotencyTTL, idempotencyCleanupInterval), nil
	}
	client, err := cache.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	log.Info().Msg("idempotency keys stored in redis")
	return cache.NewRedisIdempotencyStore(client, cfg.Redis.IdempotencyTTL), nil
}
