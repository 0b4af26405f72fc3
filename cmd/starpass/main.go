package main

import (
	"context"
	"log"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"go.uber.org/zap"

	"github.com/lumenlearn/starpass/adapters/events"
	horizonadapter "github.com/lumenlearn/starpass/adapters/horizon"
	"github.com/lumenlearn/starpass/adapters/sessions"
	"github.com/lumenlearn/starpass/adapters/store"
	"github.com/lumenlearn/starpass/internal/config"
	"github.com/lumenlearn/starpass/ports"
	"github.com/lumenlearn/starpass/service"
	transport "github.com/lumenlearn/starpass/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	var logger *zap.Logger
	if cfg.Production() {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	serverKey, err := keypair.ParseFull(cfg.ServerSecretSeed)
	if err != nil {
		logger.Fatal("invalid SERVER_SECRET_SEED", zap.Error(err))
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	pgStore := store.NewPostgresStore(pool)

	// Nonces live in redis when it is configured, otherwise in postgres
	// alongside the users. Both honor the same consume contract.
	var nonces ports.NonceStore = pgStore
	var eventPub ports.EventPublisher
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("failed to parse REDIS_URL", zap.Error(err))
		}
		redisClient := redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		nonces = store.NewRedisNonceStore(redisClient, nil)

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			logger.Fatal("failed to create event publisher", zap.Error(err))
		}
		eventPub = events.NewWatermillPublisher(publisher)
	}

	horizonClient := &horizonclient.Client{HorizonURL: cfg.HorizonURL}
	accounts := horizonadapter.NewAccountSource(horizonClient)

	authService := service.NewAuthService(
		nonces,
		pgStore,
		accounts,
		eventPub,
		serverKey,
		cfg.NetworkPassphrase,
		cfg.HomeDomain,
		logger,
		nil,
	)

	// The redis store prunes by TTL; the postgres store needs a sweep.
	if cfg.RedisURL == "" && cfg.NoncePruneEvery > 0 {
		go pruneLoop(ctx, authService, cfg.NoncePruneEvery, logger)
	}

	codec := sessions.NewJWTCodec([]byte(cfg.SessionSecret), nil)
	handlers := transport.NewAuthHandlers(authService, codec, logger, cfg.Production())
	router := transport.SetupRouter(handlers)

	logger.Info("starting auth service",
		zap.String("port", cfg.HTTPPort),
		zap.String("home_domain", cfg.HomeDomain),
		zap.String("server_account", serverKey.Address()),
	)
	if err := router.Run(":" + cfg.HTTPPort); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func pruneLoop(ctx context.Context, authService *service.AuthService, every time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := authService.PruneNonces(ctx)
			if err != nil {
				logger.Warn("nonce prune failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("pruned expired nonces", zap.Int64("count", n))
			}
		}
	}
}
