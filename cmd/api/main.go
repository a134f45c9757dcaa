package main

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"supportdesk/account"
	"supportdesk/audit"
	"supportdesk/config"
	"supportdesk/db"
	"supportdesk/httpapi"
	"supportdesk/identity"
	"supportdesk/notify"
	"supportdesk/session"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("bootstrap config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("bootstrap logger: %v", err)
	}
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("bootstrap database pool", zap.Error(err))
	}
	defer pool.Close()

	var store session.StateStore = session.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		store = session.NewRedisStore(rdb, cfg.IdentityScope)
	} else {
		logger.Warn("REDIS_ADDR unset, identity selections will not survive restarts")
	}

	recorder := audit.NewRecorder(pool, logger)
	identityRepo := identity.NewRepository(pool)
	hub := identity.NewHub(identityRepo, logger)

	accounts := account.NewService(account.NewRepository(pool), cfg.JWTSecret)
	identities := identity.NewService(identityRepo, recorder, logger)
	sessions := session.NewManager(hub, store, recorder, logger)
	activity := audit.NewReader(pool)

	// Single change-feed consumer: listener publishes, the hub reloads the
	// registries each event touches.
	events := make(chan notify.ChangeEvent, 16)
	listener := notify.NewListener(func(ctx context.Context) (*pgx.Conn, error) {
		return db.Connect(ctx, cfg.DatabaseURL)
	}, logger)
	go listener.Run(ctx, events)
	go hub.Run(ctx, events)

	server := httpapi.NewServer(accounts, identities, hub, sessions, activity, logger)

	logger.Info("supportdesk api listening", zap.String("port", cfg.AppPort))
	if err := server.Router().Run(":" + cfg.AppPort); err != nil {
		logger.Fatal("http server", zap.Error(err))
	}
}
