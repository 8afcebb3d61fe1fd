package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nfrund/relay/internal/auth"
	"github.com/nfrund/relay/internal/config"
	"github.com/nfrund/relay/internal/database"
	"github.com/nfrund/relay/internal/domain"
	"github.com/nfrund/relay/internal/logging"
	"github.com/nfrund/relay/internal/presence"
	"github.com/nfrund/relay/internal/pubsub"
	"github.com/nfrund/relay/internal/relay"
	"github.com/nfrund/relay/internal/server"
	"github.com/nfrund/relay/internal/storage"
	"github.com/nfrund/relay/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do/v2"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/trace"
)

const redisPingTimeout = 5 * time.Second

func provideLogger(i do.Injector) (*slog.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return logging.New(cfg.LogFormat, cfg.LogLevel), nil
}

func provideTracing(ctx context.Context) do.Provider[trace.Tracer] {
	return func(i do.Injector) (trace.Tracer, error) {
		cfg := do.MustInvoke[*config.Config](i)
		c := do.MustInvoke[*closers](i)

		tracer, shutdown, err := pubsub.SetupTracing(ctx, pubsub.TracingConfig{
			Enabled:     cfg.TracingEnabled,
			ServiceName: cfg.TracingServiceName,
			ZipkinURL:   cfg.TracingZipkinURL,
			Version:     Version,
		})
		if err != nil {
			return nil, fmt.Errorf("setup tracing: %w", err)
		}
		c.add("tracer", shutdown)
		return tracer, nil
	}
}

func provideBus(i do.Injector) (*pubsub.WatermillBridge, error) {
	logger := do.MustInvoke[*slog.Logger](i)
	c := do.MustInvoke[*closers](i)
	tracer, err := do.Invoke[trace.Tracer](i)
	if err != nil {
		return nil, err
	}

	bus := pubsub.NewWatermillBridge(logger, tracer)
	c.add("bus", func(context.Context) error { return bus.Close() })
	return bus, nil
}

func provideMessageStore(ctx context.Context) do.Provider[domain.MessageRepository] {
	return func(i do.Injector) (domain.MessageRepository, error) {
		cfg := do.MustInvoke[*config.Config](i)
		logger := do.MustInvoke[*slog.Logger](i)
		c := do.MustInvoke[*closers](i)

		store, err := openMessageStore(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open %s message store: %w", cfg.StoreDriver, err)
		}
		c.add("message store", store.Close)
		logger.Info("Message store ready", "driver", cfg.StoreDriver)
		return store, nil
	}
}

func openMessageStore(ctx context.Context, cfg *config.Config) (domain.MessageRepository, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return database.NewMemoryMessageStore(), nil

	case config.StoreFile:
		return storage.OpenFileMessageStore(afero.NewOsFs(), cfg.FileStorePath)

	case config.StoreSurreal:
		db, err := database.NewSurrealDB(ctx, database.SurrealConfig{
			URL:       cfg.SurrealURL,
			Namespace: cfg.SurrealNS,
			Database:  cfg.SurrealDB,
			Username:  cfg.SurrealUser,
			Password:  cfg.SurrealPass,
		}, database.DefaultRetryer())
		if err != nil {
			return nil, err
		}
		store := database.NewSurrealMessageStore(db, cfg.DBQueryTimeout)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close(ctx)
			return nil, err
		}
		return store, nil

	case config.StoreMongo:
		client, err := database.NewMongoClient(ctx, cfg.MongoURI, database.DefaultRetryer())
		if err != nil {
			return nil, err
		}
		store := database.NewMongoMessageStore(client, cfg.MongoDatabase, cfg.DBQueryTimeout)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = store.Close(ctx)
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func provideAuthenticator(ctx context.Context) do.Provider[auth.Authenticator] {
	return func(i do.Injector) (auth.Authenticator, error) {
		cfg := do.MustInvoke[*config.Config](i)
		logger := do.MustInvoke[*slog.Logger](i)
		c := do.MustInvoke[*closers](i)

		if cfg.AuthMode == config.AuthSession {
			return auth.NewSessionAuthenticator(cfg.AuthCookieName, cfg.SessionMaxAge, []byte(cfg.SessionSecret)), nil
		}

		var revocations auth.RevocationChecker
		if cfg.RedisAddr != "" {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			list := auth.NewRedisRevocationList(client, cfg.RevocationKey)
			if err := list.Ping(ctx, redisPingTimeout); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("connect revocation list: %w", err)
			}
			c.add("redis", func(context.Context) error { return client.Close() })
			logger.Info("Token revocation list enabled", "key", cfg.RevocationKey)
			revocations = list
		}
		return auth.NewJWTAuthenticator([]byte(cfg.JWTSecret), revocations), nil
	}
}

func provideRegistry(i do.Injector) (*presence.Registry, error) {
	logger := do.MustInvoke[*slog.Logger](i)
	bus, err := do.Invoke[*pubsub.WatermillBridge](i)
	if err != nil {
		return nil, err
	}
	return presence.NewRegistry(presence.NewBusNotifier(bus, logger), logger), nil
}

func provideRelay(i do.Injector) (*relay.Relay, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)
	store, err := do.Invoke[domain.MessageRepository](i)
	if err != nil {
		return nil, err
	}
	registry, err := do.Invoke[*presence.Registry](i)
	if err != nil {
		return nil, err
	}
	return relay.New(store, registry, logger, relay.WithDegradeOnPersistFailure(cfg.DegradeOnPersistFailure)), nil
}

func provideGatekeeper(i do.Injector) (*websocket.Gatekeeper, error) {
	cfg := do.MustInvoke[*config.Config](i)
	authenticator, err := do.Invoke[auth.Authenticator](i)
	if err != nil {
		return nil, err
	}
	return websocket.NewGatekeeper(authenticator, cfg.AuthCookieName), nil
}

func provideHandler(i do.Injector) (*websocket.Handler, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)
	gatekeeper, err := do.Invoke[*websocket.Gatekeeper](i)
	if err != nil {
		return nil, err
	}
	r, err := do.Invoke[*relay.Relay](i)
	if err != nil {
		return nil, err
	}

	return websocket.NewHandler(
		gatekeeper,
		do.MustInvoke[*presence.Registry](i),
		r,
		websocket.Options{
			SendBuffer:      cfg.SendBuffer,
			WriteTimeout:    cfg.WriteTimeout,
			MaxMessageBytes: cfg.MaxMessageBytes,
			OriginPatterns:  cfg.AllowedOrigins,
		},
		logger,
	), nil
}

func provideServer(i do.Injector) (*server.Server, error) {
	cfg := do.MustInvoke[*config.Config](i)
	logger := do.MustInvoke[*slog.Logger](i)
	handler, err := do.Invoke[*websocket.Handler](i)
	if err != nil {
		return nil, err
	}
	return server.New(server.Options{
		Addr:               cfg.ServerAddr,
		HandshakeRateLimit: cfg.HandshakeRateLimit,
	}, handler, do.MustInvoke[*websocket.Gatekeeper](i), do.MustInvoke[*presence.Registry](i), logger), nil
}
