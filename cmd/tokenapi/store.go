package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-tokenapi/core"
	tokenmigrations "github.com/goliatone/go-tokenapi/migrations"
	"github.com/goliatone/go-tokenapi/security"
	memorystore "github.com/goliatone/go-tokenapi/store/memory"
	redisstore "github.com/goliatone/go-tokenapi/store/redis"
	sqlstore "github.com/goliatone/go-tokenapi/store/sql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type persistenceConfig struct {
	driver string
	server string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "" }

// openCredentialStore returns the store selected by cfg and a close func.
func openCredentialStore(ctx context.Context, cfg fileConfig, logger core.Logger) (core.CredentialStore, func() error, error) {
	noop := func() error { return nil }
	ttl := time.Duration(cfg.Store.TTLSeconds) * time.Second
	codec, err := credentialCodec(cfg)
	if err != nil {
		return nil, nil, err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Store.Driver)) {
	case storeMemory:
		opts := []memorystore.Option{memorystore.WithTTL(ttl)}
		if codec != nil {
			opts = append(opts, memorystore.WithCodec(codec))
		}
		return memorystore.New(opts...), noop, nil
	case storeRedis:
		opts := []redisstore.Option{redisstore.WithTTL(ttl)}
		if codec != nil {
			opts = append(opts, redisstore.WithCodec(codec))
		}
		if prefix := strings.TrimSpace(cfg.Store.KeyPrefix); prefix != "" {
			opts = append(opts, redisstore.WithKeyPrefix(prefix))
		}
		store, err := redisstore.NewFromAddr(cfg.Store.RedisAddr, cfg.Store.RedisDB, opts...)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	case storeSQLite:
		return openSQLStore(ctx, cfg, codec, "sqlite3", tokenmigrations.DialectSQLite, sqlitedialect.New(), logger)
	case storePostgres:
		return openSQLStore(ctx, cfg, codec, "postgres", tokenmigrations.DialectPostgres, pgdialect.New(), logger)
	default:
		return nil, nil, fmt.Errorf("tokenapi: unsupported store driver %q", cfg.Store.Driver)
	}
}

func openSQLStore(
	ctx context.Context,
	cfg fileConfig,
	codec core.CredentialCodec,
	driver string,
	dialectName string,
	dialect schema.Dialect,
	logger core.Logger,
) (core.CredentialStore, func() error, error) {
	dsn := strings.TrimSpace(cfg.Store.DSN)
	if dsn == "" {
		return nil, nil, fmt.Errorf("tokenapi: store.dsn is required for the %s driver", driver)
	}
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("tokenapi: open %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{driver: driver, server: dsn, debug: cfg.Store.Debug}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("tokenapi: persistence client: %w", err)
	}
	if _, err := tokenmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect == dialectName {
			client.RegisterSQLMigrations(fsys)
		}
		return nil
	}, tokenmigrations.WithValidationTargets(dialectName)); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("tokenapi: migrate credential schema: %w", err)
	}
	logger.Debug("credential schema ready", "driver", driver)

	var factoryOpts []sqlstore.FactoryOption
	if codec != nil {
		factoryOpts = append(factoryOpts, sqlstore.WithCodec(codec))
	}
	if cfg.Store.CacheTTLSeconds > 0 {
		cacheConfig := repositorycache.DefaultConfig()
		cacheConfig.TTL = time.Duration(cfg.Store.CacheTTLSeconds) * time.Second
		cacheService, err := repositorycache.NewCacheService(cacheConfig)
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("tokenapi: credential cache: %w", err)
		}
		factoryOpts = append(factoryOpts, sqlstore.WithCacheService(cacheService))
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, factoryOpts...)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return factory.CredentialStore(), client.Close, nil
}

// credentialCodec seals stored credentials when an encryption key is set.
func credentialCodec(cfg fileConfig) (core.CredentialCodec, error) {
	key := strings.TrimSpace(cfg.Store.EncryptionKey)
	if key == "" {
		return nil, nil
	}
	sealer, err := security.NewAppKeySealerFromString(key)
	if err != nil {
		return nil, err
	}
	codec, err := security.NewSealedCredentialCodec(sealer, nil)
	if err != nil {
		return nil, err
	}
	return codec, nil
}
