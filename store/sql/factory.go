package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-tokenapi/core"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db    *bun.DB
	codec core.CredentialCodec
	cache repositorycache.CacheService

	credentialStore       *CredentialStore
	cachedCredentialStore *CachedCredentialStore
}

type FactoryOption func(*RepositoryFactory)

func WithCodec(codec core.CredentialCodec) FactoryOption {
	return func(f *RepositoryFactory) {
		if codec != nil {
			f.codec = codec
		}
	}
}

// WithCacheService puts a read-through cache in front of the credential store.
func WithCacheService(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{codec: core.JSONCredentialCodec{}}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.Build(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.Build(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) Build(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.credentialStore != nil {
		return nil
	}
	store, err := NewCredentialStore(f.db, f.codec)
	if err != nil {
		return err
	}
	f.credentialStore = store
	if f.cache != nil {
		cached, err := NewCachedCredentialStore(store, f.cache)
		if err != nil {
			return err
		}
		f.cachedCredentialStore = cached
	}
	return nil
}

// CredentialStore returns the cached store when a cache service is configured.
func (f *RepositoryFactory) CredentialStore() core.CredentialStore {
	if f == nil {
		return nil
	}
	if f.cachedCredentialStore != nil {
		return f.cachedCredentialStore
	}
	if f.credentialStore == nil {
		return nil
	}
	return f.credentialStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
