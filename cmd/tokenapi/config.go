package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-tokenapi/core"
	"gopkg.in/yaml.v3"
)

const (
	storeMemory   = "memory"
	storeRedis    = "redis"
	storeSQLite   = "sqlite"
	storePostgres = "postgres"
)

type fileConfig struct {
	Service struct {
		Name                    string            `yaml:"name"`
		TokenStorageKey         string            `yaml:"token_storage_key"`
		RefreshTokenStorageKey  string            `yaml:"refresh_token_storage_key"`
		MinTokenLifespanSeconds int               `yaml:"min_token_lifespan_seconds"`
		AuthScheme              string            `yaml:"auth_scheme"`
		DefaultHeaders          map[string]string `yaml:"default_headers"`
		SingleFlightRefresh     bool              `yaml:"single_flight_refresh"`
	} `yaml:"service"`

	Transport struct {
		BaseURL              string `yaml:"base_url"`
		TimeoutSeconds       int    `yaml:"timeout_seconds"`
		MaxResponseBodyBytes int64  `yaml:"max_response_body_bytes"`
	} `yaml:"transport"`

	Refresh struct {
		Endpoint     string `yaml:"endpoint"`
		Method       string `yaml:"method"`
		Authenticate *bool  `yaml:"authenticate"`
	} `yaml:"refresh"`

	Store struct {
		Driver          string `yaml:"driver"`
		DSN             string `yaml:"dsn"`
		RedisAddr       string `yaml:"redis_addr"`
		RedisDB         int    `yaml:"redis_db"`
		KeyPrefix       string `yaml:"key_prefix"`
		TTLSeconds      int    `yaml:"ttl_seconds"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
		EncryptionKey   string `yaml:"encryption_key"`
		Debug           bool   `yaml:"debug"`
	} `yaml:"store"`
}

func defaultFileConfig() fileConfig {
	var cfg fileConfig
	cfg.Transport.TimeoutSeconds = 30
	cfg.Refresh.Method = "POST"
	cfg.Store.Driver = storeSQLite
	cfg.Store.DSN = "file:tokenapi.db?_foreign_keys=on"
	return cfg
}

// loadFileConfig reads path over the defaults. A missing file at the default
// path is not an error.
func loadFileConfig(path string, required bool) (fileConfig, error) {
	cfg := defaultFileConfig()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return cfg, nil
		}
		return cfg, fmt.Errorf("tokenapi: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("tokenapi: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv overlays TOKENAPI_* variables.
func (c *fileConfig) applyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	str := func(key string, target *string) {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			*target = strings.TrimSpace(value)
		}
	}
	integer := func(key string, target *int) error {
		value, ok := lookup(key)
		if !ok || strings.TrimSpace(value) == "" {
			return nil
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("tokenapi: %s must be an integer: %w", key, err)
		}
		*target = parsed
		return nil
	}

	str("TOKENAPI_SERVICE_NAME", &c.Service.Name)
	str("TOKENAPI_TOKEN_STORAGE_KEY", &c.Service.TokenStorageKey)
	str("TOKENAPI_AUTH_SCHEME", &c.Service.AuthScheme)
	str("TOKENAPI_BASE_URL", &c.Transport.BaseURL)
	str("TOKENAPI_REFRESH_ENDPOINT", &c.Refresh.Endpoint)
	str("TOKENAPI_STORE_DRIVER", &c.Store.Driver)
	str("TOKENAPI_STORE_DSN", &c.Store.DSN)
	str("TOKENAPI_REDIS_ADDR", &c.Store.RedisAddr)
	str("TOKENAPI_ENCRYPTION_KEY", &c.Store.EncryptionKey)
	if err := integer("TOKENAPI_MIN_TOKEN_LIFESPAN_SECONDS", &c.Service.MinTokenLifespanSeconds); err != nil {
		return err
	}
	return integer("TOKENAPI_REDIS_DB", &c.Store.RedisDB)
}

func (c fileConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case storeMemory, storeSQLite, storePostgres:
	case storeRedis:
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			return fmt.Errorf("tokenapi: store.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("tokenapi: unsupported store driver %q", c.Store.Driver)
	}
	if c.Transport.TimeoutSeconds < 0 {
		return fmt.Errorf("tokenapi: transport.timeout_seconds must be zero or positive")
	}
	return nil
}

// serviceConfig maps the file onto the runtime layer of core.Config.
func (c fileConfig) serviceConfig() core.Config {
	return core.Config{
		ServiceName:             c.Service.Name,
		TokenStorageKey:         c.Service.TokenStorageKey,
		RefreshTokenStorageKey:  c.Service.RefreshTokenStorageKey,
		MinTokenLifespanSeconds: c.Service.MinTokenLifespanSeconds,
		RefreshEnabled:          strings.TrimSpace(c.Refresh.Endpoint) != "",
		AuthScheme:              c.Service.AuthScheme,
		DefaultHeaders:          c.Service.DefaultHeaders,
		SingleFlightRefresh:     c.Service.SingleFlightRefresh,
	}
}

// refreshAction builds the refresh request from the refresh section. The
// refresh credential is attached unless authenticate is false.
func (c fileConfig) refreshAction() core.RefreshActionFunc {
	endpoint := strings.TrimSpace(c.Refresh.Endpoint)
	if endpoint == "" {
		return nil
	}
	method := strings.ToUpper(strings.TrimSpace(c.Refresh.Method))
	authenticate := true
	if c.Refresh.Authenticate != nil {
		authenticate = *c.Refresh.Authenticate
	}
	return func(string) (core.Action, error) {
		return core.Action{
			Kind:    "TOKEN_REFRESH",
			Payload: core.SinglePayload(core.RequestDescription{Endpoint: endpoint, Method: method}),
			Meta:    core.Metadata{Authenticate: core.Authenticate(authenticate)},
		}, nil
	}
}

func (c fileConfig) timeout() time.Duration {
	return time.Duration(c.Transport.TimeoutSeconds) * time.Second
}
