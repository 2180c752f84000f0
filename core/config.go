package core

import (
	"fmt"
	"strings"
)

const (
	DefaultTokenStorageKey = "tokenApiAuthToken"
	DefaultActionKey       = "CALL_TOKEN_API"
)

// Config is resolved in layers: defaults, loaded config, runtime. A zero
// value in the loaded or runtime layer inherits the layer below, so a false
// RefreshEnabled or SingleFlightRefresh cannot switch a flag off there. Use
// WithRefreshEnabled and WithSingleFlightRefresh for that.
type Config struct {
	ServiceName             string            `koanf:"service_name" mapstructure:"service_name"`
	TokenStorageKey         string            `koanf:"token_storage_key" mapstructure:"token_storage_key"`
	RefreshTokenStorageKey  string            `koanf:"refresh_token_storage_key" mapstructure:"refresh_token_storage_key"`
	MinTokenLifespanSeconds int               `koanf:"min_token_lifespan_seconds" mapstructure:"min_token_lifespan_seconds"`
	RefreshEnabled          bool              `koanf:"refresh_enabled" mapstructure:"refresh_enabled"`
	AuthScheme              string            `koanf:"auth_scheme" mapstructure:"auth_scheme"`
	DefaultHeaders          map[string]string `koanf:"default_headers" mapstructure:"default_headers"`
	SingleFlightRefresh     bool              `koanf:"single_flight_refresh" mapstructure:"single_flight_refresh"`
	ActionKey               string            `koanf:"action_key" mapstructure:"action_key"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:             "tokenapi",
		TokenStorageKey:         DefaultTokenStorageKey,
		MinTokenLifespanSeconds: DefaultMinTokenLifespanSeconds,
		AuthScheme:              DefaultAuthScheme,
		DefaultHeaders:          DefaultHeaders(),
		ActionKey:               DefaultActionKey,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.TokenStorageKey) == "" {
		return fmt.Errorf("core: token_storage_key is required")
	}
	if c.MinTokenLifespanSeconds <= 0 {
		return fmt.Errorf("core: min_token_lifespan_seconds must be positive")
	}
	if strings.ContainsAny(strings.TrimSpace(c.AuthScheme), " \t") {
		return fmt.Errorf("core: auth_scheme is invalid")
	}
	return nil
}

// RefreshCredentialKey is the storage key of the refresh credential. It
// falls back to the token storage key.
func (c Config) RefreshCredentialKey() string {
	if key := strings.TrimSpace(c.RefreshTokenStorageKey); key != "" {
		return key
	}
	return c.TokenStorageKey
}
