package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig       Config
	logger              Logger
	loggerProvider      LoggerProvider
	metricsRecorder     MetricsRecorder
	errorFactory        ErrorFactory
	errorMapper         ErrorMapper
	configProvider      ConfigProvider
	optionsResolver     OptionsResolver
	transport           Transport
	credentialStore     CredentialStore
	eventSink           EventSink
	responseValidator   ResponseValidator
	responseResolver    ResponseResolver
	credentialAttacher  CredentialAttacher
	requestPreprocessor RequestPreprocessor
	freshnessChecker    FreshnessChecker
	refreshAction       RefreshActionFunc
	errorHandler        ErrorHandler
	credentialExtractor CredentialExtractor
	headerPreserver     HeaderPreserver
	handlerBuilder      HandlerBuilder
	refreshEnabled      *bool
	singleFlightRefresh *bool
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithTransport(transport Transport) Option {
	return func(b *serviceBuilder) {
		b.transport = transport
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(b *serviceBuilder) {
		b.credentialStore = store
	}
}

// WithRefreshEnabled sets Config.RefreshEnabled over every config layer.
func WithRefreshEnabled(enabled bool) Option {
	return func(b *serviceBuilder) {
		b.refreshEnabled = &enabled
	}
}

// WithSingleFlightRefresh sets Config.SingleFlightRefresh over every config
// layer.
func WithSingleFlightRefresh(enabled bool) Option {
	return func(b *serviceBuilder) {
		b.singleFlightRefresh = &enabled
	}
}

// WithEventSink sets the sink used when Call receives none.
func WithEventSink(sink EventSink) Option {
	return func(b *serviceBuilder) {
		b.eventSink = sink
	}
}

func WithResponseValidator(validator ResponseValidator) Option {
	return func(b *serviceBuilder) {
		b.responseValidator = validator
	}
}

func WithResponseResolver(resolver ResponseResolver) Option {
	return func(b *serviceBuilder) {
		b.responseResolver = resolver
	}
}

func WithCredentialAttacher(attacher CredentialAttacher) Option {
	return func(b *serviceBuilder) {
		b.credentialAttacher = attacher
	}
}

func WithRequestPreprocessor(preprocessor RequestPreprocessor) Option {
	return func(b *serviceBuilder) {
		b.requestPreprocessor = preprocessor
	}
}

func WithFreshnessChecker(checker FreshnessChecker) Option {
	return func(b *serviceBuilder) {
		b.freshnessChecker = checker
	}
}

func WithRefreshAction(action RefreshActionFunc) Option {
	return func(b *serviceBuilder) {
		b.refreshAction = action
	}
}

func WithErrorHandler(handler ErrorHandler) Option {
	return func(b *serviceBuilder) {
		b.errorHandler = handler
	}
}

func WithCredentialExtractor(extractor CredentialExtractor) Option {
	return func(b *serviceBuilder) {
		b.credentialExtractor = extractor
	}
}

func WithHeaderPreserver(preserver HeaderPreserver) Option {
	return func(b *serviceBuilder) {
		b.headerPreserver = preserver
	}
}

func WithHandlerBuilder(builder HandlerBuilder) Option {
	return func(b *serviceBuilder) {
		b.handlerBuilder = builder
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("tokenapi", nil, nil)
	return serviceBuilder{
		runtimeConfig:       runtime,
		loggerProvider:      loggerProvider,
		logger:              logger,
		metricsRecorder:     NopMetricsRecorder{},
		errorFactory:        goerrors.New,
		errorMapper:         defaultErrorMapper,
		configProvider:      NewCfgxConfigProvider(nil),
		optionsResolver:     GoOptionsResolver{},
		responseValidator:   CheckResponseOK,
		responseResolver:    Resolve,
		freshnessChecker:    CheckCredentialFreshness,
		errorHandler:        DefaultErrorHandler,
		credentialExtractor: ExtractCredential,
		headerPreserver:     PreserveHeaderValues,
		handlerBuilder:      ResponseHandlerWithMeta,
	}
}

// DefaultErrorHandler returns the error as the dispatch result.
func DefaultErrorHandler(_ string, err error) (any, error) {
	return err, nil
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.TokenStorageKey) != "" {
		layer["token_storage_key"] = cfg.TokenStorageKey
	}
	if includeZero || strings.TrimSpace(cfg.RefreshTokenStorageKey) != "" {
		layer["refresh_token_storage_key"] = cfg.RefreshTokenStorageKey
	}
	if includeZero || cfg.MinTokenLifespanSeconds != 0 {
		layer["min_token_lifespan_seconds"] = cfg.MinTokenLifespanSeconds
	}
	if includeZero || cfg.RefreshEnabled {
		layer["refresh_enabled"] = cfg.RefreshEnabled
	}
	if includeZero || strings.TrimSpace(cfg.AuthScheme) != "" {
		layer["auth_scheme"] = cfg.AuthScheme
	}
	if includeZero || len(cfg.DefaultHeaders) > 0 {
		headers := make(map[string]any, len(cfg.DefaultHeaders))
		for key, value := range cfg.DefaultHeaders {
			headers[key] = value
		}
		layer["default_headers"] = headers
	}
	if includeZero || cfg.SingleFlightRefresh {
		layer["single_flight_refresh"] = cfg.SingleFlightRefresh
	}
	if includeZero || strings.TrimSpace(cfg.ActionKey) != "" {
		layer["action_key"] = cfg.ActionKey
	}
	return layer
}
