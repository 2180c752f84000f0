package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const DispatchIDKey = "dispatch_id"

// Service is the configured dispatcher. It holds no per-dispatch state.
type Service struct {
	config              Config
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
	dispatchDeps        DispatchDeps
	freshnessChecker    FreshnessChecker
	refreshAction       RefreshActionFunc
	errorHandler        ErrorHandler
	credentialExtractor CredentialExtractor
	refreshGroup        *singleflight.Group
}

type ServiceDependencies struct {
	Logger              Logger
	LoggerProvider      LoggerProvider
	MetricsRecorder     MetricsRecorder
	ErrorFactory        ErrorFactory
	ErrorMapper         ErrorMapper
	ConfigProvider      ConfigProvider
	OptionsResolver     OptionsResolver
	Transport           Transport
	CredentialStore     CredentialStore
	EventSink           EventSink
	FreshnessChecker    FreshnessChecker
	RefreshAction       RefreshActionFunc
	ErrorHandler        ErrorHandler
	CredentialExtractor CredentialExtractor
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("tokenapi", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("tokenapi"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.freshnessChecker == nil {
		builder.freshnessChecker = CheckCredentialFreshness
	}
	if builder.errorHandler == nil {
		builder.errorHandler = DefaultErrorHandler
	}
	if builder.credentialExtractor == nil {
		builder.credentialExtractor = ExtractCredential
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	if builder.refreshEnabled != nil {
		finalConfig.RefreshEnabled = *builder.refreshEnabled
	}
	if builder.singleFlightRefresh != nil {
		finalConfig.SingleFlightRefresh = *builder.singleFlightRefresh
	}
	finalConfig.DefaultHeaders = canonicalHeaders(finalConfig.DefaultHeaders)

	if builder.transport == nil {
		return nil, mapBuildError(builder.errorMapper, ErrTransportRequired)
	}
	if finalConfig.RefreshEnabled && builder.refreshAction == nil {
		return nil, mapBuildError(builder.errorMapper, ErrRefreshActionRequired)
	}

	attach := builder.credentialAttacher
	if attach == nil {
		attach = AuthorizationAttacher(finalConfig.AuthScheme)
	}
	preprocess := builder.requestPreprocessor
	defaultHeaders := copyStringMap(finalConfig.DefaultHeaders)
	deps := DispatchDeps{
		BuildFetchArgs: func(desc RequestDescription, credential string, authenticate bool) FetchArgs {
			return BuildFetchArgs(desc, credential, authenticate, defaultHeaders, attach, preprocess)
		},
		Validate:        builder.responseValidator,
		Transport:       builder.transport,
		PreserveHeaders: builder.headerPreserver,
		Resolve:         builder.responseResolver,
		BuildHandler:    builder.handlerBuilder,
	}.withDefaults()

	var refreshGroup *singleflight.Group
	if finalConfig.SingleFlightRefresh {
		refreshGroup = &singleflight.Group{}
	}

	return &Service{
		config:              finalConfig,
		logger:              logger,
		loggerProvider:      provider,
		metricsRecorder:     builder.metricsRecorder,
		errorFactory:        builder.errorFactory,
		errorMapper:         builder.errorMapper,
		configProvider:      builder.configProvider,
		optionsResolver:     builder.optionsResolver,
		transport:           builder.transport,
		credentialStore:     builder.credentialStore,
		eventSink:           builder.eventSink,
		dispatchDeps:        deps,
		freshnessChecker:    builder.freshnessChecker,
		refreshAction:       builder.refreshAction,
		errorHandler:        builder.errorHandler,
		credentialExtractor: builder.credentialExtractor,
		refreshGroup:        refreshGroup,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:              s.logger,
		LoggerProvider:      s.loggerProvider,
		MetricsRecorder:     s.metricsRecorder,
		ErrorFactory:        s.errorFactory,
		ErrorMapper:         s.errorMapper,
		ConfigProvider:      s.configProvider,
		OptionsResolver:     s.optionsResolver,
		Transport:           s.transport,
		CredentialStore:     s.credentialStore,
		EventSink:           s.eventSink,
		FreshnessChecker:    s.freshnessChecker,
		RefreshAction:       s.refreshAction,
		ErrorHandler:        s.errorHandler,
		CredentialExtractor: s.credentialExtractor,
	}
}

// Call dispatches action and announces its progress on sink, or on the
// configured sink when sink is nil. Failures emit FAILED and resolve through
// the error handler; the returned error is only set when the handler
// returns one or the action itself is invalid.
func (s *Service) Call(ctx context.Context, action Action, sink EventSink) (result any, err error) {
	if s == nil {
		return nil, fmt.Errorf("core: service is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateAction(action); err != nil {
		return nil, s.mapError(err)
	}
	if sink == nil {
		sink = s.eventSink
	}

	startedAt := time.Now().UTC()
	dispatchID := uuid.NewString()
	action.Meta = action.Meta.Clone()
	if action.Meta.Values == nil {
		action.Meta.Values = map[string]any{}
	}
	action.Meta.Values[DispatchIDKey] = dispatchID

	mode := "single"
	if action.Payload.IsBatch() {
		mode = "batch"
	}
	fields := map[string]any{
		"kind":        action.Kind,
		"mode":        mode,
		"items":       action.Payload.Len(),
		"dispatch_id": dispatchID,
	}
	refreshed := false
	var dispatchErr error
	defer func() {
		fields["refreshed"] = refreshed
		s.observeOperation(ctx, startedAt, "dispatch", dispatchErr, fields)
	}()

	fail := func(cause error) (any, error) {
		dispatchErr = s.mapError(cause)
		emit(ctx, sink, NewFailedEvent(action.Kind, dispatchErr, action.Meta))
		return s.errorHandler(action.Kind, dispatchErr)
	}

	emit(ctx, sink, s.dispatchDeps.NewStart(action.Kind, action.Payload, action.Meta))

	credential, err := s.retrieveCredential(ctx, s.config.TokenStorageKey)
	if err != nil {
		return fail(err)
	}
	cached := func(context.Context, string) (string, error) {
		return credential, nil
	}
	needed, err := IsRefreshNeeded(
		ctx,
		s.config.RefreshEnabled,
		s.freshnessChecker,
		cached,
		s.config.TokenStorageKey,
		minLifespan(s.config.MinTokenLifespanSeconds),
	)
	if err != nil {
		return fail(err)
	}
	if needed {
		credential, err = s.refreshCredential(ctx, credential)
		if err != nil {
			return fail(stageError(ErrRefreshFailed, err))
		}
		refreshed = true
	}

	value, err := completeAction(ctx, action, sink, credential, s.dispatchDeps)
	if err != nil {
		return fail(err)
	}
	return value, nil
}

// RequestFromAction dispatches action with an explicit credential, skipping
// the freshness policy and credential store.
func (s *Service) RequestFromAction(ctx context.Context, action Action, sink EventSink, credential string) (any, error) {
	if s == nil {
		return nil, fmt.Errorf("core: service is nil")
	}
	if sink == nil {
		sink = s.eventSink
	}
	return RequestFromAction(ctx, action, sink, credential, s.dispatchDeps)
}

// Credential returns the stored credential, or "" when none is stored.
func (s *Service) Credential(ctx context.Context) (string, error) {
	if s == nil {
		return "", fmt.Errorf("core: service is nil")
	}
	credential, err := s.retrieveCredential(ctx, s.config.TokenStorageKey)
	if err != nil {
		return "", s.mapError(err)
	}
	return credential, nil
}

func (s *Service) StoreCredential(ctx context.Context, credential string) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	if strings.TrimSpace(credential) == "" {
		return s.mapError(fmt.Errorf("core: credential is required"))
	}
	if s.credentialStore == nil {
		return s.mapError(stageError(ErrStoreFailed, errors.New("credential store is not configured")))
	}
	if err := s.credentialStore.Set(ctx, s.config.TokenStorageKey, credential); err != nil {
		return s.mapError(stageError(ErrStoreFailed, err))
	}
	return nil
}

func (s *Service) RemoveCredential(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	if s.credentialStore == nil {
		return nil
	}
	if err := s.credentialStore.Remove(ctx, s.config.TokenStorageKey); err != nil {
		return s.mapError(stageError(ErrStoreFailed, err))
	}
	return nil
}

// CredentialNeedsRefresh runs the freshness policy against the stored
// credential.
func (s *Service) CredentialNeedsRefresh(ctx context.Context) (bool, error) {
	if s == nil {
		return false, fmt.Errorf("core: service is nil")
	}
	needed, err := IsRefreshNeeded(
		ctx,
		s.config.RefreshEnabled,
		s.freshnessChecker,
		s.retrieveCredential,
		s.config.TokenStorageKey,
		minLifespan(s.config.MinTokenLifespanSeconds),
	)
	if err != nil {
		return false, s.mapError(err)
	}
	return needed, nil
}

func (s *Service) refreshCredential(ctx context.Context, current string) (string, error) {
	if s.refreshGroup == nil {
		return s.runRefresh(ctx, current)
	}
	value, err, _ := s.refreshGroup.Do(s.config.TokenStorageKey, func() (any, error) {
		return s.runRefresh(ctx, current)
	})
	if err != nil {
		return "", err
	}
	credential, _ := value.(string)
	return credential, nil
}

func (s *Service) runRefresh(ctx context.Context, current string) (string, error) {
	if s.refreshAction == nil {
		return "", ErrRefreshActionRequired
	}
	refreshCredential := current
	if key := s.config.RefreshCredentialKey(); key != s.config.TokenStorageKey {
		stored, err := s.retrieveCredential(ctx, key)
		if err != nil {
			return "", err
		}
		refreshCredential = stored
	}

	refresh, err := s.refreshAction(refreshCredential)
	if err != nil {
		return "", err
	}
	if refresh.Payload.IsBatch() {
		return "", fmt.Errorf("core: refresh action payload must be a single request")
	}
	args := s.dispatchDeps.BuildFetchArgs(refresh.Payload.Single(), current, refresh.Meta.ShouldAuthenticate())
	value, err := RequestNewCredential(
		ctx,
		args,
		refresh.Meta,
		s.dispatchDeps.Validate,
		s.dispatchDeps.Transport,
		s.dispatchDeps.Resolve,
		s.dispatchDeps.BuildHandler,
	)
	if err != nil {
		return "", err
	}
	credential, err := s.credentialExtractor(value)
	if err != nil {
		return "", err
	}
	if s.credentialStore != nil {
		if err := s.credentialStore.Set(ctx, s.config.TokenStorageKey, credential); err != nil {
			return "", stageError(ErrStoreFailed, err)
		}
	}
	return credential, nil
}

func (s *Service) retrieveCredential(ctx context.Context, key string) (string, error) {
	if s.credentialStore == nil {
		return "", nil
	}
	credential, err := s.credentialStore.Get(ctx, key)
	if err != nil {
		return "", stageError(ErrStoreFailed, err)
	}
	return strings.TrimSpace(credential), nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func validateAction(action Action) error {
	if strings.TrimSpace(action.Kind) == "" {
		return fmt.Errorf("core: action kind is required")
	}
	return nil
}

func canonicalHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for key, value := range headers {
		out[http.CanonicalHeaderKey(key)] = value
	}
	return out
}
