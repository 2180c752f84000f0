package tokenapi

import (
	"github.com/goliatone/go-tokenapi/core"
	memorystore "github.com/goliatone/go-tokenapi/store/memory"
	"github.com/goliatone/go-tokenapi/transport"
)

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type Action = core.Action
type Payload = core.Payload
type Metadata = core.Metadata
type RequestDescription = core.RequestDescription
type LifecycleEvent = core.LifecycleEvent
type EventSink = core.EventSink
type SinkFunc = core.SinkFunc
type Transport = core.Transport
type CredentialStore = core.CredentialStore
type MetricsRecorder = core.MetricsRecorder

var (
	SinglePayload = core.SinglePayload
	BatchPayload  = core.BatchPayload
	Authenticate  = core.Authenticate
)

var (
	WithLogger              = core.WithLogger
	WithLoggerProvider      = core.WithLoggerProvider
	WithMetricsRecorder     = core.WithMetricsRecorder
	WithErrorFactory        = core.WithErrorFactory
	WithErrorMapper         = core.WithErrorMapper
	WithConfigProvider      = core.WithConfigProvider
	WithOptionsResolver     = core.WithOptionsResolver
	WithTransport           = core.WithTransport
	WithCredentialStore     = core.WithCredentialStore
	WithEventSink           = core.WithEventSink
	WithRefreshEnabled      = core.WithRefreshEnabled
	WithSingleFlightRefresh = core.WithSingleFlightRefresh
	WithResponseValidator   = core.WithResponseValidator
	WithResponseResolver    = core.WithResponseResolver
	WithCredentialAttacher  = core.WithCredentialAttacher
	WithRequestPreprocessor = core.WithRequestPreprocessor
	WithFreshnessChecker    = core.WithFreshnessChecker
	WithRefreshAction       = core.WithRefreshAction
	WithErrorHandler        = core.WithErrorHandler
	WithCredentialExtractor = core.WithCredentialExtractor
	WithHeaderPreserver     = core.WithHeaderPreserver
	WithHandlerBuilder      = core.WithHandlerBuilder
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewService builds a service over the REST transport and an in-process
// credential store. Options in opts replace either default.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	defaults := []Option{
		core.WithTransport(transport.NewRESTAdapter(nil)),
		core.WithCredentialStore(memorystore.New()),
	}
	return core.NewService(cfg, append(defaults, opts...)...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}
