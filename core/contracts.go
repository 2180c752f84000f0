package core

import (
	"context"
	"net/http"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	MethodGET = http.MethodGet

	StepStart     = "START"
	StepCompleted = "COMPLETED"
	StepFailed    = "FAILED"

	OptimisticBegin  = "BEGIN"
	OptimisticCommit = "COMMIT"
	OptimisticRevert = "REVERT"
)

// RequestDescription declares one outbound call. Body is nil when absent.
type RequestDescription struct {
	Endpoint    string            `json:"endpoint"`
	Method      string            `json:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        []byte            `json:"body,omitempty"`
	Credentials string            `json:"credentials,omitempty"`
}

// Payload is either a single request description or an ordered batch of them.
type Payload struct {
	single  RequestDescription
	items   []RequestDescription
	batched bool
}

func SinglePayload(desc RequestDescription) Payload {
	return Payload{single: desc}
}

func BatchPayload(items ...RequestDescription) Payload {
	return Payload{items: append([]RequestDescription(nil), items...), batched: true}
}

func (p Payload) IsBatch() bool {
	return p.batched
}

func (p Payload) Single() RequestDescription {
	return p.single
}

// Items returns the batch in input order, or the single description as a
// one element slice.
func (p Payload) Items() []RequestDescription {
	if !p.batched {
		return []RequestDescription{p.single}
	}
	return append([]RequestDescription(nil), p.items...)
}

func (p Payload) Len() int {
	if !p.batched {
		return 1
	}
	return len(p.items)
}

type ResponseHandler func(value any, meta Metadata) (any, error)

// Metadata carries the recognized action options plus arbitrary caller values.
type Metadata struct {
	Authenticate     *bool
	PreserveHeaders  []string
	ResponseHandler  ResponseHandler
	OptimisticID     string
	AsyncStep        string
	Error            bool
	PreservedHeaders map[string]string
	Values           map[string]any
}

func (m Metadata) ShouldAuthenticate() bool {
	if m.Authenticate == nil {
		return true
	}
	return *m.Authenticate
}

func (m Metadata) Value(key string) (any, bool) {
	if m.Values == nil {
		return nil, false
	}
	value, ok := m.Values[key]
	return value, ok
}

func (m Metadata) Clone() Metadata {
	out := m
	if m.Authenticate != nil {
		authenticate := *m.Authenticate
		out.Authenticate = &authenticate
	}
	out.PreserveHeaders = append([]string(nil), m.PreserveHeaders...)
	out.PreservedHeaders = copyStringMap(m.PreservedHeaders)
	out.Values = copyAnyMap(m.Values)
	return out
}

func Authenticate(enabled bool) *bool {
	return &enabled
}

// Action is the unit of work handed to the dispatcher. It is never mutated.
type Action struct {
	Kind    string
	Payload Payload
	Meta    Metadata
}

func (a Action) Type() string {
	return strings.TrimSpace(a.Kind)
}

type OptimisticTag struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// LifecycleEvent is emitted to the sink as <kind>_START, <kind>_COMPLETED or
// <kind>_FAILED.
type LifecycleEvent struct {
	Kind       string
	Payload    any
	Meta       Metadata
	Optimistic *OptimisticTag
}

func (e LifecycleEvent) Type() string {
	return e.Kind
}

func (e LifecycleEvent) Step() string {
	return e.Meta.AsyncStep
}

type FetchOptions struct {
	Method      string
	Headers     map[string]string
	Body        []byte
	Credentials string
}

// Fields lists the option names that carry a value.
func (o FetchOptions) Fields() []string {
	fields := make([]string, 0, 4)
	if o.Method != "" {
		fields = append(fields, "method")
	}
	if o.Body != nil {
		fields = append(fields, "body")
	}
	if o.Credentials != "" {
		fields = append(fields, "credentials")
	}
	if o.Headers != nil {
		fields = append(fields, "headers")
	}
	return fields
}

type FetchArgs struct {
	Endpoint string
	Options  FetchOptions
}

// Response is a fully read transport response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Metadata   map[string]any
}

func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) Header(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers.Get(name)
}

func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

type EventSink interface {
	Emit(ctx context.Context, event LifecycleEvent)
}

type SinkFunc func(ctx context.Context, event LifecycleEvent)

func (f SinkFunc) Emit(ctx context.Context, event LifecycleEvent) {
	if f == nil {
		return
	}
	f(ctx, event)
}

type Transport interface {
	Do(ctx context.Context, endpoint string, opts FetchOptions) (*Response, error)
}

type TransportFunc func(ctx context.Context, endpoint string, opts FetchOptions) (*Response, error)

func (f TransportFunc) Do(ctx context.Context, endpoint string, opts FetchOptions) (*Response, error) {
	return f(ctx, endpoint, opts)
}

// CredentialStore persists credentials by key. Get returns "" and a nil error
// when nothing is stored.
type CredentialStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, credential string) error
	Remove(ctx context.Context, key string) error
}

type CredentialCodec interface {
	Format() string
	Encode(credential string) ([]byte, error)
	Decode(payload []byte) (string, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type (
	ResponseValidator   func(ctx context.Context, response *Response) (*Response, error)
	CompletionFunc      func(ctx context.Context, response *Response) (any, error)
	ResponseResolver    func(ctx context.Context, response *Response, validate ResponseValidator, onComplete CompletionFunc) (any, error)
	CredentialAttacher  func(headers map[string]string, body []byte, credential string) (map[string]string, []byte)
	RequestPreprocessor func(headers map[string]string, endpoint string, body []byte) (map[string]string, string, []byte)
	FreshnessChecker    func(credential string, minLifespanSeconds int) (bool, error)
	CredentialRetriever func(ctx context.Context, key string) (string, error)
	RefreshActionFunc   func(refreshCredential string) (Action, error)
	ErrorHandler        func(kind string, err error) (any, error)
	CredentialExtractor func(value any) (string, error)
	HeaderPreserver     func(meta Metadata, response *Response) map[string]string
	HandlerBuilder      func(meta Metadata) func(value any) (any, error)
	FetchArgsBuilder    func(desc RequestDescription, credential string, authenticate bool) FetchArgs
	EventFactory        func(kind string, payload any, meta Metadata) LifecycleEvent
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

func copyStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyAnyMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
