package core

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

func cloneFieldMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

type recordingSink struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func (s *recordingSink) Emit(_ context.Context, event LifecycleEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) snapshot() []LifecycleEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LifecycleEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *recordingSink) kinds() []string {
	events := s.snapshot()
	out := make([]string, 0, len(events))
	for _, event := range events {
		out = append(out, event.Kind)
	}
	return out
}

type transportCall struct {
	endpoint string
	options  FetchOptions
}

type routedResponse struct {
	response *Response
	err      error
}

// stubTransport answers by endpoint and records every call.
type stubTransport struct {
	mu        sync.Mutex
	calls     []transportCall
	responses map[string]routedResponse
	fallback  routedResponse
}

func newStubTransport() *stubTransport {
	return &stubTransport{
		responses: map[string]routedResponse{},
		fallback:  routedResponse{response: textResponse(http.StatusOK, "ok")},
	}
}

func (t *stubTransport) on(endpoint string, response *Response, err error) *stubTransport {
	t.responses[endpoint] = routedResponse{response: response, err: err}
	return t
}

func (t *stubTransport) Do(_ context.Context, endpoint string, opts FetchOptions) (*Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, transportCall{endpoint: endpoint, options: opts})
	routed, ok := t.responses[endpoint]
	if !ok {
		routed = t.fallback
	}
	return routed.response, routed.err
}

func (t *stubTransport) snapshot() []transportCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]transportCall, len(t.calls))
	copy(out, t.calls)
	return out
}

type memoryStore struct {
	mu      sync.Mutex
	values  map[string]string
	getErr  error
	setErr  error
	gets    int
	setKeys []string
}

func newMemoryStore(values map[string]string) *memoryStore {
	copied := map[string]string{}
	for key, value := range values {
		copied[key] = value
	}
	return &memoryStore{values: copied}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	if s.getErr != nil {
		return "", s.getErr
	}
	return s.values[key], nil
}

func (s *memoryStore) Set(_ context.Context, key string, credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.values[key] = credential
	s.setKeys = append(s.setKeys, key)
	return nil
}

func (s *memoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *memoryStore) value(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key]
}

func jsonResponse(status int, body string) *Response {
	return &Response{
		StatusCode: status,
		Headers:    http.Header{"Content-Type": []string{"application/json; charset=utf-8"}},
		Body:       []byte(body),
	}
}

func textResponse(status int, body string) *Response {
	return &Response{
		StatusCode: status,
		Headers:    http.Header{"Content-Type": []string{"text/plain"}},
		Body:       []byte(body),
	}
}

func signedToken(t *testing.T, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "usr_1",
		"exp": time.Now().Add(expiresIn).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

var errTransportDown = errors.New("transport down")
