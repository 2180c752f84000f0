package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestRequestFromAction_SingleEmitsStartThenCompleted(t *testing.T) {
	transport := newStubTransport().on("/user", jsonResponse(http.StatusOK, `{"name":"ada"}`), nil)
	sink := &recordingSink{}
	meta := Metadata{
		ResponseHandler: func(value any, _ Metadata) (any, error) {
			return value.(map[string]any)["name"], nil
		},
	}
	action := Action{Kind: "FETCH_USER", Payload: SinglePayload(RequestDescription{Endpoint: "/user"}), Meta: meta}

	value, err := RequestFromAction(context.Background(), action, sink, "tok", DispatchDeps{Transport: transport})
	if err != nil {
		t.Fatalf("request from action: %v", err)
	}
	if value != "ada" {
		t.Fatalf("expected handled value ada, got %#v", value)
	}
	if got := strings.Join(sink.kinds(), ","); got != "FETCH_USER_START,FETCH_USER_COMPLETED" {
		t.Fatalf("unexpected events %q", got)
	}
	events := sink.snapshot()
	if payload, ok := events[0].Payload.(Payload); !ok || payload.Single().Endpoint != "/user" {
		t.Fatalf("expected START to carry the original payload, got %#v", events[0].Payload)
	}
	if events[1].Payload != "ada" {
		t.Fatalf("expected COMPLETED payload ada, got %#v", events[1].Payload)
	}

	calls := transport.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected one transport call, got %d", len(calls))
	}
	if calls[0].options.Headers["Authorization"] != "JWT tok" {
		t.Fatalf("expected credential to be attached, got %#v", calls[0].options.Headers)
	}
}

func TestRequestFromAction_StartPrecedesIO(t *testing.T) {
	sink := &recordingSink{}
	transport := TransportFunc(func(context.Context, string, FetchOptions) (*Response, error) {
		if got := sink.kinds(); len(got) != 1 || got[0] != "PING_START" {
			t.Fatalf("expected START before transport call, got %v", got)
		}
		return textResponse(http.StatusOK, "pong"), nil
	})
	action := Action{Kind: "PING", Payload: SinglePayload(RequestDescription{Endpoint: "/ping"})}
	if _, err := RequestFromAction(context.Background(), action, sink, "", DispatchDeps{Transport: transport}); err != nil {
		t.Fatalf("request from action: %v", err)
	}
}

func TestRequestFromAction_PreservesHeadersOnCompletedOnly(t *testing.T) {
	response := jsonResponse(http.StatusOK, `[]`)
	response.Headers.Set("X-Total-Count", "12")
	transport := newStubTransport().on("/items", response, nil)
	sink := &recordingSink{}
	meta := Metadata{PreserveHeaders: []string{"X-Total-Count"}}
	action := Action{Kind: "LIST", Payload: SinglePayload(RequestDescription{Endpoint: "/items"}), Meta: meta}

	if _, err := RequestFromAction(context.Background(), action, sink, "", DispatchDeps{Transport: transport}); err != nil {
		t.Fatalf("request from action: %v", err)
	}
	events := sink.snapshot()
	if events[0].Meta.PreservedHeaders != nil {
		t.Fatalf("expected START metadata without preserved headers")
	}
	if events[1].Meta.PreservedHeaders["X-Total-Count"] != "12" {
		t.Fatalf("expected preserved header on COMPLETED, got %#v", events[1].Meta.PreservedHeaders)
	}
	if action.Meta.PreservedHeaders != nil {
		t.Fatalf("expected caller metadata to stay untouched")
	}
}

func TestRequestFromAction_SingleFailureReturnsWithoutTerminalEvent(t *testing.T) {
	transport := newStubTransport().on("/user", textResponse(http.StatusNotFound, "no such user"), nil)
	sink := &recordingSink{}
	action := Action{Kind: "FETCH_USER", Payload: SinglePayload(RequestDescription{Endpoint: "/user"})}

	_, err := RequestFromAction(context.Background(), action, sink, "", DispatchDeps{Transport: transport})
	if err == nil || err.Error() != "no such user" {
		t.Fatalf("expected server text error, got %v", err)
	}
	if got := strings.Join(sink.kinds(), ","); got != "FETCH_USER_START" {
		t.Fatalf("expected only START, got %q", got)
	}
}

func TestRequestFromAction_BatchCallsEachItemOnce(t *testing.T) {
	transport := newStubTransport().
		on("/a", jsonResponse(http.StatusOK, `{"id":"a"}`), nil).
		on("/b", jsonResponse(http.StatusOK, `{"id":"b"}`), nil).
		on("/c", textResponse(http.StatusOK, "c"), nil)
	sink := &recordingSink{}
	handled := 0
	meta := Metadata{
		ResponseHandler: func(value any, _ Metadata) (any, error) {
			handled++
			return len(value.([]any)), nil
		},
	}
	action := Action{
		Kind: "LOAD",
		Payload: BatchPayload(
			RequestDescription{Endpoint: "/a"},
			RequestDescription{Endpoint: "/b", Method: http.MethodPost},
			RequestDescription{Endpoint: "/c"},
		),
		Meta: meta,
	}

	value, err := RequestFromAction(context.Background(), action, sink, "shared", DispatchDeps{Transport: transport})
	if err != nil {
		t.Fatalf("request from action: %v", err)
	}
	if value != 3 || handled != 1 {
		t.Fatalf("expected handler applied once to 3 results, got value=%#v handled=%d", value, handled)
	}
	if got := strings.Join(sink.kinds(), ","); got != "LOAD_START,LOAD_COMPLETED" {
		t.Fatalf("expected one START and one COMPLETED, got %q", got)
	}

	calls := transport.snapshot()
	if len(calls) != 3 {
		t.Fatalf("expected 3 transport calls, got %d", len(calls))
	}
	seen := map[string]FetchOptions{}
	for _, call := range calls {
		seen[call.endpoint] = call.options
		if call.options.Headers["Authorization"] != "JWT shared" {
			t.Fatalf("expected shared credential on %s, got %#v", call.endpoint, call.options.Headers)
		}
	}
	if seen["/b"].Method != http.MethodPost || seen["/a"].Method != http.MethodGet {
		t.Fatalf("expected each item's own method, got %#v", seen)
	}
}

func TestRequestFromAction_BatchKeepsInputOrder(t *testing.T) {
	delays := map[string]time.Duration{"/slow": 30 * time.Millisecond, "/fast": 0}
	transport := TransportFunc(func(_ context.Context, endpoint string, _ FetchOptions) (*Response, error) {
		time.Sleep(delays[endpoint])
		return textResponse(http.StatusOK, endpoint), nil
	})
	action := Action{
		Kind:    "LOAD",
		Payload: BatchPayload(RequestDescription{Endpoint: "/slow"}, RequestDescription{Endpoint: "/fast"}),
	}
	value, err := RequestFromAction(context.Background(), action, nil, "", DispatchDeps{Transport: transport})
	if err != nil {
		t.Fatalf("request from action: %v", err)
	}
	expected := []any{"/slow", "/fast"}
	if !reflect.DeepEqual(value, expected) {
		t.Fatalf("expected %#v, got %#v", expected, value)
	}
}

func TestRequestFromAction_BatchRunsConcurrently(t *testing.T) {
	const items = 4
	var arrived sync.WaitGroup
	arrived.Add(items)
	release := make(chan struct{})
	go func() {
		arrived.Wait()
		close(release)
	}()

	transport := TransportFunc(func(ctx context.Context, endpoint string, _ FetchOptions) (*Response, error) {
		arrived.Done()
		select {
		case <-release:
		case <-time.After(2 * time.Second):
			return nil, fmt.Errorf("%s: requests were not issued concurrently", endpoint)
		}
		return textResponse(http.StatusOK, endpoint), nil
	})
	descs := make([]RequestDescription, 0, items)
	for index := 0; index < items; index++ {
		descs = append(descs, RequestDescription{Endpoint: fmt.Sprintf("/item/%d", index)})
	}
	action := Action{Kind: "LOAD", Payload: BatchPayload(descs...)}
	if _, err := RequestFromAction(context.Background(), action, nil, "", DispatchDeps{Transport: transport}); err != nil {
		t.Fatalf("request from action: %v", err)
	}
}

func TestRequestFromAction_BatchFailsAsOneUnit(t *testing.T) {
	transport := newStubTransport().
		on("/a", jsonResponse(http.StatusOK, `{}`), nil).
		on("/b", textResponse(http.StatusBadGateway, "upstream down"), nil)
	sink := &recordingSink{}
	action := Action{
		Kind:    "LOAD",
		Payload: BatchPayload(RequestDescription{Endpoint: "/a"}, RequestDescription{Endpoint: "/b"}),
	}

	_, err := RequestFromAction(context.Background(), action, sink, "", DispatchDeps{Transport: transport})
	var responseErr *ResponseError
	if !errors.As(err, &responseErr) || responseErr.Text != "upstream down" {
		t.Fatalf("expected batch failure with server text, got %v", err)
	}
	if got := strings.Join(sink.kinds(), ","); got != "LOAD_START" {
		t.Fatalf("expected no completion for failed batch, got %q", got)
	}
}

func TestRequestFromAction_BatchFailureDoesNotWaitForSlowItems(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	transport := TransportFunc(func(_ context.Context, endpoint string, _ FetchOptions) (*Response, error) {
		if endpoint == "/hang" {
			<-release
			return textResponse(http.StatusOK, "late"), nil
		}
		return nil, errTransportDown
	})
	action := Action{
		Kind:    "LOAD",
		Payload: BatchPayload(RequestDescription{Endpoint: "/hang"}, RequestDescription{Endpoint: "/fail"}),
	}

	done := make(chan error, 1)
	go func() {
		_, err := RequestFromAction(context.Background(), action, nil, "", DispatchDeps{Transport: transport})
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, errTransportDown) || !errors.Is(err, ErrRequestFailed) {
			t.Fatalf("expected request failure, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected batch to fail without waiting for the hanging request")
	}
}

func TestRequestFromAction_EmptyBatchCompletes(t *testing.T) {
	sink := &recordingSink{}
	transport := newStubTransport()
	value, err := RequestFromAction(context.Background(), Action{Kind: "LOAD", Payload: BatchPayload()}, sink, "", DispatchDeps{Transport: transport})
	if err != nil {
		t.Fatalf("request from action: %v", err)
	}
	if items, ok := value.([]any); !ok || len(items) != 0 {
		t.Fatalf("expected empty results, got %#v", value)
	}
	if len(transport.snapshot()) != 0 {
		t.Fatalf("expected no transport calls")
	}
	if got := strings.Join(sink.kinds(), ","); got != "LOAD_START,LOAD_COMPLETED" {
		t.Fatalf("unexpected events %q", got)
	}
}

func TestRequestFromAction_RequiresTransport(t *testing.T) {
	_, err := RequestFromAction(context.Background(), Action{Kind: "X", Payload: SinglePayload(RequestDescription{Endpoint: "/"})}, nil, "", DispatchDeps{})
	if !errors.Is(err, ErrTransportRequired) {
		t.Fatalf("expected ErrTransportRequired, got %v", err)
	}
}
