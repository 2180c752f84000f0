package command

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-tokenapi/core"
)

type stubService struct {
	callFn       func(context.Context, core.Action, core.EventSink) (any, error)
	stored       []string
	removeCalls  int
	storeErr     error
	lastSink     core.EventSink
	lastCallKind string
}

func (s *stubService) Call(ctx context.Context, action core.Action, sink core.EventSink) (any, error) {
	s.lastSink = sink
	s.lastCallKind = action.Kind
	if s.callFn != nil {
		return s.callFn(ctx, action, sink)
	}
	return nil, nil
}

func (s *stubService) StoreCredential(_ context.Context, credential string) error {
	if s.storeErr != nil {
		return s.storeErr
	}
	s.stored = append(s.stored, credential)
	return nil
}

func (s *stubService) RemoveCredential(context.Context) error {
	s.removeCalls++
	return nil
}

func TestCallCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	sink := core.SinkFunc(func(context.Context, core.LifecycleEvent) {})
	svc := &stubService{
		callFn: func(_ context.Context, action core.Action, _ core.EventSink) (any, error) {
			if action.Payload.Single().Endpoint != "/user" {
				t.Fatalf("unexpected payload %#v", action.Payload)
			}
			return map[string]any{"name": "ada"}, nil
		},
	}

	cmd := NewCallCommand(svc)
	collector := gocmd.NewResult[any]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, CallMessage{
		Action: core.Action{Kind: "FETCH_USER", Payload: core.SinglePayload(core.RequestDescription{Endpoint: "/user"})},
		Sink:   sink,
	})
	if err != nil {
		t.Fatalf("execute call: %v", err)
	}
	if svc.lastCallKind != "FETCH_USER" || svc.lastSink == nil {
		t.Fatalf("expected call to be forwarded with its sink")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.(map[string]any)["name"] != "ada" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestCallCommand_PropagatesServiceError(t *testing.T) {
	sentinel := errors.New("handler rethrow")
	svc := &stubService{callFn: func(context.Context, core.Action, core.EventSink) (any, error) {
		return nil, sentinel
	}}
	err := NewCallCommand(svc).Execute(context.Background(), CallMessage{
		Action: core.Action{Kind: "PING", Payload: core.SinglePayload(core.RequestDescription{Endpoint: "/ping"})},
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected service error, got %v", err)
	}
}

func TestCredentialCommands_DelegateToService(t *testing.T) {
	svc := &stubService{}
	if err := NewStoreCredentialCommand(svc).Execute(context.Background(), StoreCredentialMessage{Credential: "tok"}); err != nil {
		t.Fatalf("store credential: %v", err)
	}
	if len(svc.stored) != 1 || svc.stored[0] != "tok" {
		t.Fatalf("expected stored credential, got %#v", svc.stored)
	}
	if err := NewRemoveCredentialCommand(svc).Execute(context.Background(), RemoveCredentialMessage{}); err != nil {
		t.Fatalf("remove credential: %v", err)
	}
	if svc.removeCalls != 1 {
		t.Fatalf("expected one remove call, got %d", svc.removeCalls)
	}
}

func TestCallMessage_ValidateReturnsRichError(t *testing.T) {
	cases := []struct {
		name string
		msg  CallMessage
	}{
		{name: "missing kind", msg: CallMessage{Action: core.Action{Payload: core.SinglePayload(core.RequestDescription{Endpoint: "/x"})}}},
		{name: "missing endpoint", msg: CallMessage{Action: core.Action{Kind: "X"}}},
		{name: "missing batch endpoint", msg: CallMessage{Action: core.Action{
			Kind:    "X",
			Payload: core.BatchPayload(core.RequestDescription{Endpoint: "/a"}, core.RequestDescription{}),
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) {
				t.Fatalf("expected go-errors envelope, got %T", err)
			}
			if rich.Category != goerrors.CategoryValidation {
				t.Fatalf("expected validation category, got %q", rich.Category)
			}
			if rich.TextCode != core.TokenAPIErrorBadInput {
				t.Fatalf("expected %q text code, got %q", core.TokenAPIErrorBadInput, rich.TextCode)
			}
		})
	}

	if err := (CallMessage{Action: core.Action{Kind: "X", Payload: core.BatchPayload()}}).Validate(); err != nil {
		t.Fatalf("expected empty batch to validate, got %v", err)
	}
	if err := (StoreCredentialMessage{}).Validate(); err == nil {
		t.Fatalf("expected empty credential validation error")
	}
}

func TestCallCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *CallCommand
	err := cmd.Execute(context.Background(), CallMessage{})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}

func TestRegister_RequiresRegistryAndService(t *testing.T) {
	if err := Register(nil, &stubService{}); err == nil {
		t.Fatalf("expected registry error")
	}
	if err := Register(gocmd.NewRegistry(), nil); err == nil {
		t.Fatalf("expected service error")
	}
}
