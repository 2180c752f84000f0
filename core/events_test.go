package core

import (
	"errors"
	"testing"
)

func TestNewAsyncEvent_ShapesKindAndStep(t *testing.T) {
	meta := Metadata{Values: map[string]any{"page": 2}}
	event := NewStartEvent("FETCH_USER", "payload", meta)
	if event.Kind != "FETCH_USER_START" {
		t.Fatalf("expected FETCH_USER_START, got %q", event.Kind)
	}
	if event.Meta.AsyncStep != StepStart {
		t.Fatalf("expected START step, got %q", event.Meta.AsyncStep)
	}
	if event.Meta.Error {
		t.Fatalf("expected non-error event")
	}
	if event.Optimistic != nil {
		t.Fatalf("expected no optimistic tag without optimistic id")
	}
	if meta.AsyncStep != "" {
		t.Fatalf("expected caller metadata to stay untouched")
	}
	event.Meta.Values["page"] = 3
	if meta.Values["page"] != 2 {
		t.Fatalf("expected event metadata to be a copy")
	}
}

func TestNewAsyncEvent_OptimisticMapping(t *testing.T) {
	meta := Metadata{OptimisticID: "opt_7"}
	cases := []struct {
		event    LifecycleEvent
		expected string
	}{
		{event: NewStartEvent("SAVE", nil, meta), expected: OptimisticBegin},
		{event: NewCompletedEvent("SAVE", "ok", meta), expected: OptimisticCommit},
		{event: NewFailedEvent("SAVE", errors.New("boom"), meta), expected: OptimisticRevert},
	}
	for _, tc := range cases {
		if tc.event.Optimistic == nil {
			t.Fatalf("expected optimistic tag on %s", tc.event.Kind)
		}
		if tc.event.Optimistic.Type != tc.expected || tc.event.Optimistic.ID != "opt_7" {
			t.Fatalf("unexpected optimistic tag %#v on %s", tc.event.Optimistic, tc.event.Kind)
		}
	}
}

func TestNewFailedEvent_WrapsPayloadAsError(t *testing.T) {
	event := NewFailedEvent("SAVE", "server text", Metadata{})
	if event.Kind != "SAVE_FAILED" {
		t.Fatalf("expected SAVE_FAILED, got %q", event.Kind)
	}
	dispatchErr, ok := event.Payload.(*DispatchError)
	if !ok {
		t.Fatalf("expected *DispatchError payload, got %T", event.Payload)
	}
	if dispatchErr.Error() != "server text" {
		t.Fatalf("expected wrapped text, got %q", dispatchErr.Error())
	}
	if !event.Meta.Error {
		t.Fatalf("expected error flag on failed event")
	}

	cause := errors.New("boom")
	event = NewFailedEvent("SAVE", cause, Metadata{})
	if !errors.Is(event.Payload.(error), cause) {
		t.Fatalf("expected failed payload to unwrap to its cause")
	}
}

func TestNewCompletedEvent_ErrorPayloadSetsFlag(t *testing.T) {
	event := NewCompletedEvent("SAVE", errors.New("value is an error"), Metadata{})
	if !event.Meta.Error {
		t.Fatalf("expected error flag when payload is an error")
	}
}
