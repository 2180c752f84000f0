package gocommand

import (
	"context"
	"fmt"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-tokenapi/core"
)

const TypeLifecycle = "tokenapi.lifecycle"

// LifecycleMessage carries a START, COMPLETED or FAILED event through the
// command dispatcher.
type LifecycleMessage struct {
	Event core.LifecycleEvent
}

func (LifecycleMessage) Type() string { return TypeLifecycle }

func (m LifecycleMessage) Validate() error {
	if m.Event.Kind == "" {
		return fmt.Errorf("gocommand: lifecycle event kind is required")
	}
	return nil
}

type DispatchSinkOption func(*DispatchSink)

func WithSinkLogger(logger glog.Logger) DispatchSinkOption {
	return func(s *DispatchSink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithSinkErrorHandler(handler func(context.Context, core.LifecycleEvent, error)) DispatchSinkOption {
	return func(s *DispatchSink) {
		s.onError = handler
	}
}

// DispatchSink publishes lifecycle events as LifecycleMessage. Emit never
// fails the dispatch that produced the event; subscriber errors go to the
// error handler or the logger.
type DispatchSink struct {
	logger  glog.Logger
	onError func(context.Context, core.LifecycleEvent, error)
}

func NewDispatchSink(opts ...DispatchSinkOption) *DispatchSink {
	sink := &DispatchSink{logger: glog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(sink)
		}
	}
	return sink
}

func (s *DispatchSink) Emit(ctx context.Context, event core.LifecycleEvent) {
	if s == nil {
		return
	}
	err := commanddispatcher.Dispatch(ctx, LifecycleMessage{Event: event})
	if err == nil {
		return
	}
	if s.onError != nil {
		s.onError(ctx, event, err)
		return
	}
	s.logger.Warn("lifecycle dispatch failed", "kind", event.Kind, "step", event.Meta.AsyncStep, "error", err)
}

func SubscribeLifecycle(handler func(context.Context, core.LifecycleEvent) error, runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(command.CommandFunc[LifecycleMessage](func(ctx context.Context, msg LifecycleMessage) error {
		return handler(ctx, msg.Event)
	}), runnerOpts...)
}

var (
	_ core.EventSink  = (*DispatchSink)(nil)
	_ command.Message = LifecycleMessage{}
)
