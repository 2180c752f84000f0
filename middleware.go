package tokenapi

import (
	"context"
	"strings"

	"github.com/goliatone/go-tokenapi/core"
)

// DefaultActionKey marks a message as a token API call.
const DefaultActionKey = core.DefaultActionKey

// APIAction is a message envelope keyed by an action key.
type APIAction map[string]any

// CreateAPIAction wraps action under DefaultActionKey.
func CreateAPIAction(action core.Action) APIAction {
	return CreateAPIActionWithKey(DefaultActionKey, action)
}

func CreateAPIActionWithKey(key string, action core.Action) APIAction {
	return APIAction{resolveActionKey(key): action}
}

// Handler processes a message and returns its result.
type Handler func(ctx context.Context, msg any) (any, error)

type Dispatcher interface {
	Call(ctx context.Context, action core.Action, sink core.EventSink) (any, error)
}

type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	actionKey string
	sink      core.EventSink
}

func WithActionKey(key string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.actionKey = resolveActionKey(key)
	}
}

func WithMiddlewareSink(sink core.EventSink) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		cfg.sink = sink
	}
}

// Middleware routes messages carrying a core.Action under the action key to
// dispatcher. Every other message goes to next unchanged. The key defaults to
// the dispatcher's configured action key when it exposes one.
func Middleware(dispatcher Dispatcher, opts ...MiddlewareOption) func(next Handler) Handler {
	cfg := middlewareConfig{actionKey: DefaultActionKey}
	if configured, ok := dispatcher.(interface{ Config() core.Config }); ok {
		cfg.actionKey = resolveActionKey(configured.Config().ActionKey)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, msg any) (any, error) {
			action, ok := ExtractAPIAction(msg, cfg.actionKey)
			if !ok || dispatcher == nil {
				if next == nil {
					return msg, nil
				}
				return next(ctx, msg)
			}
			return dispatcher.Call(ctx, action, cfg.sink)
		}
	}
}

// ExtractAPIAction returns the action stored under key in an APIAction or a
// plain map[string]any.
func ExtractAPIAction(msg any, key string) (core.Action, bool) {
	var envelope map[string]any
	switch typed := msg.(type) {
	case APIAction:
		envelope = typed
	case map[string]any:
		envelope = typed
	default:
		return core.Action{}, false
	}
	switch action := envelope[resolveActionKey(key)].(type) {
	case core.Action:
		return action, true
	case *core.Action:
		if action == nil {
			return core.Action{}, false
		}
		return *action, true
	default:
		return core.Action{}, false
	}
}

func resolveActionKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return DefaultActionKey
	}
	return key
}
