package core

import (
	"fmt"
	"strings"
)

var optimisticSteps = map[string]string{
	StepStart:     OptimisticBegin,
	StepCompleted: OptimisticCommit,
	StepFailed:    OptimisticRevert,
}

// NewAsyncEvent builds a "<kind>_<step>" event. The metadata is copied and
// tagged with the step; error payloads set Meta.Error.
func NewAsyncEvent(kind string, step string, payload any, meta Metadata) LifecycleEvent {
	step = strings.ToUpper(strings.TrimSpace(step))
	eventMeta := meta.Clone()
	eventMeta.AsyncStep = step
	if _, ok := payload.(error); ok && payload != nil {
		eventMeta.Error = true
	}
	event := LifecycleEvent{
		Kind:    kind + "_" + step,
		Payload: payload,
		Meta:    eventMeta,
	}
	if meta.OptimisticID != "" {
		event.Optimistic = &OptimisticTag{
			Type: optimisticSteps[step],
			ID:   meta.OptimisticID,
		}
	}
	return event
}

func NewStartEvent(kind string, payload any, meta Metadata) LifecycleEvent {
	return NewAsyncEvent(kind, StepStart, payload, meta)
}

func NewCompletedEvent(kind string, payload any, meta Metadata) LifecycleEvent {
	return NewAsyncEvent(kind, StepCompleted, payload, meta)
}

// NewFailedEvent wraps payload in a *DispatchError so FAILED events always
// carry an error.
func NewFailedEvent(kind string, payload any, meta Metadata) LifecycleEvent {
	return NewAsyncEvent(kind, StepFailed, asDispatchError(kind, payload), meta)
}

func asDispatchError(kind string, payload any) *DispatchError {
	switch typed := payload.(type) {
	case *DispatchError:
		return typed
	case error:
		return &DispatchError{Kind: kind, Err: typed}
	case nil:
		return &DispatchError{Kind: kind, Err: ErrRequestFailed}
	default:
		return &DispatchError{Kind: kind, Err: &ResponseError{Text: stringify(typed)}}
	}
}

func stringify(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	default:
		return fmt.Sprint(typed)
	}
}
