package core

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// DispatchDeps holds the collaborators of a single dispatch. Zero fields fall
// back to the package defaults, except Transport which is required.
type DispatchDeps struct {
	BuildFetchArgs  FetchArgsBuilder
	Validate        ResponseValidator
	Transport       Transport
	PreserveHeaders HeaderPreserver
	Resolve         ResponseResolver
	BuildHandler    HandlerBuilder
	NewStart        EventFactory
	NewCompleted    EventFactory
}

func (d DispatchDeps) withDefaults() DispatchDeps {
	if d.BuildFetchArgs == nil {
		attach := AuthorizationAttacher(DefaultAuthScheme)
		d.BuildFetchArgs = func(desc RequestDescription, credential string, authenticate bool) FetchArgs {
			return BuildFetchArgs(desc, credential, authenticate, DefaultHeaders(), attach, nil)
		}
	}
	if d.Validate == nil {
		d.Validate = CheckResponseOK
	}
	if d.PreserveHeaders == nil {
		d.PreserveHeaders = PreserveHeaderValues
	}
	if d.Resolve == nil {
		d.Resolve = Resolve
	}
	if d.BuildHandler == nil {
		d.BuildHandler = ResponseHandlerWithMeta
	}
	if d.NewStart == nil {
		d.NewStart = NewStartEvent
	}
	if d.NewCompleted == nil {
		d.NewCompleted = NewCompletedEvent
	}
	return d
}

// RequestFromAction emits START, performs the action's single or batched
// request with credential and emits COMPLETED with the handled value.
// Failures are returned without emitting FAILED.
func RequestFromAction(
	ctx context.Context,
	action Action,
	sink EventSink,
	credential string,
	deps DispatchDeps,
) (any, error) {
	deps = deps.withDefaults()
	emit(ctx, sink, deps.NewStart(action.Kind, action.Payload, action.Meta))
	return completeAction(ctx, action, sink, credential, deps)
}

func completeAction(
	ctx context.Context,
	action Action,
	sink EventSink,
	credential string,
	deps DispatchDeps,
) (any, error) {
	if deps.Transport == nil {
		return nil, ErrTransportRequired
	}
	if action.Payload.IsBatch() {
		return dispatchBatch(ctx, action, sink, credential, deps)
	}
	return dispatchSingle(ctx, action, sink, credential, deps)
}

func dispatchSingle(
	ctx context.Context,
	action Action,
	sink EventSink,
	credential string,
	deps DispatchDeps,
) (any, error) {
	handler := deps.BuildHandler(action.Meta)
	args := deps.BuildFetchArgs(action.Payload.Single(), credential, action.Meta.ShouldAuthenticate())

	response, err := deps.Transport.Do(ctx, args.Endpoint, args.Options)
	if err != nil {
		return nil, stageError(ErrRequestFailed, err)
	}
	meta := action.Meta.Clone()
	if preserved := deps.PreserveHeaders(action.Meta, response); preserved != nil {
		meta.PreservedHeaders = preserved
	}
	resolved, err := deps.Resolve(ctx, response, deps.Validate, nil)
	if err != nil {
		return nil, err
	}
	handled, err := handler(resolved)
	if err != nil {
		return nil, err
	}
	emit(ctx, sink, deps.NewCompleted(action.Kind, handled, meta))
	return handled, nil
}

// dispatchBatch fans the items out concurrently and settles them as one
// unit. The first failure is returned without waiting for the remaining
// requests; results keep input order.
func dispatchBatch(
	ctx context.Context,
	action Action,
	sink EventSink,
	credential string,
	deps DispatchDeps,
) (any, error) {
	handler := deps.BuildHandler(action.Meta)
	authenticate := action.Meta.ShouldAuthenticate()
	items := action.Payload.Items()
	results := make([]any, len(items))

	group, groupCtx := errgroup.WithContext(ctx)
	for index, item := range items {
		group.Go(func() error {
			args := deps.BuildFetchArgs(item, credential, authenticate)
			response, err := deps.Transport.Do(ctx, args.Endpoint, args.Options)
			if err != nil {
				return stageError(ErrRequestFailed, err)
			}
			resolved, err := deps.Resolve(ctx, response, deps.Validate, nil)
			if err != nil {
				return err
			}
			results[index] = resolved
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- group.Wait()
	}()

	var err error
	select {
	case err = <-done:
	case <-groupCtx.Done():
		cause := context.Cause(groupCtx)
		switch {
		case ctx.Err() != nil:
			err = context.Cause(ctx)
		case errors.Is(cause, context.Canceled):
			err = <-done
		default:
			err = cause
		}
	}
	if err != nil {
		return nil, err
	}

	handled, err := handler(results)
	if err != nil {
		return nil, err
	}
	emit(ctx, sink, deps.NewCompleted(action.Kind, handled, action.Meta))
	return handled, nil
}

func emit(ctx context.Context, sink EventSink, event LifecycleEvent) {
	if sink == nil {
		return
	}
	sink.Emit(ctx, event)
}
