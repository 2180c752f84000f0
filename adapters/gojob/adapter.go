// Package gojob defers dispatches through go-job queues: an action is
// encoded into an execution message, and a worker decodes it back and runs
// it through the dispatcher.
package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-tokenapi/core"
)

const (
	JobIDDispatch      = "tokenapi.dispatch"
	ScriptPathDispatch = "tokenapi.dispatch"
)

// Dispatcher is satisfied by *core.Service.
type Dispatcher interface {
	Call(ctx context.Context, action core.Action, sink core.EventSink) (any, error)
}

// RetryPolicy bounds queue retries.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt clamps a nack for the given attempt.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

type Enqueuer struct {
	enqueuer queue.Enqueuer
}

func NewEnqueuer(enqueuer queue.Enqueuer) *Enqueuer {
	return &Enqueuer{enqueuer: enqueuer}
}

// EnqueueAction queues action for a later dispatch. The response handler is
// not carried across the queue.
func (e *Enqueuer) EnqueueAction(ctx context.Context, action core.Action, idempotencyKey string) error {
	if e == nil || e.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	msg, err := ToExecutionMessage(action, idempotencyKey)
	if err != nil {
		return err
	}
	return e.enqueuer.Enqueue(ctx, msg)
}

type Worker struct {
	dispatcher Dispatcher
	sink       core.EventSink
	policy     RetryPolicy
	hook       worker.Hook
	logger     glog.Logger
}

type WorkerOption func(*Worker)

func WithRetryPolicy(policy RetryPolicy) WorkerOption {
	return func(w *Worker) {
		w.policy = policy
	}
}

func WithSink(sink core.EventSink) WorkerOption {
	return func(w *Worker) {
		w.sink = sink
	}
}

func WithHook(hook worker.Hook) WorkerOption {
	return func(w *Worker) {
		w.hook = hook
	}
}

func WithLogger(logger glog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func NewWorker(dispatcher Dispatcher, opts ...WorkerOption) *Worker {
	w := &Worker{
		dispatcher: dispatcher,
		logger:     glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Process dequeues one delivery and handles it.
func (w *Worker) Process(ctx context.Context, dequeuer queue.Dequeuer, attempt int) error {
	if dequeuer == nil {
		return fmt.Errorf("gojob: dequeuer is required")
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	return w.Handle(ctx, delivery, attempt)
}

// Handle dispatches the action carried by delivery. A failed dispatch is
// nacked under the retry policy and its error returned; a value produced by
// the error hook that is itself an error counts as a failure.
func (w *Worker) Handle(ctx context.Context, delivery queue.Delivery, attempt int) error {
	if w == nil || w.dispatcher == nil {
		return fmt.Errorf("gojob: dispatcher is not configured")
	}
	if delivery == nil {
		return fmt.Errorf("gojob: delivery is required")
	}
	msg := delivery.Message()
	event := worker.Event{Message: msg, Delivery: delivery, Attempt: attempt, StartedAt: time.Now().UTC()}
	w.onStart(ctx, event)

	action, err := FromExecutionMessage(msg)
	if err != nil {
		w.logger.Error("dispatch job rejected", "error", err)
		event.Err = err
		event.Duration = time.Since(event.StartedAt)
		w.onFailure(ctx, event)
		return w.nack(ctx, delivery, queue.NackOptions{DeadLetter: true, Reason: err.Error()}, attempt, err)
	}

	value, err := w.dispatcher.Call(ctx, action, w.sink)
	if err == nil {
		if valueErr, ok := value.(error); ok {
			err = valueErr
		}
	}
	event.Duration = time.Since(event.StartedAt)
	if err != nil {
		event.Err = err
		nack := w.policy.NormalizeAttempt(queue.NackOptions{Requeue: true, Reason: err.Error()}, attempt)
		if nack.Requeue {
			event.Delay = nack.Delay
			w.onRetry(ctx, event)
		} else {
			w.onFailure(ctx, event)
		}
		w.logger.Warn("dispatch job failed", "kind", action.Kind, "attempt", attempt, "error", err)
		return w.nack(ctx, delivery, nack, attempt, err)
	}

	if ackErr := delivery.Ack(ctx); ackErr != nil {
		return ackErr
	}
	w.onSuccess(ctx, event)
	return nil
}

func (w *Worker) nack(ctx context.Context, delivery queue.Delivery, opts queue.NackOptions, attempt int, cause error) error {
	if err := delivery.Nack(ctx, w.policy.NormalizeAttempt(opts, attempt)); err != nil {
		return fmt.Errorf("gojob: nack after %v: %w", cause, err)
	}
	return cause
}

func (w *Worker) onStart(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnStart(ctx, event)
	}
}

func (w *Worker) onSuccess(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnSuccess(ctx, event)
	}
}

func (w *Worker) onFailure(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnFailure(ctx, event)
	}
}

func (w *Worker) onRetry(ctx context.Context, event worker.Event) {
	if w.hook != nil {
		w.hook.OnRetry(ctx, event)
	}
}

// LoggingHook reports worker events through a glog logger.
type LoggingHook struct {
	logger glog.Logger
}

func NewLoggingHook(logger glog.Logger) *LoggingHook {
	if logger == nil {
		logger = glog.Nop()
	}
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) OnStart(_ context.Context, event worker.Event) {
	h.logger.Debug("dispatch job started", eventFields(event)...)
}

func (h *LoggingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.logger.Info("dispatch job succeeded", eventFields(event)...)
}

func (h *LoggingHook) OnFailure(_ context.Context, event worker.Event) {
	h.logger.Error("dispatch job failed", eventFields(event)...)
}

func (h *LoggingHook) OnRetry(_ context.Context, event worker.Event) {
	h.logger.Warn("dispatch job retrying", eventFields(event)...)
}

func eventFields(event worker.Event) []any {
	fields := []any{"attempt", event.Attempt, "duration_ms", event.Duration.Milliseconds()}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message != nil {
		fields = append(fields, "job_id", message.JobID, "idempotency_key", message.IdempotencyKey)
		if kind, ok := message.Parameters[paramKind].(string); ok {
			fields = append(fields, "kind", kind)
		}
	}
	if event.Delay > 0 {
		fields = append(fields, "delay_ms", event.Delay.Milliseconds())
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err.Error())
	}
	return fields
}

var (
	_ worker.Hook = (*LoggingHook)(nil)
	_ Dispatcher  = (*core.Service)(nil)
)
