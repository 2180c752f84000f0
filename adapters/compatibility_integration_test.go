package adapters_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-tokenapi/adapters/gocommand"
	"github.com/goliatone/go-tokenapi/adapters/gojob"
	"github.com/goliatone/go-tokenapi/adapters/gologger"
	tokencommand "github.com/goliatone/go-tokenapi/command"
	"github.com/goliatone/go-tokenapi/core"
	memorystore "github.com/goliatone/go-tokenapi/store/memory"
)

func TestRuntimeCompatibility_GoJobGoCommandGoLogger(t *testing.T) {
	logger := &compatLogger{}
	provider := &compatProvider{logger: logger}

	_, _, jobProvider, jobLogger := gologger.ResolveForJob("", provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	commandAdapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := commandAdapter.AddQueueResolver("queue", queueRegistry); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	if err := commandAdapter.RegisterDispatcher(&compatDispatcher{}); err != nil {
		t.Fatalf("register dispatcher: %v", err)
	}
	defer commandAdapter.Close()
	if err := commandAdapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	if _, ok := queueRegistry.Get(tokencommand.TypeCall); !ok {
		t.Fatalf("expected call command to be mirrored into go-job queue registry")
	}
}

func TestRuntimeCompatibility_DeferredDispatchPublishesLifecycle(t *testing.T) {
	ctx := context.Background()
	logger := &compatLogger{}
	serviceProvider, serviceLogger := gologger.Resolve("", &compatProvider{logger: logger}, nil)

	var lifecycleMu sync.Mutex
	var lifecycle []string
	subscription := gocommand.SubscribeLifecycle(func(_ context.Context, event core.LifecycleEvent) error {
		lifecycleMu.Lock()
		defer lifecycleMu.Unlock()
		lifecycle = append(lifecycle, event.Kind)
		return nil
	})
	defer subscription.Unsubscribe()

	transport := core.TransportFunc(func(_ context.Context, endpoint string, opts core.FetchOptions) (*core.Response, error) {
		if endpoint != "/reports" || opts.Headers["Authorization"] != "JWT queued-token" {
			return &core.Response{StatusCode: http.StatusUnauthorized, Body: []byte("unauthorized")}, nil
		}
		return &core.Response{
			StatusCode: http.StatusOK,
			Headers:    http.Header{"Content-Type": []string{"application/json"}},
			Body:       []byte(`{"count":3}`),
		}, nil
	})
	store := memorystore.New()
	svc, err := core.NewService(core.Config{},
		core.WithLoggerProvider(serviceProvider),
		core.WithLogger(serviceLogger),
		core.WithTransport(transport),
		core.WithCredentialStore(store),
		core.WithEventSink(gocommand.NewDispatchSink(gocommand.WithSinkLogger(serviceLogger))),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.StoreCredential(ctx, "queued-token"); err != nil {
		t.Fatalf("store credential: %v", err)
	}

	broker := &compatQueue{}
	action := core.Action{Kind: "LOAD_REPORTS", Payload: core.SinglePayload(core.RequestDescription{Endpoint: "/reports"})}
	if err := gojob.NewEnqueuer(broker).EnqueueAction(ctx, action, "reports-1"); err != nil {
		t.Fatalf("enqueue action: %v", err)
	}

	worker := gojob.NewWorker(svc, gojob.WithLogger(serviceLogger), gojob.WithHook(gojob.NewLoggingHook(serviceLogger)))
	if err := worker.Process(ctx, broker, 1); err != nil {
		t.Fatalf("process delivery: %v", err)
	}
	if broker.acked != 1 || broker.nacked != 0 {
		t.Fatalf("expected delivery to be acked once, got acked=%d nacked=%d", broker.acked, broker.nacked)
	}

	lifecycleMu.Lock()
	defer lifecycleMu.Unlock()
	if len(lifecycle) != 2 || lifecycle[0] != "LOAD_REPORTS_START" || lifecycle[1] != "LOAD_REPORTS_COMPLETED" {
		t.Fatalf("unexpected lifecycle messages %v", lifecycle)
	}
}

type compatDispatcher struct{}

func (compatDispatcher) Call(context.Context, core.Action, core.EventSink) (any, error) {
	return nil, nil
}

// compatQueue is a single-slot in-memory broker.
type compatQueue struct {
	pending *job.ExecutionMessage
	acked   int
	nacked  int
}

func (q *compatQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	q.pending = msg
	return nil
}

func (q *compatQueue) Dequeue(context.Context) (queue.Delivery, error) {
	if q.pending == nil {
		return nil, errors.New("queue is empty")
	}
	msg := q.pending
	q.pending = nil
	return &compatDelivery{queue: q, msg: msg}, nil
}

type compatDelivery struct {
	queue *compatQueue
	msg   *job.ExecutionMessage
}

func (d *compatDelivery) Message() *job.ExecutionMessage { return d.msg }

func (d *compatDelivery) Ack(context.Context) error {
	d.queue.acked++
	return nil
}

func (d *compatDelivery) Nack(context.Context, queue.NackOptions) error {
	d.queue.nacked++
	return nil
}

type compatProvider struct {
	logger glog.Logger
}

func (p *compatProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type compatLogger struct{}

func (compatLogger) Trace(string, ...any)                    {}
func (compatLogger) Debug(string, ...any)                    {}
func (compatLogger) Info(string, ...any)                     {}
func (compatLogger) Warn(string, ...any)                     {}
func (compatLogger) Error(string, ...any)                    {}
func (compatLogger) Fatal(string, ...any)                    {}
func (compatLogger) WithContext(context.Context) glog.Logger { return compatLogger{} }
