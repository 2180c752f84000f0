package gocommand

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	tokencommand "github.com/goliatone/go-tokenapi/command"
	"github.com/goliatone/go-tokenapi/core"
	"github.com/goliatone/go-tokenapi/query"
)

// MessagePrefix namespaces every message type published on the dispatcher.
const MessagePrefix = "tokenapi."

// ValidateMessage enforces the bus contract: a type under MessagePrefix and
// a passing Validate when the message has one.
func ValidateMessage(msg command.Message) error {
	if msg == nil {
		return fmt.Errorf("gocommand: message is required")
	}
	messageType := strings.TrimSpace(msg.Type())
	if messageType == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	if !strings.HasPrefix(messageType, MessagePrefix) || messageType == MessagePrefix {
		return fmt.Errorf("gocommand: message type %q must be namespaced under %q", messageType, MessagePrefix)
	}
	return command.ValidateMessage(msg)
}

// Service is the surface published on the dispatcher.
type Service interface {
	tokencommand.Dispatcher
	tokencommand.CredentialService
	query.CredentialReader
}

// RegistryAdapter registers the service handlers on a go-command registry
// and keeps the dispatcher subscriptions it made so Close can release them.
type RegistryAdapter struct {
	registry *command.Registry

	mu            sync.Mutex
	subscriptions []commanddispatcher.Subscription
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

// AddQueueResolver mirrors every registered handler into a go-job queue
// registry when the command registry initializes.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("gocommand: resolver key is required")
	}
	return a.registry.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

// RegisterService registers and subscribes the call, credential and status
// handlers. When any registration fails the subscriptions made by this call
// are released.
func (a *RegistryAdapter) RegisterService(service Service, runnerOpts ...runner.Option) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if service == nil {
		return fmt.Errorf("gocommand: service is required")
	}

	return a.register([]func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[tokencommand.CallMessage](a, tokencommand.NewCallCommand(service), runnerOpts)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[tokencommand.StoreCredentialMessage](a, tokencommand.NewStoreCredentialCommand(service), runnerOpts)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[tokencommand.RemoveCredentialMessage](a, tokencommand.NewRemoveCredentialCommand(service), runnerOpts)
		},
		func() (commanddispatcher.Subscription, error) {
			return registerQuery[query.CredentialStatusMessage, query.CredentialStatus](a, query.NewCredentialStatusQuery(service), runnerOpts)
		},
	})
}

// RegisterDispatcher registers only the call handler. Workers that execute
// deferred calls need nothing else.
func (a *RegistryAdapter) RegisterDispatcher(dispatcher tokencommand.Dispatcher, runnerOpts ...runner.Option) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if dispatcher == nil {
		return fmt.Errorf("gocommand: dispatcher is required")
	}
	return a.register([]func() (commanddispatcher.Subscription, error){
		func() (commanddispatcher.Subscription, error) {
			return registerCommand[tokencommand.CallMessage](a, tokencommand.NewCallCommand(dispatcher), runnerOpts)
		},
	})
}

func (a *RegistryAdapter) register(steps []func() (commanddispatcher.Subscription, error)) error {
	made := make([]commanddispatcher.Subscription, 0, len(steps))
	for _, step := range steps {
		subscription, err := step()
		if err != nil {
			unsubscribeAll(made)
			return err
		}
		made = append(made, subscription)
	}

	a.mu.Lock()
	a.subscriptions = append(a.subscriptions, made...)
	a.mu.Unlock()
	return nil
}

// Subscriptions reports how many dispatcher subscriptions are held.
func (a *RegistryAdapter) Subscriptions() int {
	if a == nil {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subscriptions)
}

// Close unsubscribes every handler registered through the adapter.
func (a *RegistryAdapter) Close() {
	if a == nil {
		return
	}
	a.mu.Lock()
	held := a.subscriptions
	a.subscriptions = nil
	a.mu.Unlock()
	unsubscribeAll(held)
}

func registerCommand[T command.Message](a *RegistryAdapter, cmd command.Commander[T], runnerOpts []runner.Option) (commanddispatcher.Subscription, error) {
	var zero T
	if err := checkMessageType(zero.Type()); err != nil {
		return nil, err
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := a.registry.RegisterCommand(cmd); err != nil {
		unsubscribeAll([]commanddispatcher.Subscription{subscription})
		return nil, err
	}
	return subscription, nil
}

func registerQuery[T command.Message, R any](a *RegistryAdapter, qry command.Querier[T, R], runnerOpts []runner.Option) (commanddispatcher.Subscription, error) {
	var zero T
	if err := checkMessageType(zero.Type()); err != nil {
		return nil, err
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := a.registry.RegisterCommand(qry); err != nil {
		unsubscribeAll([]commanddispatcher.Subscription{subscription})
		return nil, err
	}
	return subscription, nil
}

func checkMessageType(messageType string) error {
	if !strings.HasPrefix(messageType, MessagePrefix) {
		return fmt.Errorf("gocommand: message type %q must be namespaced under %q", messageType, MessagePrefix)
	}
	return nil
}

func unsubscribeAll(subscriptions []commanddispatcher.Subscription) {
	for _, subscription := range subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// CallAction dispatches action on the bus and returns the value the call
// handler stored for it.
func CallAction(ctx context.Context, action core.Action, sink core.EventSink) (any, error) {
	collector := command.NewResult[any]()
	msg := tokencommand.CallMessage{Action: action, Sink: sink}
	if err := commanddispatcher.Dispatch(command.ContextWithResult(ctx, collector), msg); err != nil {
		return nil, err
	}
	value, _ := collector.Load()
	return value, nil
}

func StoreCredential(ctx context.Context, credential string) error {
	return commanddispatcher.Dispatch(ctx, tokencommand.StoreCredentialMessage{Credential: credential})
}

func RemoveCredential(ctx context.Context) error {
	return commanddispatcher.Dispatch(ctx, tokencommand.RemoveCredentialMessage{})
}

func CredentialStatus(ctx context.Context) (query.CredentialStatus, error) {
	return commanddispatcher.Query[query.CredentialStatusMessage, query.CredentialStatus](ctx, query.CredentialStatusMessage{})
}

var (
	_ command.Message = tokencommand.CallMessage{}
	_ command.Message = tokencommand.StoreCredentialMessage{}
	_ command.Message = tokencommand.RemoveCredentialMessage{}
	_ command.Message = query.CredentialStatusMessage{}
	_ Service         = (*core.Service)(nil)
)
