package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-tokenapi/core"
)

type Dispatcher interface {
	Call(ctx context.Context, action core.Action, sink core.EventSink) (any, error)
}

type CredentialService interface {
	StoreCredential(ctx context.Context, credential string) error
	RemoveCredential(ctx context.Context) error
}

type CallCommand struct {
	service Dispatcher
}

func NewCallCommand(service Dispatcher) *CallCommand {
	return &CallCommand{service: service}
}

// Execute stores the dispatch value in the context result collector. A value
// returned by the error hook is stored the same way as a resolved value.
func (c *CallCommand) Execute(ctx context.Context, msg CallMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: call dispatcher is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.Call(ctx, msg.Action, msg.Sink)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type StoreCredentialCommand struct {
	service CredentialService
}

func NewStoreCredentialCommand(service CredentialService) *StoreCredentialCommand {
	return &StoreCredentialCommand{service: service}
}

func (c *StoreCredentialCommand) Execute(ctx context.Context, msg StoreCredentialMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.service.StoreCredential(ctx, msg.Credential)
}

type RemoveCredentialCommand struct {
	service CredentialService
}

func NewRemoveCredentialCommand(service CredentialService) *RemoveCredentialCommand {
	return &RemoveCredentialCommand{service: service}
}

func (c *RemoveCredentialCommand) Execute(ctx context.Context, _ RemoveCredentialMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: credential service is required")
	}
	return c.service.RemoveCredential(ctx)
}

// Register adds the call and credential commands to registry.
func Register(registry *gocmd.Registry, service interface {
	Dispatcher
	CredentialService
}) error {
	if registry == nil {
		return commandInvalidInputError("command: registry is required")
	}
	if service == nil {
		return commandDependencyError("command: service is required")
	}
	if err := registry.RegisterCommand(NewCallCommand(service)); err != nil {
		return err
	}
	if err := registry.RegisterCommand(NewStoreCredentialCommand(service)); err != nil {
		return err
	}
	return registry.RegisterCommand(NewRemoveCredentialCommand(service))
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
