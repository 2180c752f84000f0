package command

import (
	"strconv"
	"strings"

	"github.com/goliatone/go-tokenapi/core"
)

const (
	TypeCall             = "tokenapi.command.call"
	TypeStoreCredential  = "tokenapi.command.credential.store"
	TypeRemoveCredential = "tokenapi.command.credential.remove"
)

// CallMessage dispatches Action through the service. A nil Sink uses the
// service's configured sink.
type CallMessage struct {
	Action core.Action
	Sink   core.EventSink
}

func (CallMessage) Type() string { return TypeCall }

func (m CallMessage) Validate() error {
	if strings.TrimSpace(m.Action.Kind) == "" {
		return commandValidationError("action.kind", "action kind is required")
	}
	for index, item := range m.Action.Payload.Items() {
		if strings.TrimSpace(item.Endpoint) != "" {
			continue
		}
		if !m.Action.Payload.IsBatch() {
			return commandValidationError("action.payload.endpoint", "request endpoint is required")
		}
		return commandValidationError("action.payload.items", "request endpoint is required for item "+strconv.Itoa(index))
	}
	return nil
}

type StoreCredentialMessage struct {
	Credential string
}

func (StoreCredentialMessage) Type() string { return TypeStoreCredential }

func (m StoreCredentialMessage) Validate() error {
	if strings.TrimSpace(m.Credential) == "" {
		return commandValidationError("credential", "credential is required")
	}
	return nil
}

type RemoveCredentialMessage struct{}

func (RemoveCredentialMessage) Type() string { return TypeRemoveCredential }

func (RemoveCredentialMessage) Validate() error { return nil }
