package tokenapi

import (
	"fmt"

	tokencommand "github.com/goliatone/go-tokenapi/command"
	tokenquery "github.com/goliatone/go-tokenapi/query"
)

type CommandQueryService interface {
	tokencommand.Dispatcher
	tokencommand.CredentialService
	tokenquery.CredentialReader
}

type Commands struct {
	Call             *tokencommand.CallCommand
	StoreCredential  *tokencommand.StoreCredentialCommand
	RemoveCredential *tokencommand.RemoveCredentialCommand
}

type Queries struct {
	CredentialStatus *tokenquery.CredentialStatusQuery
}

// Facade groups the command and query handlers bound to one service.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("tokenapi: command/query service is required")
	}
	return &Facade{
		service: service,
		commands: Commands{
			Call:             tokencommand.NewCallCommand(service),
			StoreCredential:  tokencommand.NewStoreCredentialCommand(service),
			RemoveCredential: tokencommand.NewRemoveCredentialCommand(service),
		},
		queries: Queries{
			CredentialStatus: tokenquery.NewCredentialStatusQuery(service),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ CommandQueryService = (*Service)(nil)
