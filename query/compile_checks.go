package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-tokenapi/core"
)

var (
	_ gocmd.Querier[CredentialStatusMessage, CredentialStatus] = (*CredentialStatusQuery)(nil)
	_ CredentialReader                                         = (*core.Service)(nil)
)
