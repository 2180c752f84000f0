package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[CallMessage]             = (*CallCommand)(nil)
	_ gocmd.Commander[StoreCredentialMessage]  = (*StoreCredentialCommand)(nil)
	_ gocmd.Commander[RemoveCredentialMessage] = (*RemoveCredentialCommand)(nil)
)
