package sqlstore

import "github.com/goliatone/go-tokenapi/core"

var (
	_ core.CredentialStore = (*CredentialStore)(nil)
	_ core.CredentialStore = (*CachedCredentialStore)(nil)
)
