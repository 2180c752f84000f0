package query

import (
	"time"
)

const TypeCredentialStatus = "tokenapi.query.credential.status"

type CredentialStatusMessage struct{}

func (CredentialStatusMessage) Type() string { return TypeCredentialStatus }

func (CredentialStatusMessage) Validate() error { return nil }

// CredentialStatus describes the stored credential without exposing it.
// DecodeError is set when the credential is present but its expiry cannot be
// read; NeedsRefresh is then left false.
type CredentialStatus struct {
	StorageKey     string     `json:"storage_key"`
	Present        bool       `json:"present"`
	RefreshEnabled bool       `json:"refresh_enabled"`
	NeedsRefresh   bool       `json:"needs_refresh"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	DecodeError    string     `json:"decode_error,omitempty"`
}
