package query

import (
	"context"
	"errors"

	"github.com/goliatone/go-tokenapi/core"
)

type CredentialReader interface {
	Config() core.Config
	Credential(ctx context.Context) (string, error)
	CredentialNeedsRefresh(ctx context.Context) (bool, error)
}

type CredentialStatusQuery struct {
	reader CredentialReader
}

func NewCredentialStatusQuery(reader CredentialReader) *CredentialStatusQuery {
	return &CredentialStatusQuery{reader: reader}
}

func (q *CredentialStatusQuery) Query(ctx context.Context, _ CredentialStatusMessage) (CredentialStatus, error) {
	if q == nil || q.reader == nil {
		return CredentialStatus{}, queryDependencyError("query: credential reader is required")
	}
	cfg := q.reader.Config()
	status := CredentialStatus{
		StorageKey:     cfg.TokenStorageKey,
		RefreshEnabled: cfg.RefreshEnabled,
	}

	credential, err := q.reader.Credential(ctx)
	if err != nil {
		return CredentialStatus{}, err
	}
	if credential == "" {
		return status, nil
	}
	status.Present = true

	expiresAt, err := core.CredentialExpiry(credential)
	if err != nil {
		status.DecodeError = err.Error()
		return status, nil
	}
	status.ExpiresAt = &expiresAt

	needsRefresh, err := q.reader.CredentialNeedsRefresh(ctx)
	if err != nil {
		if errors.Is(err, core.ErrCredentialDecode) {
			status.DecodeError = err.Error()
			return status, nil
		}
		return CredentialStatus{}, err
	}
	status.NeedsRefresh = needsRefresh
	return status, nil
}
