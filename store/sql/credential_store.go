package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-tokenapi/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CredentialStore persists one credential row per storage key.
type CredentialStore struct {
	db    *bun.DB
	repo  repository.Repository[*credentialRecord]
	codec core.CredentialCodec
}

func NewCredentialStore(db *bun.DB, codec core.CredentialCodec) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if codec == nil {
		codec = core.JSONCredentialCodec{}
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	return &CredentialStore{db: db, repo: repo, codec: codec}, nil
}

func (s *CredentialStore) Get(ctx context.Context, key string) (string, error) {
	if s == nil || s.repo == nil {
		return "", fmt.Errorf("sqlstore: credential store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("sqlstore: storage key is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("storage_key", "=", key),
		repository.OrderBy("updated_at DESC"),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}
	return s.decode(records[0])
}

func (s *CredentialStore) Set(ctx context.Context, key string, credential string) error {
	if s == nil || s.repo == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: storage key is required")
	}
	payload, err := s.codec.Encode(credential)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, findErr := findCredentialTx(ctx, tx, key)
		if findErr != nil {
			return findErr
		}
		if record == nil {
			_, createErr := s.repo.CreateTx(ctx, tx, &credentialRecord{
				ID:            uuid.NewString(),
				StorageKey:    key,
				Payload:       payload,
				PayloadFormat: s.codec.Format(),
				CreatedAt:     now,
				UpdatedAt:     now,
			})
			return createErr
		}
		_, updateErr := tx.NewUpdate().
			Model((*credentialRecord)(nil)).
			Set("payload = ?", payload).
			Set("payload_format = ?", s.codec.Format()).
			Set("updated_at = ?", now).
			Where("id = ?", record.ID).
			Exec(ctx)
		return updateErr
	})
}

func (s *CredentialStore) Remove(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*credentialRecord)(nil)).
		Where("storage_key = ?", strings.TrimSpace(key)).
		Exec(ctx)
	return err
}

func (s *CredentialStore) decode(record *credentialRecord) (string, error) {
	if record == nil {
		return "", nil
	}
	format := strings.TrimSpace(record.PayloadFormat)
	if format != "" && format != s.codec.Format() {
		return "", fmt.Errorf(
			"sqlstore: credential %q stored as %q, store decodes %q",
			record.StorageKey,
			format,
			s.codec.Format(),
		)
	}
	return s.codec.Decode(record.Payload)
}

func findCredentialTx(ctx context.Context, tx bun.Tx, key string) (*credentialRecord, error) {
	record := &credentialRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.storage_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}
