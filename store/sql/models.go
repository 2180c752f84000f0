package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type credentialRecord struct {
	bun.BaseModel `bun:"table:tokenapi_credentials,alias:tc"`

	ID            string    `bun:"id,pk"`
	StorageKey    string    `bun:"storage_key,notnull"`
	Payload       []byte    `bun:"payload,notnull"`
	PayloadFormat string    `bun:"payload_format,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
