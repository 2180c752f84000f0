package security

import (
	"fmt"

	"github.com/goliatone/go-tokenapi/core"
)

const CredentialPayloadFormatSealed = "sealed_token"

type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(payload []byte) ([]byte, error)
}

// SealedCredentialCodec encrypts the payload produced by an inner codec.
type SealedCredentialCodec struct {
	sealer Sealer
	inner  core.CredentialCodec
}

// NewSealedCredentialCodec wraps inner, which defaults to the JSON codec.
func NewSealedCredentialCodec(sealer Sealer, inner core.CredentialCodec) (*SealedCredentialCodec, error) {
	if sealer == nil {
		return nil, fmt.Errorf("security: sealer is required")
	}
	if inner == nil {
		inner = core.JSONCredentialCodec{}
	}
	return &SealedCredentialCodec{sealer: sealer, inner: inner}, nil
}

func (c *SealedCredentialCodec) Format() string {
	return CredentialPayloadFormatSealed
}

func (c *SealedCredentialCodec) Encode(credential string) ([]byte, error) {
	encoded, err := c.inner.Encode(credential)
	if err != nil {
		return nil, err
	}
	return c.sealer.Seal(encoded)
}

// Decode returns an error for a payload that was not sealed by this codec.
func (c *SealedCredentialCodec) Decode(payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", nil
	}
	opened, err := c.sealer.Open(payload)
	if err != nil {
		return "", err
	}
	return c.inner.Decode(opened)
}

var (
	_ core.CredentialCodec = (*SealedCredentialCodec)(nil)
	_ Sealer               = (*AppKeySealer)(nil)
)
