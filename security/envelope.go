package security

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	envelopePrefix    = "tokenapi.credential.v1:"
	envelopeAlgorithm = "aes-256-gcm"
)

type envelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

type EnvelopeMetadata struct {
	KeyID     string
	Version   int
	Algorithm string
}

// IsSealed reports whether payload carries the sealed credential prefix.
func IsSealed(payload []byte) bool {
	return strings.HasPrefix(string(payload), envelopePrefix)
}

func ParseEnvelopeMetadata(payload []byte) (EnvelopeMetadata, error) {
	env, err := decodeEnvelope(payload)
	if err != nil {
		return EnvelopeMetadata{}, err
	}
	return EnvelopeMetadata{KeyID: env.KeyID, Version: env.Version, Algorithm: env.Algorithm}, nil
}

func encodeEnvelope(env envelope) ([]byte, error) {
	data, err := json.Marshal(normalizeEnvelope(env))
	if err != nil {
		return nil, fmt.Errorf("security: encode envelope: %w", err)
	}
	return append([]byte(envelopePrefix), data...), nil
}

func decodeEnvelope(payload []byte) (envelope, error) {
	if len(payload) == 0 {
		return envelope{}, fmt.Errorf("security: sealed payload is required")
	}
	if !IsSealed(payload) {
		return envelope{}, fmt.Errorf("security: invalid sealed credential prefix")
	}
	parsed := envelope{}
	if err := json.Unmarshal([]byte(strings.TrimPrefix(string(payload), envelopePrefix)), &parsed); err != nil {
		return envelope{}, fmt.Errorf("security: decode envelope: %w", err)
	}
	parsed = normalizeEnvelope(parsed)
	if parsed.Ciphertext == "" {
		return envelope{}, fmt.Errorf("security: envelope ciphertext is required")
	}
	return parsed, nil
}

func normalizeEnvelope(in envelope) envelope {
	in.KeyID = strings.TrimSpace(in.KeyID)
	in.Algorithm = strings.ToLower(strings.TrimSpace(in.Algorithm))
	return in
}

func decodeBase64(field string, value string) ([]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("security: envelope %s is required", field)
	}
	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("security: decode %s: %w", field, err)
	}
	return decoded, nil
}
