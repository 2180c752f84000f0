package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	CredentialPayloadFormatRaw  = "raw_token"
	CredentialPayloadFormatJSON = "json_token"
)

// JSONCredentialCodec stores credentials as JSON strings. A payload that is
// not valid JSON decodes to an absent credential.
type JSONCredentialCodec struct{}

func (JSONCredentialCodec) Format() string {
	return CredentialPayloadFormatJSON
}

func (JSONCredentialCodec) Encode(credential string) ([]byte, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, fmt.Errorf("core: credential payload requires a token")
	}
	encoded, err := json.Marshal(credential)
	if err != nil {
		return nil, fmt.Errorf("core: encode credential payload: %w", err)
	}
	return encoded, nil
}

func (JSONCredentialCodec) Decode(payload []byte) (string, error) {
	if len(strings.TrimSpace(string(payload))) == 0 {
		return "", nil
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return "", nil
		}
		return "", fmt.Errorf("core: decode credential payload: %w", err)
	}
	switch typed := decoded.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(typed), nil
	default:
		token, err := ExtractCredential(typed)
		if err != nil {
			return "", nil
		}
		return token, nil
	}
}

// RawCredentialCodec stores the credential bytes unchanged.
type RawCredentialCodec struct{}

func (RawCredentialCodec) Format() string {
	return CredentialPayloadFormatRaw
}

func (RawCredentialCodec) Encode(credential string) ([]byte, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, fmt.Errorf("core: credential payload requires a token")
	}
	return []byte(credential), nil
}

func (RawCredentialCodec) Decode(payload []byte) (string, error) {
	return strings.TrimSpace(string(payload)), nil
}
