package security

import (
	"bytes"
	"strings"
	"testing"

	"github.com/goliatone/go-tokenapi/core"
)

func TestAppKeySealer_SealAndOpen(t *testing.T) {
	sealer, err := NewAppKeySealerFromString("super-secret-test-key", WithKeyID("tokenapi-v1"), WithVersion(3))
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}

	plaintext := []byte("token-value-123")
	sealed, err := sealer.Seal(plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatalf("expected sealed payload to hide the plaintext")
	}
	if !IsSealed(sealed) {
		t.Fatalf("expected envelope prefix")
	}
	meta, err := ParseEnvelopeMetadata(sealed)
	if err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	if meta.KeyID != "tokenapi-v1" || meta.Version != 3 || meta.Algorithm != envelopeAlgorithm {
		t.Fatalf("unexpected envelope metadata %#v", meta)
	}

	opened, err := sealer.Open(sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("expected original plaintext, got %q", string(opened))
	}
}

func TestAppKeySealer_RejectsMetadataMismatch(t *testing.T) {
	issuer, err := NewAppKeySealerFromString("super-secret-test-key", WithKeyID("tokenapi-v1"), WithVersion(1))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	receiver, err := NewAppKeySealerFromString("super-secret-test-key", WithKeyID("tokenapi-v2"), WithVersion(2))
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	sealed, err := issuer.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := receiver.Open(sealed); err == nil {
		t.Fatalf("expected metadata mismatch error")
	}
}

func TestAppKeySealer_RejectsWrongKey(t *testing.T) {
	issuer, _ := NewAppKeySealerFromString("key-one")
	receiver, _ := NewAppKeySealerFromString("key-two")
	sealed, err := issuer.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := receiver.Open(sealed); err == nil || !strings.Contains(err.Error(), "decrypt") {
		t.Fatalf("expected decrypt failure, got %v", err)
	}
}

func TestNewAppKeySealer_RequiresKey(t *testing.T) {
	if _, err := NewAppKeySealerFromString("  "); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestSealedCredentialCodec(t *testing.T) {
	sealer, err := NewAppKeySealerFromString("codec-key")
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	codec, err := NewSealedCredentialCodec(sealer, nil)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	if codec.Format() != CredentialPayloadFormatSealed {
		t.Fatalf("unexpected format %q", codec.Format())
	}

	payload, err := codec.Encode(" tok ")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !IsSealed(payload) {
		t.Fatalf("expected sealed payload")
	}
	credential, err := codec.Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if credential != "tok" {
		t.Fatalf("expected tok, got %q", credential)
	}

	if got, err := codec.Decode(nil); err != nil || got != "" {
		t.Fatalf("expected empty payload to decode as absent, got %q %v", got, err)
	}
	if _, err := codec.Decode([]byte(`"plain"`)); err == nil {
		t.Fatalf("expected unsealed payload to be rejected")
	}
	if _, err := codec.Encode(""); err == nil {
		t.Fatalf("expected empty credential to be rejected")
	}
	if _, err := NewSealedCredentialCodec(nil, core.RawCredentialCodec{}); err == nil {
		t.Fatalf("expected missing sealer error")
	}
}
