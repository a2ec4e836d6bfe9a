package signing

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/right-to-ask/rta/core"
)

func TestVerifyEnvelope(t *testing.T) {
	ctx := context.Background()
	pub, priv, err := ed25519.GenerateKey(nil)
	assert.NoError(t, err)

	serverPub, serverPriv, _ := ed25519.GenerateKey(nil)
	svc := NewService(serverPub, serverPriv)

	message := `{"kind":"new_question"}`
	sig := core.SignBytes([]byte(message), priv)
	envelope := core.SignedEnvelope{
		Message:   message,
		User:      "alice",
		Signature: base64.StdEncoding.EncodeToString(sig),
	}

	err = svc.VerifyEnvelope(ctx, envelope, pub)
	assert.NoError(t, err)
}

func TestVerifyEnvelopeBadSignature(t *testing.T) {
	ctx := context.Background()
	pub, _, _ := ed25519.GenerateKey(nil)
	_, otherPriv, _ := ed25519.GenerateKey(nil)

	serverPub, serverPriv, _ := ed25519.GenerateKey(nil)
	svc := NewService(serverPub, serverPriv)

	message := `{"kind":"new_question"}`
	sig := core.SignBytes([]byte(message), otherPriv)
	envelope := core.SignedEnvelope{
		Message:   message,
		Signature: base64.StdEncoding.EncodeToString(sig),
	}

	err := svc.VerifyEnvelope(ctx, envelope, pub)
	assert.Error(t, err)
	assert.IsType(t, core.ErrorBadSignature{}, err)
}

func TestReceiptRoundTrip(t *testing.T) {
	ctx := context.Background()
	serverPub, serverPriv, _ := ed25519.GenerateKey(nil)
	svc := NewService(serverPub, serverPriv)

	receipt, err := svc.Receipt(ctx, []byte(`{"ok":true}`))
	assert.NoError(t, err)

	sig, err := base64.StdEncoding.DecodeString(receipt.Signature)
	assert.NoError(t, err)
	assert.NoError(t, core.VerifySignature([]byte(receipt.Message), sig, svc.ServerPublicKey()))
}
