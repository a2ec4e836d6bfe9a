// Package signing verifies inbound SignedEnvelopes against a user's
// registered Ed25519 public key and produces server-signed receipts
// for outbound responses.
package signing

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/right-to-ask/rta/core"
)

var tracer = otel.Tracer("signing")

type service struct {
	serverPublic  ed25519.PublicKey
	serverPrivate ed25519.PrivateKey
}

// NewService creates a signing service from the server's own Ed25519
// keypair, used to countersign outbound receipts.
func NewService(serverPublic ed25519.PublicKey, serverPrivate ed25519.PrivateKey) core.SigningService {
	return &service{serverPublic, serverPrivate}
}

// VerifyEnvelope checks that Envelope.Signature is a valid Ed25519
// signature over Envelope.Message under publicKey. The message bytes
// are taken byte-for-byte from the envelope: dispatch must never
// re-serialize the command before calling this.
func (s *service) VerifyEnvelope(ctx context.Context, envelope core.SignedEnvelope, publicKey ed25519.PublicKey) error {
	_, span := tracer.Start(ctx, "Signing.Service.VerifyEnvelope")
	defer span.End()

	signature, err := base64.StdEncoding.DecodeString(envelope.Signature)
	if err != nil {
		span.RecordError(err)
		return core.NewErrorBadSignature()
	}

	if err := core.VerifySignature([]byte(envelope.Message), signature, publicKey); err != nil {
		span.RecordError(err)
		return core.NewErrorBadSignature()
	}

	return nil
}

// Receipt signs an arbitrary outbound message on behalf of the server,
// so a client can later verify provenance offline against the server's
// published public key.
func (s *service) Receipt(ctx context.Context, message []byte) (core.ServerReceipt, error) {
	_, span := tracer.Start(ctx, "Signing.Service.Receipt")
	defer span.End()

	signature := core.SignBytes(message, s.serverPrivate)
	return core.ServerReceipt{
		Message:   string(message),
		Signature: base64.StdEncoding.EncodeToString(signature),
	}, nil
}

func (s *service) ServerPublicKey() ed25519.PublicKey {
	return s.serverPublic
}

// MarshalReceipt is a convenience used by services that build a receipt
// from a Go struct rather than a pre-serialized message.
func MarshalReceipt(ctx context.Context, svc core.SigningService, v any) (core.ServerReceipt, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return core.ServerReceipt{}, errors.Wrap(err, "failed to marshal receipt body")
	}
	return svc.Receipt(ctx, body)
}
