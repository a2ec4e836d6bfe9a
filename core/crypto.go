package core

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"

	"github.com/pkg/errors"
)

// GetHash returns the content-address of a bulletin-board payload or a
// question's defining fields. sha256 replaces the teacher's
// keccak256 now that signatures are Ed25519 rather than secp256k1 —
// there is no address-recovery step to keep the two hash families
// aligned with, so the stdlib hash is the idiomatic choice.
func GetHash(bytes []byte) []byte {
	sum := sha256.Sum256(bytes)
	return sum[:]
}

// SignBytes signs a payload with an Ed25519 private key. Ed25519 has no
// separate digest step: the whole message is passed to Sign.
func SignBytes(message []byte, privateKey ed25519.PrivateKey) []byte {
	return ed25519.Sign(privateKey, message)
}

// VerifySignature checks an Ed25519 signature against a raw public key.
// It never panics on malformed input; malformed keys/signatures are
// reported as ordinary errors so callers can map them to BadSignature.
func VerifySignature(message []byte, signature []byte, publicKey ed25519.PublicKey) error {
	if len(publicKey) != ed25519.PublicKeySize {
		return errors.New("malformed public key")
	}
	if len(signature) != ed25519.SignatureSize {
		return errors.New("malformed signature")
	}
	if !ed25519.Verify(publicKey, message, signature) {
		return errors.New("signature does not verify against the given public key")
	}
	return nil
}

// EncodePublicKey / DecodePublicKey round-trip an Ed25519 public key as
// the base64 SPKI-less raw form used on the wire (spec.md keeps keys as
// plain base64, not full ASN.1 SPKI, to stay wire-compact).
func EncodePublicKey(key ed25519.PublicKey) string {
	return base64.StdEncoding.EncodeToString(key)
}

func DecodePublicKey(encoded string) (ed25519.PublicKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode public key")
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errors.New("malformed public key")
	}
	return ed25519.PublicKey(raw), nil
}

func EncodePrivateKey(key ed25519.PrivateKey) string {
	return base64.StdEncoding.EncodeToString(key)
}

func DecodePrivateKey(encoded string) (ed25519.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode private key")
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, errors.New("malformed private key")
	}
	return ed25519.PrivateKey(raw), nil
}
