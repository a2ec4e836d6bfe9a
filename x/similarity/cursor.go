package similarity

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/right-to-ask/rta/core"
)

const snapshotTTL = 5 * time.Minute

type snapshot struct {
	SnapshotID string    `json:"snapshotId"`
	Offset     int       `json:"offset"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// signToken and openToken implement the "signed opaque handle" idiom:
// base64(json(snapshot)) + "." + hex(hmac-sha256(secret, that)).
// A tampered or expired token is rejected before any query runs.
func signToken(secret []byte, s snapshot) string {
	body, _ := json.Marshal(s)
	encoded := base64.RawURLEncoding.EncodeToString(body)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(encoded))
	return encoded + "." + hex.EncodeToString(mac.Sum(nil))
}

func openToken(secret []byte, token string) (snapshot, error) {
	dot := -1
	for i := len(token) - 1; i >= 0; i-- {
		if token[i] == '.' {
			dot = i
			break
		}
	}
	if dot < 0 {
		return snapshot{}, core.NewErrorMalformed("malformed page token")
	}
	encoded, sig := token[:dot], token[dot+1:]

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(encoded))
	expected := hex.EncodeToString(mac.Sum(nil))
	if subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
		return snapshot{}, core.NewErrorMalformed("page token signature mismatch")
	}

	body, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return snapshot{}, core.NewErrorMalformed("malformed page token")
	}
	var s snapshot
	if err := json.Unmarshal(body, &s); err != nil {
		return snapshot{}, errors.Wrap(err, "failed to decode page token")
	}
	if time.Now().After(s.ExpiresAt) {
		return snapshot{}, core.NewErrorPageTokenExpired()
	}
	return s, nil
}
