package dispatch

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/right-to-ask/rta/core"
	"github.com/right-to-ask/rta/internal/testutil"
	"github.com/right-to-ask/rta/x/board"
	"github.com/right-to-ask/rta/x/censorship"
	"github.com/right-to-ask/rta/x/identity"
	"github.com/right-to-ask/rta/x/question"
	"github.com/right-to-ask/rta/x/signing"
)

func setupDispatch(t *testing.T) (core.DispatchService, func()) {
	db, cleanup := testutil.CreateDB()

	serverPublic, serverPrivate, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	signer := signing.NewService(serverPublic, serverPrivate)
	boardSvc := board.NewService(board.NewRepository(db), signer)
	identitySvc := identity.NewService(identity.NewRepository(db))
	censorSvc := censorship.NewService(censorship.NewRepository(db), boardSvc, nil)
	questionSvc := question.NewService(question.NewRepository(db), boardSvc, censorSvc, identitySvc, nil, false)

	svc := NewService(signer, identitySvc, questionSvc, nil, censorSvc, nil, boardSvc)
	return svc, cleanup
}

func envelopeFor(t *testing.T, cmd any, uid string, priv ed25519.PrivateKey) core.SignedEnvelope {
	body, err := json.Marshal(cmd)
	require.NoError(t, err)
	sig := core.SignBytes(body, priv)
	return core.SignedEnvelope{
		Message:   string(body),
		User:      uid,
		Signature: base64.StdEncoding.EncodeToString(sig),
	}
}

func TestHandleRegistersAndCreatesQuestion(t *testing.T) {
	svc, cleanup := setupDispatch(t)
	defer cleanup()
	ctx := context.Background()

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	regCmd := core.NewRegistrationCommand{
		UID:         "alice",
		DisplayName: "Alice",
		PublicKey:   core.EncodePublicKey(pub),
		SignedAt:    time.Now(),
	}
	_, err = svc.Handle(ctx, "new_registration", envelopeFor(t, regCmd, "alice", priv))
	require.NoError(t, err)

	askCmd := core.NewQuestionCommand{
		Text:     "when will the roading budget be reviewed",
		SignedAt: time.Now(),
	}
	result, err := svc.Handle(ctx, "new_question", envelopeFor(t, askCmd, "alice", priv))
	require.NoError(t, err)

	question, ok := result.(core.Question)
	require.True(t, ok)
	assert.Equal(t, "when will the roading budget be reviewed", question.Text)
}

func TestHandleRejectsBadSignature(t *testing.T) {
	svc, cleanup := setupDispatch(t)
	defer cleanup()
	ctx := context.Background()

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	regCmd := core.NewRegistrationCommand{UID: "bob", DisplayName: "Bob", PublicKey: core.EncodePublicKey(pub), SignedAt: time.Now()}
	_, err = svc.Handle(ctx, "new_registration", envelopeFor(t, regCmd, "bob", priv))
	require.NoError(t, err)

	voteCmd := core.VoteCommand{QuestionID: "does-not-matter", Value: 1, SignedAt: time.Now()}
	envelope := envelopeFor(t, voteCmd, "bob", otherPriv) // signed with the wrong key
	_, err = svc.Handle(ctx, "vote", envelope)
	assert.IsType(t, core.ErrorBadSignature{}, err)
}

func TestHandleRejectsUnknownKind(t *testing.T) {
	svc, cleanup := setupDispatch(t)
	defer cleanup()
	ctx := context.Background()

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	regCmd := core.NewRegistrationCommand{UID: "carol", DisplayName: "Carol", PublicKey: core.EncodePublicKey(pub), SignedAt: time.Now()}
	_, err = svc.Handle(ctx, "new_registration", envelopeFor(t, regCmd, "carol", priv))
	require.NoError(t, err)

	_, err = svc.Handle(ctx, "not_a_real_kind", envelopeFor(t, struct{}{}, "carol", priv))
	assert.IsType(t, core.ErrorMalformed{}, err)
}
