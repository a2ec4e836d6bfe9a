package emailproof

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/gomail.v2"

	"github.com/right-to-ask/rta/core"
	"github.com/right-to-ask/rta/internal/testutil"
	"github.com/right-to-ask/rta/x/identity"
)

type fakeMailer struct {
	sent []*gomail.Message
	fail bool
}

func (f *fakeMailer) DialAndSend(m ...*gomail.Message) error {
	if f.fail {
		return assert.AnError
	}
	f.sent = append(f.sent, m...)
	return nil
}

func setup(t *testing.T) (core.EmailProofService, core.IdentityService, uint, func()) {
	db, cleanup := testutil.CreateDB()
	identitySvc := identity.NewService(identity.NewRepository(db))
	user, err := identitySvc.Register(context.Background(), core.NewRegistrationCommand{UID: "erin", DisplayName: "Erin"}, "key")
	assert.NoError(t, err)

	svc := NewService(NewRepository(db), identitySvc, &fakeMailer{}, "noreply@example.org", []byte("test-secret"), "")
	return svc, identitySvc, user.ID, cleanup
}

func TestRequestAndValidate(t *testing.T) {
	svc, _, userID, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	cmd := core.RequestEmailValidationCommand{
		Email: "erin@example.org",
		Why:   core.EmailProofPurpose{Kind: core.PurposeAccountValidation},
	}
	proof, err := svc.Request(ctx, userID, cmd)
	assert.NoError(t, err)
	assert.NotEmpty(t, proof.Code)

	_, err = svc.Validate(ctx, core.EmailProofCommand{EmailID: proof.ID, Code: "000000"})
	if err == nil {
		t.Skip("random code collided with guess, statistically negligible")
	}
	assert.IsType(t, core.ErrorBadCode{}, err)

	receipt, err := svc.Validate(ctx, core.EmailProofCommand{EmailID: proof.ID, Code: proof.Code})
	assert.NoError(t, err)
	assert.NotEmpty(t, receipt.Message)

	replay, err := svc.Validate(ctx, core.EmailProofCommand{EmailID: proof.ID, Code: proof.Code})
	assert.NoError(t, err)
	assert.Equal(t, receipt.Message, replay.Message)
}

func TestRequestIsShortCircuitedByPriorValidProof(t *testing.T) {
	svc, _, userID, cleanup := setup(t)
	defer cleanup()
	ctx := context.Background()

	cmd := core.RequestEmailValidationCommand{
		Email: "erin@example.org",
		Why:   core.EmailProofPurpose{Kind: core.PurposeAccountValidation},
	}
	first, err := svc.Request(ctx, userID, cmd)
	assert.NoError(t, err)

	second, err := svc.Request(ctx, userID, cmd)
	assert.IsType(t, core.ErrorAlreadyValidated{}, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Code, second.Code)
}

func TestRequestBlockedByDoNotEmail(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	assert.NoError(t, db.Create(&core.DoNotEmail{Email: "blocked@example.org"}).Error)

	identitySvc := identity.NewService(identity.NewRepository(db))
	user, err := identitySvc.Register(ctx, core.NewRegistrationCommand{UID: "frank", DisplayName: "Frank"}, "key")
	assert.NoError(t, err)

	svc := NewService(NewRepository(db), identitySvc, &fakeMailer{}, "noreply@example.org", []byte("test-secret"), "")
	_, err = svc.Request(ctx, user.ID, core.RequestEmailValidationCommand{
		Email: "blocked@example.org",
		Why:   core.EmailProofPurpose{Kind: core.PurposeAccountValidation},
	})
	assert.Error(t, err)
	assert.IsType(t, core.ErrorDoNotEmail{}, err)
}
