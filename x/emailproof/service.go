package emailproof

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/gomail.v2"
	"gorm.io/gorm"

	"github.com/right-to-ask/rta/core"
)

// rateLimits caps how many outbound emails a single address can
// trigger per window, independent of which user is requesting.
var rateLimits = map[core.Timescale]int{
	core.TimescaleDay:   5,
	core.TimescaleMonth: 30,
}

const codeTTL = 15 * time.Minute

// Mailer is the narrow surface emailproof needs from an SMTP relay,
// satisfied by *gomail.Dialer in production and a fake in tests.
type Mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// ConsoleMailer stands in for a relay when none is configured: it logs
// the message instead of sending it.
type ConsoleMailer struct{}

func (ConsoleMailer) DialAndSend(m ...*gomail.Message) error {
	for _, msg := range m {
		slog.Info("email relay not configured, printing message to console",
			"to", msg.GetHeader("To"), "subject", msg.GetHeader("Subject"))
	}
	return nil
}

type service struct {
	repo                 Repository
	identity             core.IdentityService
	mailer               Mailer
	fromAddr             string
	secret               []byte
	testingEmailOverride string
}

func NewService(repo Repository, identity core.IdentityService, mailer Mailer, fromAddr string, secret []byte, testingEmailOverride string) core.EmailProofService {
	return &service{repo, identity, mailer, fromAddr, secret, testingEmailOverride}
}

// deterministicID hashes (user, email, why, server-secret) so a
// request repeated before the pending proof expires resolves to the
// same "email id" instead of minting a fresh one every time.
func deterministicID(secret []byte, userID uint, email string, whyJSON []byte) string {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%d:%s:%s", userID, email, whyJSON)
	return hex.EncodeToString(mac.Sum(nil))
}

// Request generates a fresh 6-digit code, records it under a
// deterministic id (which doubles as the "email id" clients reference
// in the follow-up email_proof command), and relays it by SMTP.
func (s *service) Request(ctx context.Context, userID uint, cmd core.RequestEmailValidationCommand) (core.PendingEmailProof, error) {
	ctx, span := tracer.Start(ctx, "EmailProof.Service.Request")
	defer span.End()

	whyJSON, err := json.Marshal(cmd.Why)
	if err != nil {
		span.RecordError(err)
		return core.PendingEmailProof{}, core.NewErrorInternal(err)
	}
	id := deterministicID(s.secret, userID, cmd.Email, whyJSON)

	existing, err := s.repo.Get(ctx, id)
	if err == nil {
		if time.Now().Before(existing.ExpiresAt) {
			return existing, core.NewErrorAlreadyValidated(id)
		}
	} else if err != gorm.ErrRecordNotFound {
		span.RecordError(err)
		return core.PendingEmailProof{}, core.NewErrorInternal(err)
	}

	blocked, err := s.repo.IsDoNotEmail(ctx, cmd.Email)
	if err != nil {
		span.RecordError(err)
		return core.PendingEmailProof{}, core.NewErrorInternal(err)
	}
	if blocked {
		return core.PendingEmailProof{}, core.NewErrorDoNotEmail()
	}

	now := time.Now()
	for ts, limit := range rateLimits {
		windowEnd := windowEndFor(ts, now)
		if err := s.repo.IncrementRateLimit(ctx, cmd.Email, ts, windowEnd, limit); err != nil {
			span.RecordError(err)
			return core.PendingEmailProof{}, err
		}
	}

	code, err := generateCode()
	if err != nil {
		span.RecordError(err)
		return core.PendingEmailProof{}, core.NewErrorInternal(err)
	}

	proof := core.PendingEmailProof{
		ID:        id,
		UserID:    userID,
		Email:     cmd.Email,
		Why:       string(whyJSON),
		Code:      code,
		ExpiresAt: now.Add(codeTTL),
	}

	created, err := s.repo.Create(ctx, proof)
	if err != nil {
		span.RecordError(err)
		return core.PendingEmailProof{}, core.NewErrorInternal(err)
	}

	to := cmd.Email
	if s.testingEmailOverride != "" {
		to = s.testingEmailOverride
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.fromAddr)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", "Your verification code")
	msg.SetBody("text/plain", fmt.Sprintf("Your verification code is %s. It expires in 15 minutes.", code))

	sendErr := s.mailer.DialAndSend(msg)
	if markErr := s.repo.MarkSent(ctx, id, sendErr == nil); markErr != nil {
		span.RecordError(markErr)
	}
	if sendErr != nil {
		span.RecordError(sendErr)
		return created, errors.Wrap(sendErr, "failed to send verification email")
	}

	return created, nil
}

// Validate consumes a pending proof. Replaying an already-consumed
// proof with the matching code is not an error: it returns the cached
// receipt so a client that missed the first response can retry safely.
// The receipt's Message is the JSON of the consumed proof record; its
// Signature is left empty.
func (s *service) Validate(ctx context.Context, cmd core.EmailProofCommand) (core.ServerReceipt, error) {
	ctx, span := tracer.Start(ctx, "EmailProof.Service.Validate")
	defer span.End()

	proof, err := s.repo.Get(ctx, cmd.EmailID)
	if err != nil {
		span.RecordError(err)
		return core.ServerReceipt{}, core.NewErrorMalformed("unknown email proof id")
	}

	if subtle.ConstantTimeCompare([]byte(proof.Code), []byte(cmd.Code)) != 1 {
		return core.ServerReceipt{}, core.NewErrorBadCode()
	}

	if proof.Consumed {
		if proof.ReceiptJSON == nil {
			return core.ServerReceipt{}, core.NewErrorAlreadyValidated(proof.ID)
		}
		var receipt core.ServerReceipt
		if err := json.Unmarshal([]byte(*proof.ReceiptJSON), &receipt); err != nil {
			span.RecordError(err)
			return core.ServerReceipt{}, core.NewErrorInternal(err)
		}
		return receipt, nil
	}

	if time.Now().After(proof.ExpiresAt) {
		return core.ServerReceipt{}, core.NewErrorMalformed("code expired")
	}

	var why core.EmailProofPurpose
	if err := json.Unmarshal([]byte(proof.Why), &why); err != nil {
		span.RecordError(err)
		return core.ServerReceipt{}, core.NewErrorInternal(err)
	}

	if err := s.applyPurpose(ctx, proof.UserID, proof.Email, why); err != nil {
		span.RecordError(err)
		return core.ServerReceipt{}, err
	}

	receiptBody, _ := json.Marshal(proof)
	receipt := core.ServerReceipt{Message: string(receiptBody)}
	receiptJSON, _ := json.Marshal(receipt)
	receiptStr := string(receiptJSON)

	if err := s.repo.MarkConsumed(ctx, proof.ID, receiptStr); err != nil {
		span.RecordError(err)
		return core.ServerReceipt{}, core.NewErrorInternal(err)
	}

	return receipt, nil
}

func (s *service) applyPurpose(ctx context.Context, userID uint, email string, why core.EmailProofPurpose) error {
	switch why.Kind {
	case core.PurposeAccountValidation:
		if _, err := s.identity.GrantBadge(ctx, userID, core.BadgeKindEmailDomain, ""); err != nil {
			return err
		}
		return s.identity.SetVerifiedEmail(ctx, userID, email)
	case core.PurposeAsMP:
		_, err := s.identity.GrantBadge(ctx, userID, core.BadgeKindMP, why.MP)
		return err
	case core.PurposeAsMPStaffer:
		_, err := s.identity.GrantBadge(ctx, userID, core.BadgeKindMPStaff, why.MP)
		return err
	case core.PurposeAsOrg:
		_, err := s.identity.GrantBadge(ctx, userID, core.BadgeKindEmailDomain, why.MP)
		return err
	case core.PurposeRevokeMP:
		kind := core.BadgeKindMP
		if why.IsStaffer {
			kind = core.BadgeKindMPStaff
		}
		return s.identity.RevokeBadge(ctx, userID, kind, why.MP)
	case core.PurposeRevokeOrg:
		return s.identity.RevokeBadge(ctx, userID, core.BadgeKindEmailDomain, why.MP)
	default:
		return core.NewErrorMalformed("unknown email proof purpose")
	}
}

func (s *service) PutOnDoNotEmailList(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "EmailProof.Service.PutOnDoNotEmailList")
	defer span.End()

	if err := s.repo.AddDoNotEmail(ctx, email); err != nil {
		span.RecordError(err)
		return core.NewErrorInternal(err)
	}
	return nil
}

func (s *service) TakeOffDoNotEmailList(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "EmailProof.Service.TakeOffDoNotEmailList")
	defer span.End()

	if err := s.repo.RemoveDoNotEmail(ctx, email); err != nil {
		span.RecordError(err)
		return core.NewErrorInternal(err)
	}
	return nil
}

func (s *service) GetDoNotEmailList(ctx context.Context) ([]core.DoNotEmail, error) {
	ctx, span := tracer.Start(ctx, "EmailProof.Service.GetDoNotEmailList")
	defer span.End()

	rows, err := s.repo.ListDoNotEmail(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, core.NewErrorInternal(err)
	}
	return rows, nil
}

func (s *service) GetTimesSent(ctx context.Context, ts core.Timescale) ([]core.EmailRateLimitHistory, error) {
	ctx, span := tracer.Start(ctx, "EmailProof.Service.GetTimesSent")
	defer span.End()

	rows, err := s.repo.RateLimitHistory(ctx, ts)
	if err != nil {
		span.RecordError(err)
		return nil, core.NewErrorInternal(err)
	}
	return rows, nil
}

func (s *service) ResetTimesSent(ctx context.Context, ts core.Timescale) error {
	ctx, span := tracer.Start(ctx, "EmailProof.Service.ResetTimesSent")
	defer span.End()

	if err := s.repo.ResetRateLimitHistory(ctx, ts); err != nil {
		span.RecordError(err)
		return core.NewErrorInternal(err)
	}
	return nil
}

func (s *service) TakeOffTimesSentList(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "EmailProof.Service.TakeOffTimesSentList")
	defer span.End()

	if err := s.repo.DeleteRateLimitHistory(ctx, email); err != nil {
		span.RecordError(err)
		return core.NewErrorInternal(err)
	}
	return nil
}

func generateCode() (string, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	n := (uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])) % 1000000
	return fmt.Sprintf("%06d", n), nil
}

func windowEndFor(ts core.Timescale, now time.Time) time.Time {
	switch ts {
	case core.TimescaleDay:
		return now.Add(24 * time.Hour)
	case core.TimescaleMonth:
		return now.AddDate(0, 1, 0)
	default:
		return now.Add(24 * time.Hour)
	}
}
