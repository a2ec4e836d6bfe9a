// Package dispatch verifies an inbound signed envelope, resolves its
// user, and routes the parsed command to the owning service, matching
// spec.md §4.7's single entry point for every write operation.
package dispatch

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"

	"github.com/right-to-ask/rta/core"
)

var tracer = otel.Tracer("dispatch")

type service struct {
	signer     core.SigningService
	identity   core.IdentityService
	question   core.QuestionService
	emailproof core.EmailProofService
	censorship core.CensorshipService
	similarity core.SimilarityService
	board      core.BoardService
}

func NewService(
	signer core.SigningService,
	identity core.IdentityService,
	question core.QuestionService,
	emailproof core.EmailProofService,
	censorship core.CensorshipService,
	similarity core.SimilarityService,
	board core.BoardService,
) core.DispatchService {
	return &service{signer, identity, question, emailproof, censorship, similarity, board}
}

// Handle verifies the envelope against the right key -- the command's
// own PublicKey for new_registration, since the user doesn't exist
// yet, and the stored user's key for everything else -- then routes
// on kind. Verification always happens before the switch, so no
// handler branch can be reached with an unauthenticated body.
func (s *service) Handle(ctx context.Context, kind string, envelope core.SignedEnvelope) (any, error) {
	ctx, span := tracer.Start(ctx, "Dispatch.Service.Handle")
	defer span.End()

	if kind == "new_registration" {
		var cmd core.NewRegistrationCommand
		if err := json.Unmarshal([]byte(envelope.Message), &cmd); err != nil {
			return nil, core.NewErrorMalformed("could not parse new_registration body")
		}
		publicKey, err := core.DecodePublicKey(cmd.PublicKey)
		if err != nil {
			return nil, core.NewErrorBadSignature()
		}
		if err := s.signer.VerifyEnvelope(ctx, envelope, publicKey); err != nil {
			span.RecordError(err)
			return nil, err
		}
		return s.identity.Register(ctx, cmd, cmd.PublicKey)
	}

	user, err := s.identity.Get(ctx, envelope.User)
	if err != nil {
		return nil, core.NewErrorUnknownUser(envelope.User)
	}
	if user.Blocked {
		return nil, core.NewErrorBlocked()
	}
	publicKey, err := core.DecodePublicKey(user.PublicKey)
	if err != nil {
		span.RecordError(err)
		return nil, core.NewErrorInternal(err)
	}
	if err := s.signer.VerifyEnvelope(ctx, envelope, publicKey); err != nil {
		span.RecordError(err)
		return nil, err
	}

	ctx = context.WithValue(ctx, core.RequesterUIDCtxKey, user.UID)

	switch kind {
	case "edit_user":
		var cmd core.EditUserCommand
		if err := json.Unmarshal([]byte(envelope.Message), &cmd); err != nil {
			return nil, core.NewErrorMalformed("could not parse edit_user body")
		}
		return s.identity.Edit(ctx, user.UID, cmd)

	case "new_question":
		var cmd core.NewQuestionCommand
		if err := json.Unmarshal([]byte(envelope.Message), &cmd); err != nil {
			return nil, core.NewErrorMalformed("could not parse new_question body")
		}
		return s.question.Create(ctx, user.ID, cmd)

	case "edit_question":
		var cmd core.EditQuestionCommand
		if err := json.Unmarshal([]byte(envelope.Message), &cmd); err != nil {
			return nil, core.NewErrorMalformed("could not parse edit_question body")
		}
		return s.question.Edit(ctx, user.ID, cmd)

	case "new_answer":
		var cmd core.NewAnswerCommand
		if err := json.Unmarshal([]byte(envelope.Message), &cmd); err != nil {
			return nil, core.NewErrorMalformed("could not parse new_answer body")
		}
		return s.question.Answer(ctx, user.ID, cmd)

	case "vote":
		var cmd core.VoteCommand
		if err := json.Unmarshal([]byte(envelope.Message), &cmd); err != nil {
			return nil, core.NewErrorMalformed("could not parse vote body")
		}
		return nil, s.question.Vote(ctx, user.ID, cmd)

	case "report_question", "report_answer":
		var cmd core.ReportCommand
		if err := json.Unmarshal([]byte(envelope.Message), &cmd); err != nil {
			return nil, core.NewErrorMalformed("could not parse report body")
		}
		return nil, s.question.Report(ctx, user.ID, cmd)

	case "request_email_validation":
		var cmd core.RequestEmailValidationCommand
		if err := json.Unmarshal([]byte(envelope.Message), &cmd); err != nil {
			return nil, core.NewErrorMalformed("could not parse request_email_validation body")
		}
		return s.emailproof.Request(ctx, user.ID, cmd)

	case "email_proof":
		var cmd core.EmailProofCommand
		if err := json.Unmarshal([]byte(envelope.Message), &cmd); err != nil {
			return nil, core.NewErrorMalformed("could not parse email_proof body")
		}
		return s.emailproof.Validate(ctx, cmd)

	case "censor_question":
		if !hasModeratorBadge(user) {
			return nil, core.NewErrorNotAuthorised("moderator badge required")
		}
		var cmd core.CensorCommand
		if err := json.Unmarshal([]byte(envelope.Message), &cmd); err != nil {
			return nil, core.NewErrorMalformed("could not parse censor_question body")
		}
		return nil, s.censorship.Censor(ctx, cmd)

	case "set_block_status":
		if !hasModeratorBadge(user) {
			return nil, core.NewErrorNotAuthorised("moderator badge required")
		}
		var cmd core.SetBlockStatusCommand
		if err := json.Unmarshal([]byte(envelope.Message), &cmd); err != nil {
			return nil, core.NewErrorMalformed("could not parse set_block_status body")
		}
		return nil, s.identity.SetBlockStatus(ctx, cmd.UID, cmd.Blocked)

	case "put_on_do_not_email_list":
		if !hasModeratorBadge(user) {
			return nil, core.NewErrorNotAuthorised("moderator badge required")
		}
		var cmd core.DoNotEmailCommand
		if err := json.Unmarshal([]byte(envelope.Message), &cmd); err != nil {
			return nil, core.NewErrorMalformed("could not parse put_on_do_not_email_list body")
		}
		return nil, s.emailproof.PutOnDoNotEmailList(ctx, cmd.Email)

	case "take_off_do_not_email_list":
		if !hasModeratorBadge(user) {
			return nil, core.NewErrorNotAuthorised("moderator badge required")
		}
		var cmd core.DoNotEmailCommand
		if err := json.Unmarshal([]byte(envelope.Message), &cmd); err != nil {
			return nil, core.NewErrorMalformed("could not parse take_off_do_not_email_list body")
		}
		return nil, s.emailproof.TakeOffDoNotEmailList(ctx, cmd.Email)

	case "reset_times_sent":
		if !hasModeratorBadge(user) {
			return nil, core.NewErrorNotAuthorised("moderator badge required")
		}
		var cmd core.ResetTimesSentCommand
		if err := json.Unmarshal([]byte(envelope.Message), &cmd); err != nil {
			return nil, core.NewErrorMalformed("could not parse reset_times_sent body")
		}
		return nil, s.emailproof.ResetTimesSent(ctx, cmd.Timescale)

	case "take_off_times_sent_list":
		if !hasModeratorBadge(user) {
			return nil, core.NewErrorNotAuthorised("moderator badge required")
		}
		var cmd core.TakeOffTimesSentCommand
		if err := json.Unmarshal([]byte(envelope.Message), &cmd); err != nil {
			return nil, core.NewErrorMalformed("could not parse take_off_times_sent_list body")
		}
		return nil, s.emailproof.TakeOffTimesSentList(ctx, cmd.Email)

	case "order_new_published_root":
		if !hasModeratorBadge(user) {
			return nil, core.NewErrorNotAuthorised("moderator badge required")
		}
		return s.board.Publish(ctx)
	}

	return nil, core.NewErrorMalformed("unknown message kind: " + kind)
}

// hasModeratorBadge is the whole of RTA's authorization model for the
// moderator-only commands: no per-resource ACL tree, just "does
// this user carry a moderator badge".
func hasModeratorBadge(user core.User) bool {
	for _, badge := range user.Badges {
		if badge.Kind == core.BadgeKindModerator {
			return true
		}
	}
	return false
}
