package question

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/right-to-ask/rta/core"
)

type service struct {
	repo                  Repository
	board                 core.BoardService
	censor                core.CensorshipService
	identity              core.IdentityService
	cache                 core.QuestionCache
	requireValidatedEmail bool
}

func NewService(repo Repository, board core.BoardService, censor core.CensorshipService, identity core.IdentityService, cache core.QuestionCache, requireValidatedEmail bool) core.QuestionService {
	return &service{repo, board, censor, identity, cache, requireValidatedEmail}
}

// checkVerifiedEmail enforces the require_validated_email config gate
// on content-creating operations; it is a no-op when the gate is off.
func (s *service) checkVerifiedEmail(ctx context.Context, userID uint) error {
	if !s.requireValidatedEmail {
		return nil
	}
	ok, err := s.identity.HasVerifiedEmail(ctx, userID)
	if err != nil {
		return core.NewErrorInternal(err)
	}
	if !ok {
		return core.NewErrorNotAuthorised("a verified email is required to post")
	}
	return nil
}

// invalidateCache evicts any cached similarity-search snapshot that
// could have listed questionID, matching spec's "evicted on any
// question-store write for a question participating in any cached
// snapshot". The cache is optional so tests that don't wire one still
// work.
func (s *service) invalidateCache(questionID string) {
	if s.cache != nil {
		s.cache.InvalidateForQuestion(questionID)
	}
}

// Create appends the command to the board for provenance, then
// persists the question keyed by a content hash of its defining
// fields so edits keep a stable identity. A question id is content
// addressed, so a client resending the exact same signed command
// collides on the primary key; that resend is rejected as
// QuestionAlreadyExists rather than surfacing a generic DB error, and
// the first submission's stored version is left untouched.
func (s *service) Create(ctx context.Context, userID uint, cmd core.NewQuestionCommand) (core.Question, error) {
	ctx, span := tracer.Start(ctx, "Question.Service.Create")
	defer span.End()

	if err := s.checkVerifiedEmail(ctx, userID); err != nil {
		return core.Question{}, err
	}

	id := hex.EncodeToString(core.GetHash([]byte(fmt.Sprintf("%d:%s:%v", userID, cmd.Text, cmd.SignedAt.UnixNano()))))

	if _, err := s.repo.Get(ctx, id); err == nil {
		return core.Question{}, core.NewErrorQuestionAlreadyExists(id)
	} else if err != gorm.ErrRecordNotFound {
		span.RecordError(err)
		return core.Question{}, core.NewErrorInternal(err)
	}

	people, err := s.personRows(ctx, cmd.AskedOf, core.RoleAsk)
	if err != nil {
		return core.Question{}, err
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return core.Question{}, core.NewErrorInternal(err)
	}
	leaf, err := s.board.Append(ctx, string(payload), "")
	if err != nil {
		span.RecordError(err)
		return core.Question{}, core.NewErrorInternal(err)
	}

	question := core.Question{
		ID:                          id,
		Version:                     leaf.Hash,
		Text:                        cmd.Text,
		Background:                  cmd.Background,
		CreatedBy:                   userID,
		IsFollowupTo:                cmd.IsFollowupTo,
		CanOthersSetWhoShouldAsk:    cmd.CanOthersSetWhoShouldAsk,
		CanOthersSetWhoShouldAnswer: cmd.CanOthersSetWhoShouldAnswer,
		People:                      people,
	}

	created, err := s.repo.Create(ctx, question)
	if err != nil {
		span.RecordError(err)
		return core.Question{}, core.NewErrorInternal(err)
	}

	if err := s.repo.AppendHistory(ctx, created.ID, leaf.Hash); err != nil {
		span.RecordError(err)
	}
	s.invalidateCache(created.ID)

	return created, nil
}

// Edit checks the optimistic-concurrency precondition (QuestionID,
// Version) before applying any change, so a client editing stale data
// is rejected rather than silently clobbering a concurrent edit. When
// CanOthersSetWhoShouldAsk/Answer is false, only the question's
// creator may change who it's asked of / answered by.
func (s *service) Edit(ctx context.Context, userID uint, cmd core.EditQuestionCommand) (core.Question, error) {
	ctx, span := tracer.Start(ctx, "Question.Service.Edit")
	defer span.End()

	existing, err := s.repo.Get(ctx, cmd.QuestionID)
	if err != nil {
		return core.Question{}, core.NewErrorQuestionNotFound(cmd.QuestionID)
	}
	if existing.Version != cmd.Version {
		return core.Question{}, core.NewErrorVersionMismatch(cmd.Version, existing.Version)
	}

	if cmd.AskedOf != nil && !existing.CanOthersSetWhoShouldAsk && existing.CreatedBy != userID {
		return core.Question{}, core.NewErrorNotAuthorised("only the creator may change who should ask this question")
	}
	if cmd.AnsweredOf != nil && !existing.CanOthersSetWhoShouldAnswer && existing.CreatedBy != userID {
		return core.Question{}, core.NewErrorNotAuthorised("only the creator may change who should answer this question")
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return core.Question{}, core.NewErrorInternal(err)
	}
	leaf, err := s.board.Append(ctx, string(payload), "")
	if err != nil {
		span.RecordError(err)
		return core.Question{}, core.NewErrorInternal(err)
	}

	if cmd.Background != nil {
		existing.Background = cmd.Background
	}
	if cmd.HansardLinks != nil {
		existing.HansardLinks = pq.StringArray(cmd.HansardLinks)
	}
	existing.Version = leaf.Hash

	updated, err := s.repo.Update(ctx, existing)
	if err != nil {
		span.RecordError(err)
		return core.Question{}, core.NewErrorInternal(err)
	}

	if cmd.AskedOf != nil || cmd.AnsweredOf != nil {
		var people []core.PersonForQuestion
		if cmd.AskedOf != nil {
			rows, err := s.personRows(ctx, cmd.AskedOf, core.RoleAsk)
			if err != nil {
				return core.Question{}, err
			}
			people = append(people, rows...)
		}
		if cmd.AnsweredOf != nil {
			rows, err := s.personRows(ctx, cmd.AnsweredOf, core.RoleAnswer)
			if err != nil {
				return core.Question{}, err
			}
			people = append(people, rows...)
		}
		if err := s.repo.ReplacePeople(ctx, updated.ID, people); err != nil {
			span.RecordError(err)
			return core.Question{}, core.NewErrorInternal(err)
		}
	}

	if cmd.AskedOf != nil || cmd.AnsweredOf != nil {
		if err := s.censor.MarkStructureChanged(ctx, updated.ID); err != nil {
			span.RecordError(err)
		}
	}

	if err := s.repo.AppendHistory(ctx, updated.ID, leaf.Hash); err != nil {
		span.RecordError(err)
	}
	s.invalidateCache(updated.ID)

	return s.repo.Get(ctx, updated.ID)
}

func (s *service) Get(ctx context.Context, questionID string) (core.Question, error) {
	ctx, span := tracer.Start(ctx, "Question.Service.Get")
	defer span.End()

	q, err := s.repo.Get(ctx, questionID)
	if err != nil {
		return core.Question{}, core.NewErrorQuestionNotFound(questionID)
	}
	return q, nil
}

// Answer requires the author to hold an MP or MP-staff badge for the
// MP named on the command, so only an MP or their office can attach an
// answer under that MP's name.
func (s *service) Answer(ctx context.Context, userID uint, cmd core.NewAnswerCommand) (core.Answer, error) {
	ctx, span := tracer.Start(ctx, "Question.Service.Answer")
	defer span.End()

	if err := s.checkVerifiedEmail(ctx, userID); err != nil {
		return core.Answer{}, err
	}

	if _, err := s.repo.Get(ctx, cmd.QuestionID); err != nil {
		return core.Answer{}, core.NewErrorQuestionNotFound(cmd.QuestionID)
	}

	hasMP, err := s.identity.HasBadge(ctx, userID, core.BadgeKindMP, cmd.MP)
	if err != nil {
		return core.Answer{}, core.NewErrorInternal(err)
	}
	if !hasMP {
		hasStaff, err := s.identity.HasBadge(ctx, userID, core.BadgeKindMPStaff, cmd.MP)
		if err != nil {
			return core.Answer{}, core.NewErrorInternal(err)
		}
		if !hasStaff {
			return core.Answer{}, core.NewErrorNotAuthorised("author does not hold an MP or MP-staff badge for " + cmd.MP)
		}
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return core.Answer{}, core.NewErrorInternal(err)
	}
	leaf, err := s.board.Append(ctx, string(payload), "")
	if err != nil {
		span.RecordError(err)
		return core.Answer{}, core.NewErrorInternal(err)
	}

	answer := core.Answer{
		Version:    leaf.Hash,
		QuestionID: cmd.QuestionID,
		AuthorID:   userID,
		MP:         cmd.MP,
		Text:       cmd.Text,
	}

	created, err := s.repo.CreateAnswer(ctx, answer)
	if err != nil {
		span.RecordError(err)
		return core.Answer{}, core.NewErrorInternal(err)
	}

	if err := s.repo.AppendHistory(ctx, cmd.QuestionID, leaf.Hash); err != nil {
		span.RecordError(err)
	}
	s.invalidateCache(cmd.QuestionID)

	return created, nil
}

// GetHistory walks the leaves that have touched a question, most
// recent first, resolving each against the board so a redacted leaf
// comes back with its sentinel payload rather than the original text.
func (s *service) GetHistory(ctx context.Context, questionID string) ([]core.HistoryEntry, error) {
	ctx, span := tracer.Start(ctx, "Question.Service.GetHistory")
	defer span.End()

	entries, err := s.repo.History(ctx, questionID)
	if err != nil {
		span.RecordError(err)
		return nil, core.NewErrorInternal(err)
	}

	history := make([]core.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		node, err := s.board.Lookup(ctx, e.LeafHash)
		if err != nil {
			span.RecordError(err)
			return nil, core.NewErrorInternal(err)
		}
		if node == nil {
			continue
		}
		var payload, signature string
		if node.Payload != nil {
			payload = *node.Payload
		}
		if node.Signature != nil {
			signature = *node.Signature
		}
		history = append(history, core.HistoryEntry{
			LeafHash:  e.LeafHash,
			Payload:   payload,
			Signature: signature,
			Redacted:  node.Redacted,
			CDate:     e.CDate,
		})
	}
	return history, nil
}

// Vote records or updates a user's +1/-1 on a question and keeps the
// aggregate counters in the same logical operation.
func (s *service) Vote(ctx context.Context, userID uint, cmd core.VoteCommand) error {
	ctx, span := tracer.Start(ctx, "Question.Service.Vote")
	defer span.End()

	if cmd.Value != 1 && cmd.Value != -1 {
		return core.NewErrorMalformed("vote value must be +1 or -1")
	}

	if _, err := s.repo.Get(ctx, cmd.QuestionID); err != nil {
		return core.NewErrorQuestionNotFound(cmd.QuestionID)
	}

	totalDelta, isNew, err := s.repo.UpsertVote(ctx, core.Vote{QuestionID: cmd.QuestionID, UserID: userID, Value: cmd.Value})
	if err != nil {
		span.RecordError(err)
		return core.NewErrorInternal(err)
	}

	netDelta := int64(cmd.Value)
	if !isNew {
		netDelta = int64(cmd.Value) * 2 // swinging from -1 to +1 (or vice versa) moves net by 2
	}

	if err := s.repo.AdjustVoteCounters(ctx, cmd.QuestionID, int64(totalDelta), netDelta); err != nil {
		span.RecordError(err)
		return core.NewErrorInternal(err)
	}
	s.invalidateCache(cmd.QuestionID)
	return nil
}

// Report records a reason against a question or, when AnswerVersion is
// set, against one of its answers, and flags the target once reports
// accumulate.
func (s *service) Report(ctx context.Context, userID uint, cmd core.ReportCommand) error {
	ctx, span := tracer.Start(ctx, "Question.Service.Report")
	defer span.End()

	if !core.IsValidReason(cmd.Reason) {
		return core.NewErrorMalformed("unknown report reason")
	}

	if _, err := s.repo.Get(ctx, cmd.QuestionID); err != nil {
		return core.NewErrorQuestionNotFound(cmd.QuestionID)
	}

	report := core.ReportedReason{
		QuestionID:    cmd.QuestionID,
		Reason:        cmd.Reason,
		AnswerVersion: cmd.AnswerVersion,
		UserID:        userID,
	}
	if err := s.repo.CreateReport(ctx, report); err != nil {
		span.RecordError(err)
		return core.NewErrorInternal(err)
	}

	if _, err := s.repo.IncrementFlags(ctx, cmd.QuestionID); err != nil {
		span.RecordError(err)
		return core.NewErrorInternal(err)
	}
	s.invalidateCache(cmd.QuestionID)

	return s.censor.Flag(ctx, cmd.QuestionID, cmd.AnswerVersion)
}

// List returns every question, most recently created first.
func (s *service) List(ctx context.Context) ([]core.Question, error) {
	ctx, span := tracer.Start(ctx, "Question.Service.List")
	defer span.End()

	questions, err := s.repo.List(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, core.NewErrorInternal(err)
	}
	return questions, nil
}

// ListByCreator resolves uid to its numeric id and returns every
// question that user asked.
func (s *service) ListByCreator(ctx context.Context, uid string) ([]core.Question, error) {
	ctx, span := tracer.Start(ctx, "Question.Service.ListByCreator")
	defer span.End()

	user, err := s.identity.Get(ctx, uid)
	if err != nil {
		return nil, core.NewErrorUnknownUser(uid)
	}

	questions, err := s.repo.ListByCreator(ctx, user.ID)
	if err != nil {
		span.RecordError(err)
		return nil, core.NewErrorInternal(err)
	}
	return questions, nil
}

// ListFollowups returns every question that names questionID as its
// IsFollowupTo parent.
func (s *service) ListFollowups(ctx context.Context, questionID string) ([]core.Question, error) {
	ctx, span := tracer.Start(ctx, "Question.Service.ListFollowups")
	defer span.End()

	questions, err := s.repo.ListFollowups(ctx, questionID)
	if err != nil {
		span.RecordError(err)
		return nil, core.NewErrorInternal(err)
	}
	return questions, nil
}

// personRows converts a wire PersonRef into exactly one
// PersonForQuestion row, rejecting refs that name zero or more than
// one target. A User ref is resolved to a numeric id up front so the
// stored row never carries a UID string.
func (s *service) personRows(ctx context.Context, ref *core.PersonRef, role core.PersonRole) ([]core.PersonForQuestion, error) {
	if ref == nil {
		return nil, nil
	}

	set := 0
	row := core.PersonForQuestion{Role: role}
	if ref.User != nil {
		set++
		user, err := s.identity.Get(ctx, *ref.User)
		if err != nil {
			return nil, core.NewErrorUnknownUser(*ref.User)
		}
		row.User = &user.ID
	}
	if ref.MP != nil {
		set++
		row.MP = ref.MP
	}
	if ref.Organisation != nil {
		set++
		row.Organisation = ref.Organisation
	}
	if ref.Committee != nil {
		set++
		row.Committee = ref.Committee
	}
	if ref.Minister != nil {
		set++
		row.Minister = ref.Minister
	}
	if set != 1 {
		return nil, core.NewErrorMalformed("exactly one of user/mp/organisation/committee/minister must be set")
	}
	return []core.PersonForQuestion{row}, nil
}
