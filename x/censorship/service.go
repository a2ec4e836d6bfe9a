package censorship

import (
	"context"

	"github.com/right-to-ask/rta/core"
)

type service struct {
	repo  Repository
	board core.BoardService
	cache core.QuestionCache
}

func NewService(repo Repository, board core.BoardService, cache core.QuestionCache) core.CensorshipService {
	return &service{repo, board, cache}
}

func (s *service) invalidateCache(questionID string) {
	if s.cache != nil {
		s.cache.InvalidateForQuestion(questionID)
	}
}

// Flag is triggered by a report. NotFlagged and Allowed both move to
// Flagged; StructureChanged moves to StructureChangedThenFlagged;
// anything already flagged, or Censored, is left alone.
func (s *service) Flag(ctx context.Context, questionID string, answerVersion *string) error {
	ctx, span := tracer.Start(ctx, "Censorship.Service.Flag")
	defer span.End()

	if answerVersion != nil {
		current, err := s.repo.AnswerStatus(ctx, *answerVersion)
		if err != nil {
			span.RecordError(err)
			return core.NewErrorInternal(err)
		}
		next, ok := flagTransition(current)
		if !ok {
			return nil
		}
		if err := s.repo.SetAnswerStatus(ctx, *answerVersion, next); err != nil {
			return err
		}
		s.invalidateCache(questionID)
		return nil
	}

	current, err := s.repo.QuestionStatus(ctx, questionID)
	if err != nil {
		span.RecordError(err)
		return core.NewErrorInternal(err)
	}
	next, ok := flagTransition(current)
	if !ok {
		return nil
	}
	if err := s.repo.SetQuestionStatus(ctx, questionID, next); err != nil {
		return err
	}
	s.invalidateCache(questionID)
	return nil
}

func flagTransition(current core.CensorshipStatus) (core.CensorshipStatus, bool) {
	switch current {
	case core.StatusNotFlagged, core.StatusAllowed:
		return core.StatusFlagged, true
	case core.StatusStructureChanged:
		return core.StatusStructureChangedThenFlagged, true
	default:
		return current, false
	}
}

// MarkStructureChanged is triggered when a question's asked-of/answered-of
// targets are edited after publication. It never overrides an existing
// flagged state, matching StructureChanged's role as a distinct branch
// rather than a reset.
func (s *service) MarkStructureChanged(ctx context.Context, questionID string) error {
	ctx, span := tracer.Start(ctx, "Censorship.Service.MarkStructureChanged")
	defer span.End()

	current, err := s.repo.QuestionStatus(ctx, questionID)
	if err != nil {
		span.RecordError(err)
		return core.NewErrorInternal(err)
	}

	var next core.CensorshipStatus
	switch current {
	case core.StatusNotFlagged, core.StatusAllowed:
		next = core.StatusStructureChanged
	case core.StatusFlagged:
		next = core.StatusStructureChangedThenFlagged
	default:
		return nil
	}
	if err := s.repo.SetQuestionStatus(ctx, questionID, next); err != nil {
		return err
	}
	s.invalidateCache(questionID)
	return nil
}

// censorableFrom reports whether Censor may be reached from the
// current status: only Flagged and StructureChangedThenFlagged may
// move to Allowed/Censored, matching the state diagram's Censor arrows
// (unflagged content is never directly censorable).
func censorableFrom(current core.CensorshipStatus) bool {
	return current == core.StatusFlagged || current == core.StatusStructureChangedThenFlagged
}

// Censor is the moderator-only decision: Reason nil moves the target to
// Allowed, Reason set moves it to the terminal Censored state. When
// JustAnswer is non-empty only those answer versions are censored;
// otherwise the whole question (and, per CensorLogs, its answers) is.
// (Version, NumFlags) is an optimistic-concurrency precondition: a
// moderator acting on a stale snapshot of the report count is rejected
// rather than silently overriding reports that arrived after they
// looked at the question. Censor is only reachable from Flagged or
// StructureChangedThenFlagged; anything else is rejected outright.
func (s *service) Censor(ctx context.Context, cmd core.CensorCommand) error {
	ctx, span := tracer.Start(ctx, "Censorship.Service.Censor")
	defer span.End()

	currentVersion, currentFlags, err := s.repo.QuestionVersionAndFlags(ctx, cmd.QuestionID)
	if err != nil {
		span.RecordError(err)
		return core.NewErrorQuestionNotFound(cmd.QuestionID)
	}
	if currentVersion != cmd.Version || currentFlags != cmd.NumFlags {
		return core.NewErrorVersionMismatch(cmd.Version, currentVersion)
	}

	status := core.StatusAllowed
	if cmd.Reason != nil {
		status = core.StatusCensored
	}

	if len(cmd.JustAnswer) > 0 {
		for _, version := range cmd.JustAnswer {
			current, err := s.repo.AnswerStatus(ctx, version)
			if err != nil {
				span.RecordError(err)
				return core.NewErrorInternal(err)
			}
			if !censorableFrom(current) {
				return core.NewErrorNotAuthorised("answer is not in a censorable state")
			}
		}
		for _, version := range cmd.JustAnswer {
			if err := s.repo.SetAnswerStatus(ctx, version, status); err != nil {
				span.RecordError(err)
				return core.NewErrorInternal(err)
			}
		}
		s.invalidateCache(cmd.QuestionID)
		return nil
	}

	currentStatus, err := s.repo.QuestionStatus(ctx, cmd.QuestionID)
	if err != nil {
		span.RecordError(err)
		return core.NewErrorInternal(err)
	}
	if !censorableFrom(currentStatus) {
		return core.NewErrorNotAuthorised("question is not in a censorable state")
	}

	if err := s.repo.SetQuestionStatus(ctx, cmd.QuestionID, status); err != nil {
		span.RecordError(err)
		return core.NewErrorInternal(err)
	}
	s.invalidateCache(cmd.QuestionID)

	if cmd.CensorLogs {
		hashes, err := s.repo.QuestionLeafHashes(ctx, cmd.QuestionID)
		if err != nil {
			span.RecordError(err)
			return core.NewErrorInternal(err)
		}
		if err := s.board.Redact(ctx, hashes); err != nil {
			span.RecordError(err)
			return core.NewErrorInternal(err)
		}
	}

	return nil
}

// GetReportedQuestions lists every question that has at least one
// reported reason against it, for a moderator's queue.
func (s *service) GetReportedQuestions(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Censorship.Service.GetReportedQuestions")
	defer span.End()

	ids, err := s.repo.ReportedQuestionIDs(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, core.NewErrorInternal(err)
	}
	return ids, nil
}

func (s *service) GetReasonsReported(ctx context.Context, questionID string) ([]core.ReportedReason, error) {
	ctx, span := tracer.Start(ctx, "Censorship.Service.GetReasonsReported")
	defer span.End()

	reasons, err := s.repo.ReasonsForQuestion(ctx, questionID)
	if err != nil {
		span.RecordError(err)
		return nil, core.NewErrorInternal(err)
	}
	return reasons, nil
}
