// Package question owns questions, answers, votes and reports: the
// core content of the bulletin board once a command's provenance has
// already been established.
package question

import (
	"context"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/right-to-ask/rta/core"
)

var tracer = otel.Tracer("question")

type Repository interface {
	Create(ctx context.Context, question core.Question) (core.Question, error)
	Get(ctx context.Context, id string) (core.Question, error)
	Update(ctx context.Context, question core.Question) (core.Question, error)
	ReplacePeople(ctx context.Context, questionID string, people []core.PersonForQuestion) error
	CreateAnswer(ctx context.Context, answer core.Answer) (core.Answer, error)
	GetAnswer(ctx context.Context, version string) (core.Answer, error)
	UpsertVote(ctx context.Context, vote core.Vote) (delta int, isNew bool, err error)
	AdjustVoteCounters(ctx context.Context, questionID string, totalDelta, netDelta int64) error
	CreateReport(ctx context.Context, report core.ReportedReason) error
	IncrementFlags(ctx context.Context, questionID string) (int, error)
	SetCensorshipStatus(ctx context.Context, questionID string, status core.CensorshipStatus) error
	SetAnswerCensorshipStatus(ctx context.Context, version string, status core.CensorshipStatus) error
	// AppendHistory records one bulletin-board leaf as touching a
	// question; History reads them back, most recent first.
	AppendHistory(ctx context.Context, questionID, leafHash string) error
	History(ctx context.Context, questionID string) ([]core.QuestionHistoryEntry, error)
	List(ctx context.Context) ([]core.Question, error)
	ListByCreator(ctx context.Context, userID uint) ([]core.Question, error)
	ListFollowups(ctx context.Context, questionID string) ([]core.Question, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db}
}

func (r *repository) Create(ctx context.Context, question core.Question) (core.Question, error) {
	ctx, span := tracer.Start(ctx, "Question.Repository.Create")
	defer span.End()

	if err := r.db.WithContext(ctx).Create(&question).Error; err != nil {
		span.RecordError(err)
		return core.Question{}, err
	}
	return question, nil
}

func (r *repository) Get(ctx context.Context, id string) (core.Question, error) {
	ctx, span := tracer.Start(ctx, "Question.Repository.Get")
	defer span.End()

	var q core.Question
	err := r.db.WithContext(ctx).Preload("People").Where("id = ?", id).First(&q).Error
	if err != nil {
		span.RecordError(err)
		return core.Question{}, err
	}
	return q, nil
}

func (r *repository) Update(ctx context.Context, question core.Question) (core.Question, error) {
	ctx, span := tracer.Start(ctx, "Question.Repository.Update")
	defer span.End()

	if err := r.db.WithContext(ctx).Save(&question).Error; err != nil {
		span.RecordError(err)
		return core.Question{}, err
	}
	return question, nil
}

func (r *repository) ReplacePeople(ctx context.Context, questionID string, people []core.PersonForQuestion) error {
	ctx, span := tracer.Start(ctx, "Question.Repository.ReplacePeople")
	defer span.End()

	tx := r.db.WithContext(ctx).Begin()
	if err := tx.Where("question_id = ?", questionID).Delete(&core.PersonForQuestion{}).Error; err != nil {
		tx.Rollback()
		span.RecordError(err)
		return err
	}
	for i := range people {
		people[i].QuestionID = questionID
		if err := tx.Create(&people[i]).Error; err != nil {
			tx.Rollback()
			span.RecordError(err)
			return err
		}
	}
	return tx.Commit().Error
}

func (r *repository) CreateAnswer(ctx context.Context, answer core.Answer) (core.Answer, error) {
	ctx, span := tracer.Start(ctx, "Question.Repository.CreateAnswer")
	defer span.End()

	if err := r.db.WithContext(ctx).Create(&answer).Error; err != nil {
		span.RecordError(err)
		return core.Answer{}, err
	}
	return answer, nil
}

func (r *repository) GetAnswer(ctx context.Context, version string) (core.Answer, error) {
	ctx, span := tracer.Start(ctx, "Question.Repository.GetAnswer")
	defer span.End()

	var a core.Answer
	err := r.db.WithContext(ctx).Where("version = ?", version).First(&a).Error
	if err != nil {
		span.RecordError(err)
		return core.Answer{}, err
	}
	return a, nil
}

// UpsertVote inserts a first-time vote, or updates an existing one and
// reports the swing so the caller can adjust the question's counters
// in the same call. delta is the change in total-votes (0 or 1);
// isNew tells the caller whether this is a fresh voter.
func (r *repository) UpsertVote(ctx context.Context, vote core.Vote) (int, bool, error) {
	ctx, span := tracer.Start(ctx, "Question.Repository.UpsertVote")
	defer span.End()

	var existing core.Vote
	err := r.db.WithContext(ctx).Where("question_id = ? AND user_id = ?", vote.QuestionID, vote.UserID).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		if err := r.db.WithContext(ctx).Create(&vote).Error; err != nil {
			span.RecordError(err)
			return 0, false, err
		}
		return 1, true, nil
	}
	if err != nil {
		span.RecordError(err)
		return 0, false, err
	}

	existing.Value = vote.Value
	if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
		span.RecordError(err)
		return 0, false, err
	}
	return 0, false, nil
}

func (r *repository) AdjustVoteCounters(ctx context.Context, questionID string, totalDelta, netDelta int64) error {
	ctx, span := tracer.Start(ctx, "Question.Repository.AdjustVoteCounters")
	defer span.End()

	err := r.db.WithContext(ctx).Model(&core.Question{}).Where("id = ?", questionID).
		Updates(map[string]any{
			"total_votes": gorm.Expr("total_votes + ?", totalDelta),
			"net_votes":   gorm.Expr("net_votes + ?", netDelta),
		}).Error
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *repository) CreateReport(ctx context.Context, report core.ReportedReason) error {
	ctx, span := tracer.Start(ctx, "Question.Repository.CreateReport")
	defer span.End()

	err := r.db.WithContext(ctx).Create(&report).Error
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *repository) IncrementFlags(ctx context.Context, questionID string) (int, error) {
	ctx, span := tracer.Start(ctx, "Question.Repository.IncrementFlags")
	defer span.End()

	if err := r.db.WithContext(ctx).Model(&core.Question{}).Where("id = ?", questionID).
		Update("num_flags", gorm.Expr("num_flags + 1")).Error; err != nil {
		span.RecordError(err)
		return 0, err
	}

	var flags int
	err := r.db.WithContext(ctx).Model(&core.Question{}).Where("id = ?", questionID).Pluck("num_flags", &flags).Error
	return flags, err
}

func (r *repository) SetCensorshipStatus(ctx context.Context, questionID string, status core.CensorshipStatus) error {
	ctx, span := tracer.Start(ctx, "Question.Repository.SetCensorshipStatus")
	defer span.End()

	err := r.db.WithContext(ctx).Model(&core.Question{}).Where("id = ?", questionID).
		Update("censorship_status", status).Error
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *repository) SetAnswerCensorshipStatus(ctx context.Context, version string, status core.CensorshipStatus) error {
	ctx, span := tracer.Start(ctx, "Question.Repository.SetAnswerCensorshipStatus")
	defer span.End()

	err := r.db.WithContext(ctx).Model(&core.Answer{}).Where("version = ?", version).
		Update("censorship_status", status).Error
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *repository) AppendHistory(ctx context.Context, questionID, leafHash string) error {
	ctx, span := tracer.Start(ctx, "Question.Repository.AppendHistory")
	defer span.End()

	entry := core.QuestionHistoryEntry{QuestionID: questionID, LeafHash: leafHash}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (r *repository) History(ctx context.Context, questionID string) ([]core.QuestionHistoryEntry, error) {
	ctx, span := tracer.Start(ctx, "Question.Repository.History")
	defer span.End()

	var entries []core.QuestionHistoryEntry
	err := r.db.WithContext(ctx).Where("question_id = ?", questionID).Order("c_date DESC").Find(&entries).Error
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return entries, nil
}

func (r *repository) List(ctx context.Context) ([]core.Question, error) {
	ctx, span := tracer.Start(ctx, "Question.Repository.List")
	defer span.End()

	var questions []core.Question
	err := r.db.WithContext(ctx).Preload("People").Order("c_date DESC").Find(&questions).Error
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return questions, nil
}

func (r *repository) ListByCreator(ctx context.Context, userID uint) ([]core.Question, error) {
	ctx, span := tracer.Start(ctx, "Question.Repository.ListByCreator")
	defer span.End()

	var questions []core.Question
	err := r.db.WithContext(ctx).Preload("People").Where("created_by = ?", userID).Order("c_date DESC").Find(&questions).Error
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return questions, nil
}

func (r *repository) ListFollowups(ctx context.Context, questionID string) ([]core.Question, error) {
	ctx, span := tracer.Start(ctx, "Question.Repository.ListFollowups")
	defer span.End()

	var questions []core.Question
	err := r.db.WithContext(ctx).Preload("People").Where("is_followup_to = ?", questionID).Order("c_date DESC").Find(&questions).Error
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return questions, nil
}
