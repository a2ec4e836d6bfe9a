// Package censorship drives the censorship status state machine shared
// by questions and answers. It replaces the teacher's general
// statement/condition policy DSL with an explicit switch: right-to-ask
// moderation is a closed, small state machine, not an open-ended ACL.
package censorship

import (
	"context"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/right-to-ask/rta/core"
)

var tracer = otel.Tracer("censorship")

type Repository interface {
	QuestionStatus(ctx context.Context, questionID string) (core.CensorshipStatus, error)
	SetQuestionStatus(ctx context.Context, questionID string, status core.CensorshipStatus) error
	AnswerStatus(ctx context.Context, version string) (core.CensorshipStatus, error)
	SetAnswerStatus(ctx context.Context, version string, status core.CensorshipStatus) error
	QuestionAnswerVersions(ctx context.Context, questionID string) ([]string, error)
	QuestionVersionAndFlags(ctx context.Context, questionID string) (version string, numFlags int, err error)
	// QuestionLeafHashes returns every bulletin-board leaf hash that
	// belongs to a question -- its own history plus every one of its
	// answers -- the full redaction target set for CensorLogs.
	QuestionLeafHashes(ctx context.Context, questionID string) ([]string, error)
	ReportedQuestionIDs(ctx context.Context) ([]string, error)
	ReasonsForQuestion(ctx context.Context, questionID string) ([]core.ReportedReason, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db}
}

func (r *repository) QuestionStatus(ctx context.Context, questionID string) (core.CensorshipStatus, error) {
	ctx, span := tracer.Start(ctx, "Censorship.Repository.QuestionStatus")
	defer span.End()

	var status core.CensorshipStatus
	err := r.db.WithContext(ctx).Model(&core.Question{}).Where("id = ?", questionID).Pluck("censorship_status", &status).Error
	if err != nil {
		span.RecordError(err)
	}
	return status, err
}

func (r *repository) SetQuestionStatus(ctx context.Context, questionID string, status core.CensorshipStatus) error {
	ctx, span := tracer.Start(ctx, "Censorship.Repository.SetQuestionStatus")
	defer span.End()

	err := r.db.WithContext(ctx).Model(&core.Question{}).Where("id = ?", questionID).Update("censorship_status", status).Error
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *repository) AnswerStatus(ctx context.Context, version string) (core.CensorshipStatus, error) {
	ctx, span := tracer.Start(ctx, "Censorship.Repository.AnswerStatus")
	defer span.End()

	var status core.CensorshipStatus
	err := r.db.WithContext(ctx).Model(&core.Answer{}).Where("version = ?", version).Pluck("censorship_status", &status).Error
	if err != nil {
		span.RecordError(err)
	}
	return status, err
}

func (r *repository) SetAnswerStatus(ctx context.Context, version string, status core.CensorshipStatus) error {
	ctx, span := tracer.Start(ctx, "Censorship.Repository.SetAnswerStatus")
	defer span.End()

	err := r.db.WithContext(ctx).Model(&core.Answer{}).Where("version = ?", version).Update("censorship_status", status).Error
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *repository) QuestionAnswerVersions(ctx context.Context, questionID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Censorship.Repository.QuestionAnswerVersions")
	defer span.End()

	var versions []string
	err := r.db.WithContext(ctx).Model(&core.Answer{}).Where("question_id = ?", questionID).Pluck("version", &versions).Error
	if err != nil {
		span.RecordError(err)
	}
	return versions, err
}

// QuestionLeafHashes unions the question's own history entries with
// the version hash of every one of its answers: everything on the
// board that carries this question's content.
func (r *repository) QuestionLeafHashes(ctx context.Context, questionID string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Censorship.Repository.QuestionLeafHashes")
	defer span.End()

	var hashes []string
	if err := r.db.WithContext(ctx).Model(&core.QuestionHistoryEntry{}).
		Where("question_id = ?", questionID).Pluck("leaf_hash", &hashes).Error; err != nil {
		span.RecordError(err)
		return nil, err
	}

	answerVersions, err := r.QuestionAnswerVersions(ctx, questionID)
	if err != nil {
		return nil, err
	}
	return append(hashes, answerVersions...), nil
}

func (r *repository) ReportedQuestionIDs(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Censorship.Repository.ReportedQuestionIDs")
	defer span.End()

	var ids []string
	err := r.db.WithContext(ctx).Model(&core.ReportedReason{}).Distinct().Pluck("question_id", &ids).Error
	if err != nil {
		span.RecordError(err)
	}
	return ids, err
}

func (r *repository) ReasonsForQuestion(ctx context.Context, questionID string) ([]core.ReportedReason, error) {
	ctx, span := tracer.Start(ctx, "Censorship.Repository.ReasonsForQuestion")
	defer span.End()

	var reasons []core.ReportedReason
	err := r.db.WithContext(ctx).Where("question_id = ?", questionID).Order("c_date ASC").Find(&reasons).Error
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return reasons, nil
}

func (r *repository) QuestionVersionAndFlags(ctx context.Context, questionID string) (string, int, error) {
	ctx, span := tracer.Start(ctx, "Censorship.Repository.QuestionVersionAndFlags")
	defer span.End()

	var row struct {
		Version  string
		NumFlags int
	}
	err := r.db.WithContext(ctx).Model(&core.Question{}).
		Select("version, num_flags").Where("id = ?", questionID).First(&row).Error
	if err != nil {
		span.RecordError(err)
		return "", 0, err
	}
	return row.Version, row.NumFlags, nil
}
