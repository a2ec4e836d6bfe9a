// Package emailproof runs the request/validate code flow that backs
// account validation and MP/organisation badge issuance, plus the
// rate-limit and do-not-email bookkeeping around it.
package emailproof

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/right-to-ask/rta/core"
)

var tracer = otel.Tracer("emailproof")

type Repository interface {
	Create(ctx context.Context, proof core.PendingEmailProof) (core.PendingEmailProof, error)
	Get(ctx context.Context, id string) (core.PendingEmailProof, error)
	MarkConsumed(ctx context.Context, id string, receiptJSON string) error
	MarkSent(ctx context.Context, id string, ok bool) error
	IsDoNotEmail(ctx context.Context, email string) (bool, error)
	IncrementRateLimit(ctx context.Context, email string, ts core.Timescale, windowEnd time.Time, limit int) error

	AddDoNotEmail(ctx context.Context, email string) error
	RemoveDoNotEmail(ctx context.Context, email string) error
	ListDoNotEmail(ctx context.Context) ([]core.DoNotEmail, error)

	RateLimitHistory(ctx context.Context, ts core.Timescale) ([]core.EmailRateLimitHistory, error)
	ResetRateLimitHistory(ctx context.Context, ts core.Timescale) error
	DeleteRateLimitHistory(ctx context.Context, email string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db}
}

func (r *repository) Create(ctx context.Context, proof core.PendingEmailProof) (core.PendingEmailProof, error) {
	ctx, span := tracer.Start(ctx, "EmailProof.Repository.Create")
	defer span.End()

	if err := r.db.WithContext(ctx).Create(&proof).Error; err != nil {
		span.RecordError(err)
		return core.PendingEmailProof{}, err
	}
	return proof, nil
}

func (r *repository) Get(ctx context.Context, id string) (core.PendingEmailProof, error) {
	ctx, span := tracer.Start(ctx, "EmailProof.Repository.Get")
	defer span.End()

	var proof core.PendingEmailProof
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&proof).Error
	if err != nil {
		span.RecordError(err)
		return core.PendingEmailProof{}, err
	}
	return proof, nil
}

func (r *repository) MarkConsumed(ctx context.Context, id string, receiptJSON string) error {
	ctx, span := tracer.Start(ctx, "EmailProof.Repository.MarkConsumed")
	defer span.End()

	err := r.db.WithContext(ctx).Model(&core.PendingEmailProof{}).Where("id = ?", id).
		Updates(map[string]any{"consumed": true, "receipt_json": receiptJSON}).Error
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *repository) MarkSent(ctx context.Context, id string, ok bool) error {
	ctx, span := tracer.Start(ctx, "EmailProof.Repository.MarkSent")
	defer span.End()

	err := r.db.WithContext(ctx).Model(&core.PendingEmailProof{}).Where("id = ?", id).Update("sent_ok", ok).Error
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *repository) IsDoNotEmail(ctx context.Context, email string) (bool, error) {
	ctx, span := tracer.Start(ctx, "EmailProof.Repository.IsDoNotEmail")
	defer span.End()

	var count int64
	err := r.db.WithContext(ctx).Model(&core.DoNotEmail{}).Where("email = ?", email).Count(&count).Error
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	return count > 0, nil
}

func (r *repository) AddDoNotEmail(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "EmailProof.Repository.AddDoNotEmail")
	defer span.End()

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&core.DoNotEmail{Email: email}).Error
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *repository) RemoveDoNotEmail(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "EmailProof.Repository.RemoveDoNotEmail")
	defer span.End()

	err := r.db.WithContext(ctx).Where("email = ?", email).Delete(&core.DoNotEmail{}).Error
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *repository) ListDoNotEmail(ctx context.Context) ([]core.DoNotEmail, error) {
	ctx, span := tracer.Start(ctx, "EmailProof.Repository.ListDoNotEmail")
	defer span.End()

	var rows []core.DoNotEmail
	err := r.db.WithContext(ctx).Order("email ASC").Find(&rows).Error
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return rows, nil
}

func (r *repository) RateLimitHistory(ctx context.Context, ts core.Timescale) ([]core.EmailRateLimitHistory, error) {
	ctx, span := tracer.Start(ctx, "EmailProof.Repository.RateLimitHistory")
	defer span.End()

	var rows []core.EmailRateLimitHistory
	err := r.db.WithContext(ctx).Where("timescale = ?", ts).Order("email ASC").Find(&rows).Error
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return rows, nil
}

func (r *repository) ResetRateLimitHistory(ctx context.Context, ts core.Timescale) error {
	ctx, span := tracer.Start(ctx, "EmailProof.Repository.ResetRateLimitHistory")
	defer span.End()

	err := r.db.WithContext(ctx).Model(&core.EmailRateLimitHistory{}).Where("timescale = ?", ts).Update("count", 0).Error
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *repository) DeleteRateLimitHistory(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "EmailProof.Repository.DeleteRateLimitHistory")
	defer span.End()

	err := r.db.WithContext(ctx).Where("email = ?", email).Delete(&core.EmailRateLimitHistory{}).Error
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// IncrementRateLimit atomically bumps the counter for (email, timescale)
// inside the current window, resetting it if the window has rolled
// over, and fails closed with core.ErrorRateLimited once the limit is
// exceeded within a single transaction.
func (r *repository) IncrementRateLimit(ctx context.Context, email string, ts core.Timescale, windowEnd time.Time, limit int) error {
	ctx, span := tracer.Start(ctx, "EmailProof.Repository.IncrementRateLimit")
	defer span.End()

	tx := r.db.WithContext(ctx).Begin()

	var history core.EmailRateLimitHistory
	err := tx.Where("email = ? AND timescale = ?", email, ts).First(&history).Error
	if err == gorm.ErrRecordNotFound {
		history = core.EmailRateLimitHistory{Email: email, Timescale: ts, Count: 1, WindowEnd: windowEnd}
		if err := tx.Create(&history).Error; err != nil {
			tx.Rollback()
			span.RecordError(err)
			return err
		}
		return tx.Commit().Error
	}
	if err != nil {
		tx.Rollback()
		span.RecordError(err)
		return err
	}

	if time.Now().After(history.WindowEnd) {
		history.Count = 1
		history.WindowEnd = windowEnd
	} else {
		if history.Count >= limit {
			tx.Rollback()
			return core.NewErrorRateLimited(ts)
		}
		history.Count++
	}

	if err := tx.Save(&history).Error; err != nil {
		tx.Rollback()
		span.RecordError(err)
		return err
	}
	return tx.Commit().Error
}
