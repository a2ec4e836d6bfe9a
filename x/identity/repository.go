// Package identity owns the user registry: registration, profile
// edits, electorate membership, and badge issuance.
package identity

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/right-to-ask/rta/core"
)

var tracer = otel.Tracer("identity")

type Repository interface {
	Create(ctx context.Context, user core.User) (core.User, error)
	GetByUID(ctx context.Context, uidUpper string) (core.User, error)
	GetByID(ctx context.Context, id uint) (core.User, error)
	Update(ctx context.Context, user core.User) (core.User, error)
	ReplaceElectorates(ctx context.Context, userID uint, electorates []core.Electorate) error
	UpsertElectorate(ctx context.Context, chamber core.Chamber, name string) (core.Electorate, error)
	CreateBadge(ctx context.Context, badge core.Badge) (core.Badge, error)
	DeleteBadge(ctx context.Context, userID uint, kind core.BadgeKind, what string) error
	HasBadge(ctx context.Context, userID uint, kind core.BadgeKind, what string) (bool, error)
	SetBlocked(ctx context.Context, userID uint, blocked bool) error
	SetVerifiedEmail(ctx context.Context, userID uint, email string, at time.Time) error
	List(ctx context.Context) ([]core.User, error)
	Search(ctx context.Context, q string, wantBadges []core.BadgeKind) ([]core.User, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db}
}

func (r *repository) Create(ctx context.Context, user core.User) (core.User, error) {
	ctx, span := tracer.Start(ctx, "Identity.Repository.Create")
	defer span.End()

	if err := r.db.WithContext(ctx).Create(&user).Error; err != nil {
		span.RecordError(err)
		return core.User{}, err
	}
	return user, nil
}

func (r *repository) GetByUID(ctx context.Context, uidUpper string) (core.User, error) {
	ctx, span := tracer.Start(ctx, "Identity.Repository.GetByUID")
	defer span.End()

	var user core.User
	err := r.db.WithContext(ctx).Preload("Electorates").Preload("Badges").
		Where("uid_upper = ?", uidUpper).First(&user).Error
	if err != nil {
		span.RecordError(err)
		return core.User{}, err
	}
	return user, nil
}

func (r *repository) GetByID(ctx context.Context, id uint) (core.User, error) {
	ctx, span := tracer.Start(ctx, "Identity.Repository.GetByID")
	defer span.End()

	var user core.User
	err := r.db.WithContext(ctx).Preload("Electorates").Preload("Badges").
		Where("id = ?", id).First(&user).Error
	if err != nil {
		span.RecordError(err)
		return core.User{}, err
	}
	return user, nil
}

func (r *repository) Update(ctx context.Context, user core.User) (core.User, error) {
	ctx, span := tracer.Start(ctx, "Identity.Repository.Update")
	defer span.End()

	if err := r.db.WithContext(ctx).Save(&user).Error; err != nil {
		span.RecordError(err)
		return core.User{}, err
	}
	return user, nil
}

// ReplaceElectorates does a full delete-then-insert of the join rows;
// edit_user always sends the complete new electorate set.
func (r *repository) ReplaceElectorates(ctx context.Context, userID uint, electorates []core.Electorate) error {
	ctx, span := tracer.Start(ctx, "Identity.Repository.ReplaceElectorates")
	defer span.End()

	tx := r.db.WithContext(ctx).Begin()
	if err := tx.Where("user_id = ?", userID).Delete(&core.UserElectorate{}).Error; err != nil {
		tx.Rollback()
		span.RecordError(err)
		return err
	}
	for _, e := range electorates {
		join := core.UserElectorate{UserID: userID, ElectorateID: e.ID}
		if err := tx.Create(&join).Error; err != nil {
			tx.Rollback()
			span.RecordError(err)
			return err
		}
	}
	return tx.Commit().Error
}

func (r *repository) UpsertElectorate(ctx context.Context, chamber core.Chamber, name string) (core.Electorate, error) {
	ctx, span := tracer.Start(ctx, "Identity.Repository.UpsertElectorate")
	defer span.End()

	var electorate core.Electorate
	err := r.db.WithContext(ctx).Where("chamber = ? AND electorate_name = ?", chamber, name).First(&electorate).Error
	if err == nil {
		return electorate, nil
	}
	if err != gorm.ErrRecordNotFound {
		span.RecordError(err)
		return core.Electorate{}, err
	}

	electorate = core.Electorate{Chamber: chamber, ElectorateName: name}
	if err := r.db.WithContext(ctx).Create(&electorate).Error; err != nil {
		span.RecordError(err)
		return core.Electorate{}, err
	}
	return electorate, nil
}

func (r *repository) CreateBadge(ctx context.Context, badge core.Badge) (core.Badge, error) {
	ctx, span := tracer.Start(ctx, "Identity.Repository.CreateBadge")
	defer span.End()

	if err := r.db.WithContext(ctx).Create(&badge).Error; err != nil {
		span.RecordError(err)
		return core.Badge{}, err
	}
	return badge, nil
}

func (r *repository) DeleteBadge(ctx context.Context, userID uint, kind core.BadgeKind, what string) error {
	ctx, span := tracer.Start(ctx, "Identity.Repository.DeleteBadge")
	defer span.End()

	err := r.db.WithContext(ctx).
		Where("user_id = ? AND kind = ? AND what = ?", userID, kind, what).
		Delete(&core.Badge{}).Error
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *repository) HasBadge(ctx context.Context, userID uint, kind core.BadgeKind, what string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Identity.Repository.HasBadge")
	defer span.End()

	var count int64
	err := r.db.WithContext(ctx).Model(&core.Badge{}).
		Where("user_id = ? AND kind = ? AND what = ?", userID, kind, what).Count(&count).Error
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	return count > 0, nil
}

func (r *repository) SetBlocked(ctx context.Context, userID uint, blocked bool) error {
	ctx, span := tracer.Start(ctx, "Identity.Repository.SetBlocked")
	defer span.End()

	err := r.db.WithContext(ctx).Model(&core.User{}).Where("id = ?", userID).Update("blocked", blocked).Error
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *repository) SetVerifiedEmail(ctx context.Context, userID uint, email string, at time.Time) error {
	ctx, span := tracer.Start(ctx, "Identity.Repository.SetVerifiedEmail")
	defer span.End()

	err := r.db.WithContext(ctx).Model(&core.User{}).Where("id = ?", userID).
		Updates(map[string]any{"email": email, "email_at": at}).Error
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (r *repository) List(ctx context.Context) ([]core.User, error) {
	ctx, span := tracer.Start(ctx, "Identity.Repository.List")
	defer span.End()

	var users []core.User
	err := r.db.WithContext(ctx).Preload("Electorates").Preload("Badges").Order("uid_upper ASC").Find(&users).Error
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return users, nil
}

// Search matches uid or display name case-insensitively against q; a
// blank q matches everyone. When wantBadges is non-empty, only users
// holding at least one of the listed badge kinds are returned.
func (r *repository) Search(ctx context.Context, q string, wantBadges []core.BadgeKind) ([]core.User, error) {
	ctx, span := tracer.Start(ctx, "Identity.Repository.Search")
	defer span.End()

	tx := r.db.WithContext(ctx).Preload("Electorates").Preload("Badges").Model(&core.User{})
	if q != "" {
		like := "%" + strings.ToUpper(q) + "%"
		tx = tx.Where("uid_upper LIKE ? OR UPPER(display_name) LIKE ?", like, like)
	}
	if len(wantBadges) > 0 {
		tx = tx.Where("id IN (?)", r.db.Model(&core.Badge{}).Select("user_id").Where("kind IN ?", wantBadges))
	}

	var users []core.User
	if err := tx.Order("uid_upper ASC").Find(&users).Error; err != nil {
		span.RecordError(err)
		return nil, err
	}
	return users, nil
}
