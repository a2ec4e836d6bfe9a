// Package schema tracks the single-row schema version and runs
// pending numbered migrations against it, generalized from the
// teacher's "register external JSON schema URLs by upsert" package of
// the same name into "run pending migrations idempotently".
package schema

import (
	"context"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/right-to-ask/rta/core"
)

var tracer = otel.Tracer("schema")

type Repository interface {
	Current(ctx context.Context) (uint, error)
	SetVersion(ctx context.Context, version uint) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db}
}

// Current returns 0 and no error if the marker row doesn't exist yet
// -- a fresh database is schema version zero, before any migration.
func (r *repository) Current(ctx context.Context) (uint, error) {
	ctx, span := tracer.Start(ctx, "Schema.Repository.Current")
	defer span.End()

	var row core.SchemaVersion
	err := r.db.WithContext(ctx).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	return row.Version, nil
}

func (r *repository) SetVersion(ctx context.Context, version uint) error {
	ctx, span := tracer.Start(ctx, "Schema.Repository.SetVersion")
	defer span.End()

	var row core.SchemaVersion
	err := r.db.WithContext(ctx).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return r.db.WithContext(ctx).Create(&core.SchemaVersion{Version: version}).Error
	}
	if err != nil {
		span.RecordError(err)
		return err
	}
	row.Version = version
	return r.db.WithContext(ctx).Save(&row).Error
}
