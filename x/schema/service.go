package schema

import (
	"context"
	"sort"

	"github.com/right-to-ask/rta/core"
)

// Migration is one idempotent step, identified by the version it
// leaves the database at. Migrations are applied in ascending order
// starting just above the current version.
type Migration struct {
	Version uint
	Run     func(ctx context.Context) error
}

type service struct {
	repo       Repository
	migrations []Migration
}

// NewService takes the ordered set of migrations this build knows
// about; Advance only ever moves forward through them.
func NewService(repo Repository, migrations []Migration) core.SchemaService {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return &service{repo, sorted}
}

func (s *service) Current(ctx context.Context) (uint, error) {
	ctx, span := tracer.Start(ctx, "Schema.Service.Current")
	defer span.End()

	version, err := s.repo.Current(ctx)
	if err != nil {
		span.RecordError(err)
		return 0, core.NewErrorInternal(err)
	}
	return version, nil
}

// Advance runs every registered migration between the current version
// and `to`, in order, recording the new version after each step so a
// crash mid-run resumes rather than re-applying completed steps.
func (s *service) Advance(ctx context.Context, to uint) error {
	ctx, span := tracer.Start(ctx, "Schema.Service.Advance")
	defer span.End()

	current, err := s.repo.Current(ctx)
	if err != nil {
		span.RecordError(err)
		return core.NewErrorInternal(err)
	}

	for _, migration := range s.migrations {
		if migration.Version <= current || migration.Version > to {
			continue
		}
		if err := migration.Run(ctx); err != nil {
			span.RecordError(err)
			return core.NewErrorInternal(err)
		}
		if err := s.repo.SetVersion(ctx, migration.Version); err != nil {
			span.RecordError(err)
			return core.NewErrorInternal(err)
		}
	}
	return nil
}
