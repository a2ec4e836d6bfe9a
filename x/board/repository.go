// Package board implements the append-only bulletin board: every
// accepted command is stored as a signed leaf, leaves are folded
// pairwise into branches, and a branch root is periodically committed
// as a PublishedRoot that chains to the previous one.
package board

import (
	"context"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/right-to-ask/rta/core"
)

var tracer = otel.Tracer("board")

type Repository interface {
	AppendLeaf(ctx context.Context, leaf core.BulletinBoardLeaf) (core.BulletinBoardLeaf, error)
	UnfoldedLeaves(ctx context.Context) ([]core.BulletinBoardLeaf, error)
	CreateBranch(ctx context.Context, branch core.BulletinBoardBranch) (core.BulletinBoardBranch, error)
	TopLevelNodes(ctx context.Context) ([]string, error)
	MarkParent(ctx context.Context, childHashes []string, parentHash string) error
	CreateRoot(ctx context.Context, root core.PublishedRoot) (core.PublishedRoot, error)
	LatestRoot(ctx context.Context) (*core.PublishedRoot, error)
	Ancestors(ctx context.Context, leafHash string) ([]string, error)
	GetLeaf(ctx context.Context, hash string) (*core.BulletinBoardLeaf, error)
	GetBranch(ctx context.Context, hash string) (*core.BulletinBoardBranch, error)
	RedactLeaf(ctx context.Context, hash, sentinelPayload string) error
	// UnpublishedTopLevelNodes is TopLevelNodes minus any hash already
	// committed as a PublishedRoot.
	UnpublishedTopLevelNodes(ctx context.Context) ([]string, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db}
}

// AppendLeaf inserts a leaf with no parent; it belongs to the pending
// set until the next Fold.
func (r *repository) AppendLeaf(ctx context.Context, leaf core.BulletinBoardLeaf) (core.BulletinBoardLeaf, error) {
	ctx, span := tracer.Start(ctx, "Board.Repository.AppendLeaf")
	defer span.End()

	if err := r.db.WithContext(ctx).Create(&leaf).Error; err != nil {
		span.RecordError(err)
		return core.BulletinBoardLeaf{}, err
	}
	return leaf, nil
}

func (r *repository) UnfoldedLeaves(ctx context.Context) ([]core.BulletinBoardLeaf, error) {
	ctx, span := tracer.Start(ctx, "Board.Repository.UnfoldedLeaves")
	defer span.End()

	var leaves []core.BulletinBoardLeaf
	err := r.db.WithContext(ctx).Where("parent_hash IS NULL").Order("c_date ASC").Find(&leaves).Error
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return leaves, nil
}

func (r *repository) CreateBranch(ctx context.Context, branch core.BulletinBoardBranch) (core.BulletinBoardBranch, error) {
	ctx, span := tracer.Start(ctx, "Board.Repository.CreateBranch")
	defer span.End()

	if err := r.db.WithContext(ctx).Create(&branch).Error; err != nil {
		span.RecordError(err)
		return core.BulletinBoardBranch{}, err
	}
	return branch, nil
}

// TopLevelNodes returns the hashes of every leaf or branch that has no
// parent yet -- the frontier a new fold or publish operates on.
func (r *repository) TopLevelNodes(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Board.Repository.TopLevelNodes")
	defer span.End()

	var hashes []string
	var leafHashes []string
	if err := r.db.WithContext(ctx).Model(&core.BulletinBoardLeaf{}).
		Where("parent_hash IS NULL").Order("c_date ASC").Pluck("hash", &leafHashes).Error; err != nil {
		span.RecordError(err)
		return nil, err
	}
	hashes = append(hashes, leafHashes...)

	var branchHashes []string
	if err := r.db.WithContext(ctx).Model(&core.BulletinBoardBranch{}).
		Where("parent_hash IS NULL").Order("c_date ASC").Pluck("hash", &branchHashes).Error; err != nil {
		span.RecordError(err)
		return nil, err
	}
	hashes = append(hashes, branchHashes...)

	return hashes, nil
}

func (r *repository) MarkParent(ctx context.Context, childHashes []string, parentHash string) error {
	ctx, span := tracer.Start(ctx, "Board.Repository.MarkParent")
	defer span.End()

	tx := r.db.WithContext(ctx).Begin()
	if err := tx.Model(&core.BulletinBoardLeaf{}).Where("hash IN ?", childHashes).
		Update("parent_hash", parentHash).Error; err != nil {
		tx.Rollback()
		span.RecordError(err)
		return err
	}
	if err := tx.Model(&core.BulletinBoardBranch{}).Where("hash IN ?", childHashes).
		Update("parent_hash", parentHash).Error; err != nil {
		tx.Rollback()
		span.RecordError(err)
		return err
	}
	return tx.Commit().Error
}

func (r *repository) CreateRoot(ctx context.Context, root core.PublishedRoot) (core.PublishedRoot, error) {
	ctx, span := tracer.Start(ctx, "Board.Repository.CreateRoot")
	defer span.End()

	if err := r.db.WithContext(ctx).Create(&root).Error; err != nil {
		span.RecordError(err)
		return core.PublishedRoot{}, err
	}
	return root, nil
}

func (r *repository) LatestRoot(ctx context.Context) (*core.PublishedRoot, error) {
	ctx, span := tracer.Start(ctx, "Board.Repository.LatestRoot")
	defer span.End()

	var root core.PublishedRoot
	err := r.db.WithContext(ctx).Order("published_at DESC").First(&root).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		span.RecordError(err)
		return nil, err
	}
	return &root, nil
}

func (r *repository) GetLeaf(ctx context.Context, hash string) (*core.BulletinBoardLeaf, error) {
	ctx, span := tracer.Start(ctx, "Board.Repository.GetLeaf")
	defer span.End()

	var leaf core.BulletinBoardLeaf
	err := r.db.WithContext(ctx).Where("hash = ?", hash).First(&leaf).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &leaf, nil
}

func (r *repository) GetBranch(ctx context.Context, hash string) (*core.BulletinBoardBranch, error) {
	ctx, span := tracer.Start(ctx, "Board.Repository.GetBranch")
	defer span.End()

	var branch core.BulletinBoardBranch
	err := r.db.WithContext(ctx).Where("hash = ?", hash).First(&branch).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &branch, nil
}

// RedactLeaf overwrites a leaf's payload with a sentinel, leaving its
// hash, parent and signature untouched so the Merkle structure and any
// already-published root that covers it stay valid.
func (r *repository) RedactLeaf(ctx context.Context, hash, sentinelPayload string) error {
	ctx, span := tracer.Start(ctx, "Board.Repository.RedactLeaf")
	defer span.End()

	err := r.db.WithContext(ctx).Model(&core.BulletinBoardLeaf{}).Where("hash = ?", hash).
		Updates(map[string]any{"payload": sentinelPayload, "redacted": true}).Error
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// UnpublishedTopLevelNodes excludes hashes already committed as a
// PublishedRoot from the top-level frontier. A just-published root
// keeps a nil parent_hash until a future fold gives it one, so a bare
// parent_hash filter would keep reporting it as pending forever.
func (r *repository) UnpublishedTopLevelNodes(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Board.Repository.UnpublishedTopLevelNodes")
	defer span.End()

	nodes, err := r.TopLevelNodes(ctx)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nodes, nil
	}

	var published []string
	if err := r.db.WithContext(ctx).Model(&core.PublishedRoot{}).
		Where("root_hash IN ?", nodes).Pluck("root_hash", &published).Error; err != nil {
		span.RecordError(err)
		return nil, err
	}
	publishedSet := make(map[string]bool, len(published))
	for _, h := range published {
		publishedSet[h] = true
	}

	result := make([]string, 0, len(nodes))
	for _, h := range nodes {
		if !publishedSet[h] {
			result = append(result, h)
		}
	}
	return result, nil
}

// Ancestors walks parent_hash pointers from a leaf up to the frontier,
// returning the inclusion path used to prove membership under a
// published root.
func (r *repository) Ancestors(ctx context.Context, leafHash string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Board.Repository.Ancestors")
	defer span.End()

	path := []string{leafHash}
	current := leafHash
	for i := 0; i < 64; i++ {
		var leaf core.BulletinBoardLeaf
		err := r.db.WithContext(ctx).Where("hash = ?", current).First(&leaf).Error
		if err == nil {
			if leaf.ParentHash == nil {
				return path, nil
			}
			current = *leaf.ParentHash
			path = append(path, current)
			continue
		}

		var branch core.BulletinBoardBranch
		err = r.db.WithContext(ctx).Where("hash = ?", current).First(&branch).Error
		if err != nil {
			span.RecordError(err)
			return path, err
		}
		if branch.ParentHash == nil {
			return path, nil
		}
		current = *branch.ParentHash
		path = append(path, current)
	}
	return path, nil
}
