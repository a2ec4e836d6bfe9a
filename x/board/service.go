package board

import (
	"context"
	"encoding/hex"

	"github.com/pkg/errors"

	"github.com/right-to-ask/rta/core"
)

// sentinelPayload replaces a redacted leaf's content: it erases the
// original text while keeping the leaf's hash, position and signature
// intact.
const sentinelPayload = `{"redacted":true}`

type service struct {
	repo   Repository
	signer core.SigningService
}

func NewService(repo Repository, signer core.SigningService) core.BoardService {
	return &service{repo, signer}
}

// Append records one accepted command as a new leaf, content-addressed
// by the hash of its payload. It stays unfolded until the next Fold.
// Submitting a payload that already has a leaf is idempotent: the
// existing leaf is returned rather than re-inserted.
func (s *service) Append(ctx context.Context, payload, signature string) (core.BulletinBoardLeaf, error) {
	ctx, span := tracer.Start(ctx, "Board.Service.Append")
	defer span.End()

	hash := hex.EncodeToString(core.GetHash([]byte(payload)))

	existing, err := s.repo.GetLeaf(ctx, hash)
	if err != nil {
		span.RecordError(err)
		return core.BulletinBoardLeaf{}, errors.Wrap(err, "failed to look up leaf")
	}
	if existing != nil {
		return *existing, nil
	}

	leaf := core.BulletinBoardLeaf{
		Hash:      hash,
		Payload:   payload,
		Signature: signature,
	}

	created, err := s.repo.AppendLeaf(ctx, leaf)
	if err != nil {
		span.RecordError(err)
		return core.BulletinBoardLeaf{}, errors.Wrap(err, "failed to append leaf")
	}
	return created, nil
}

// Fold pairs up the current frontier of unparented leaves/branches into
// one new branch node. It is a no-op returning nil when fewer than two
// nodes are pending.
func (s *service) Fold(ctx context.Context) (*core.BulletinBoardBranch, error) {
	ctx, span := tracer.Start(ctx, "Board.Service.Fold")
	defer span.End()

	nodes, err := s.repo.TopLevelNodes(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(nodes) < 2 {
		return nil, nil
	}

	lhs, rhs := nodes[0], nodes[1]
	hash := hex.EncodeToString(core.GetHash([]byte(lhs + rhs)))

	branch := core.BulletinBoardBranch{Hash: hash, LHS: lhs, RHS: rhs}
	created, err := s.repo.CreateBranch(ctx, branch)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.repo.MarkParent(ctx, []string{lhs, rhs}, hash); err != nil {
		span.RecordError(err)
		return nil, err
	}

	return &created, nil
}

// Publish folds any remaining frontier down to a single root and
// server-signs a commitment that chains to the previous published
// root, so the chain of custody over board history is monotonic. When
// nothing has been appended since the last publication, the latest
// root is returned unchanged.
func (s *service) Publish(ctx context.Context) (*core.PublishedRoot, error) {
	ctx, span := tracer.Start(ctx, "Board.Service.Publish")
	defer span.End()

	for {
		nodes, err := s.repo.TopLevelNodes(ctx)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if len(nodes) <= 1 {
			break
		}
		if _, err := s.Fold(ctx); err != nil {
			return nil, err
		}
	}

	nodes, err := s.repo.TopLevelNodes(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(nodes) == 0 {
		return s.repo.LatestRoot(ctx)
	}

	rootHash := nodes[0]

	previous, err := s.repo.LatestRoot(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if previous != nil && previous.RootHash == rootHash {
		return previous, nil
	}
	var previousHash *string
	if previous != nil {
		previousHash = &previous.RootHash
	}

	receipt, err := s.signer.Receipt(ctx, []byte(rootHash))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	root := core.PublishedRoot{
		RootHash:     rootHash,
		PreviousRoot: previousHash,
		Signature:    receipt.Signature,
	}

	created, err := s.repo.CreateRoot(ctx, root)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &created, nil
}

func (s *service) LatestRoot(ctx context.Context) (*core.PublishedRoot, error) {
	ctx, span := tracer.Start(ctx, "Board.Service.LatestRoot")
	defer span.End()
	return s.repo.LatestRoot(ctx)
}

// Path returns the inclusion path from a leaf up to whatever frontier
// node currently covers it, for offline Merkle-membership proofs.
func (s *service) Path(ctx context.Context, leafHash string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Board.Service.Path")
	defer span.End()
	return s.repo.Ancestors(ctx, leafHash)
}

func (s *service) ParentlessUnpublished(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "Board.Service.ParentlessUnpublished")
	defer span.End()
	return s.repo.UnpublishedTopLevelNodes(ctx)
}

// Lookup resolves a hash to whichever kind of node holds it, leaf or
// branch, without the caller needing to know in advance where a
// Merkle path terminates.
func (s *service) Lookup(ctx context.Context, hash string) (*core.BoardNode, error) {
	ctx, span := tracer.Start(ctx, "Board.Service.Lookup")
	defer span.End()

	leaf, err := s.repo.GetLeaf(ctx, hash)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if leaf != nil {
		return &core.BoardNode{
			Hash:       leaf.Hash,
			Payload:    &leaf.Payload,
			Signature:  &leaf.Signature,
			Redacted:   leaf.Redacted,
			ParentHash: leaf.ParentHash,
		}, nil
	}

	branch, err := s.repo.GetBranch(ctx, hash)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if branch != nil {
		return &core.BoardNode{
			Hash:       branch.Hash,
			IsBranch:   true,
			LHS:        &branch.LHS,
			RHS:        &branch.RHS,
			ParentHash: branch.ParentHash,
		}, nil
	}
	return nil, nil
}

// Redact overwrites each named leaf's payload with a sentinel in
// place. Hash, parent and signature are untouched, so any published
// root already covering the leaf remains a valid commitment.
func (s *service) Redact(ctx context.Context, leafHashes []string) error {
	ctx, span := tracer.Start(ctx, "Board.Service.Redact")
	defer span.End()

	for _, hash := range leafHashes {
		if err := s.repo.RedactLeaf(ctx, hash, sentinelPayload); err != nil {
			span.RecordError(err)
			return err
		}
	}
	return nil
}
