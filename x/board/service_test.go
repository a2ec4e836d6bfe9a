package board

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/right-to-ask/rta/internal/testutil"
	"github.com/right-to-ask/rta/x/signing"
)

func TestAppendAndPublish(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	repo := NewRepository(db)
	pub, priv, _ := ed25519.GenerateKey(nil)
	signer := signing.NewService(pub, priv)
	svc := NewService(repo, signer)

	_, err := svc.Append(ctx, `{"a":1}`, "sig-a")
	assert.NoError(t, err)
	_, err = svc.Append(ctx, `{"a":2}`, "sig-b")
	assert.NoError(t, err)
	_, err = svc.Append(ctx, `{"a":3}`, "sig-c")
	assert.NoError(t, err)

	root, err := svc.Publish(ctx)
	assert.NoError(t, err)
	assert.NotNil(t, root)

	second, err := svc.Publish(ctx)
	assert.NoError(t, err)
	assert.Equal(t, root.RootHash, second.RootHash)
}

func TestPublishRootChainsToPrevious(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	repo := NewRepository(db)
	pub, priv, _ := ed25519.GenerateKey(nil)
	signer := signing.NewService(pub, priv)
	svc := NewService(repo, signer)

	_, _ = svc.Append(ctx, `{"a":1}`, "sig-a")
	first, err := svc.Publish(ctx)
	assert.NoError(t, err)

	_, _ = svc.Append(ctx, `{"a":2}`, "sig-b")
	second, err := svc.Publish(ctx)
	assert.NoError(t, err)

	assert.NotNil(t, second.PreviousRoot)
	assert.Equal(t, first.RootHash, *second.PreviousRoot)
}

func TestAppendIsIdempotentOnDuplicatePayload(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	repo := NewRepository(db)
	pub, priv, _ := ed25519.GenerateKey(nil)
	signer := signing.NewService(pub, priv)
	svc := NewService(repo, signer)

	first, err := svc.Append(ctx, `{"a":1}`, "sig-a")
	assert.NoError(t, err)

	second, err := svc.Append(ctx, `{"a":1}`, "sig-a")
	assert.NoError(t, err)
	assert.Equal(t, first.Hash, second.Hash)

	nodes, err := repo.TopLevelNodes(ctx)
	assert.NoError(t, err)
	assert.Len(t, nodes, 1)
}

func TestParentlessUnpublishedExcludesPublishedRoot(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	repo := NewRepository(db)
	pub, priv, _ := ed25519.GenerateKey(nil)
	signer := signing.NewService(pub, priv)
	svc := NewService(repo, signer)

	_, _ = svc.Append(ctx, `{"a":1}`, "sig-a")
	root, err := svc.Publish(ctx)
	assert.NoError(t, err)

	pending, err := svc.ParentlessUnpublished(ctx)
	assert.NoError(t, err)
	assert.NotContains(t, pending, root.RootHash)

	_, _ = svc.Append(ctx, `{"a":2}`, "sig-b")
	pending, err = svc.ParentlessUnpublished(ctx)
	assert.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestLookupAndRedact(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	repo := NewRepository(db)
	pub, priv, _ := ed25519.GenerateKey(nil)
	signer := signing.NewService(pub, priv)
	svc := NewService(repo, signer)

	leaf, err := svc.Append(ctx, `{"secret":"value"}`, "sig-a")
	assert.NoError(t, err)

	node, err := svc.Lookup(ctx, leaf.Hash)
	assert.NoError(t, err)
	assert.False(t, node.IsBranch)
	assert.Equal(t, leaf.Payload, *node.Payload)
	assert.False(t, node.Redacted)

	assert.NoError(t, svc.Redact(ctx, []string{leaf.Hash}))

	node, err = svc.Lookup(ctx, leaf.Hash)
	assert.NoError(t, err)
	assert.True(t, node.Redacted)
	assert.Equal(t, `{"redacted":true}`, *node.Payload)
	assert.Equal(t, leaf.Signature, *node.Signature)

	missing, err := svc.Lookup(ctx, "not-a-real-hash")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}
