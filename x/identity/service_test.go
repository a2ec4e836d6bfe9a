package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/right-to-ask/rta/core"
	"github.com/right-to-ask/rta/internal/testutil"
)

func TestRegisterAndGet(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	svc := NewService(NewRepository(db))

	cmd := core.NewRegistrationCommand{
		UID:         "alice",
		DisplayName: "Alice Citizen",
		Electorates: []core.ElectoratePair{
			{Chamber: core.ChamberAusHouseOfReps, ElectorateName: "Wentworth"},
		},
	}

	created, err := svc.Register(ctx, cmd, "base64publickey")
	assert.NoError(t, err)
	assert.Equal(t, "ALICE", created.UIDUpper)
	assert.Len(t, created.Electorates, 1)

	fetched, err := svc.Get(ctx, "Alice")
	assert.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
}

func TestRegisterDuplicateUID(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	svc := NewService(NewRepository(db))
	cmd := core.NewRegistrationCommand{UID: "bob", DisplayName: "Bob"}

	_, err := svc.Register(ctx, cmd, "key1")
	assert.NoError(t, err)

	_, err = svc.Register(ctx, core.NewRegistrationCommand{UID: "BOB", DisplayName: "Bob Two"}, "key2")
	assert.Error(t, err)
	assert.IsType(t, core.ErrorUidTaken{}, err)
}

func TestRegisterIllegalElectorate(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	svc := NewService(NewRepository(db))
	cmd := core.NewRegistrationCommand{
		UID:         "carol",
		DisplayName: "Carol",
		Electorates: []core.ElectoratePair{{Chamber: "not_a_chamber", ElectorateName: "Nowhere"}},
	}

	_, err := svc.Register(ctx, cmd, "key3")
	assert.Error(t, err)
	assert.IsType(t, core.ErrorIllegalElectorate{}, err)
}

func TestBlockPreventsEdit(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	svc := NewService(NewRepository(db))
	_, err := svc.Register(ctx, core.NewRegistrationCommand{UID: "dave", DisplayName: "Dave"}, "key4")
	assert.NoError(t, err)

	assert.NoError(t, svc.SetBlockStatus(ctx, "dave", true))

	newName := "New Name"
	_, err = svc.Edit(ctx, "dave", core.EditUserCommand{DisplayName: &newName})
	assert.Error(t, err)
	assert.IsType(t, core.ErrorBlocked{}, err)

	assert.NoError(t, svc.SetBlockStatus(ctx, "dave", false))
	_, err = svc.Edit(ctx, "dave", core.EditUserCommand{DisplayName: &newName})
	assert.NoError(t, err)
}

func TestSearchUserByBadge(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	svc := NewService(NewRepository(db))
	mp, err := svc.Register(ctx, core.NewRegistrationCommand{UID: "mpjones", DisplayName: "Jones MP"}, "key5")
	assert.NoError(t, err)
	_, err = svc.Register(ctx, core.NewRegistrationCommand{UID: "citizen", DisplayName: "A Citizen"}, "key6")
	assert.NoError(t, err)

	_, err = svc.GrantBadge(ctx, mp.ID, core.BadgeKindMP, "Jones")
	assert.NoError(t, err)

	ok, err := svc.HasBadge(ctx, mp.ID, core.BadgeKindMP, "Jones")
	assert.NoError(t, err)
	assert.True(t, ok)

	results, err := svc.SearchUser(ctx, "", []core.BadgeKind{core.BadgeKindMP})
	assert.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, "MPJONES", results[0].UIDUpper)

	all, err := svc.GetUserList(ctx)
	assert.NoError(t, err)
	assert.Len(t, all, 2)
}
