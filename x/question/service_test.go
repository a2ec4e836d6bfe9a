package question

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/right-to-ask/rta/core"
	"github.com/right-to-ask/rta/internal/testutil"
	"github.com/right-to-ask/rta/x/board"
	"github.com/right-to-ask/rta/x/censorship"
	"github.com/right-to-ask/rta/x/identity"
	"github.com/right-to-ask/rta/x/signing"
)

func setupService(t *testing.T) (core.QuestionService, core.IdentityService, func()) {
	db, cleanup := testutil.CreateDB()
	pub, priv, _ := ed25519.GenerateKey(nil)
	boardSvc := board.NewService(board.NewRepository(db), signing.NewService(pub, priv))
	identitySvc := identity.NewService(identity.NewRepository(db))
	censorSvc := censorship.NewService(censorship.NewRepository(db), boardSvc, nil)
	svc := NewService(NewRepository(db), boardSvc, censorSvc, identitySvc, nil, false)
	return svc, identitySvc, cleanup
}

func TestCreateAndGetQuestion(t *testing.T) {
	svc, identitySvc, cleanup := setupService(t)
	defer cleanup()
	ctx := context.Background()

	user, err := identitySvc.Register(ctx, core.NewRegistrationCommand{UID: "greg", DisplayName: "Greg"}, "key")
	assert.NoError(t, err)

	mp := "Jane Smith MP"
	created, err := svc.Create(ctx, user.ID, core.NewQuestionCommand{
		Text:    "Will the minister explain the budget shortfall?",
		AskedOf: &core.PersonRef{MP: &mp},
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.Version)

	fetched, err := svc.Get(ctx, created.ID)
	assert.NoError(t, err)
	assert.Equal(t, created.Text, fetched.Text)
	assert.Len(t, fetched.People, 1)
}

func TestEditRejectsStaleVersion(t *testing.T) {
	svc, identitySvc, cleanup := setupService(t)
	defer cleanup()
	ctx := context.Background()

	user, _ := identitySvc.Register(ctx, core.NewRegistrationCommand{UID: "hank", DisplayName: "Hank"}, "key")
	created, err := svc.Create(ctx, user.ID, core.NewQuestionCommand{Text: "Question text goes here"})
	assert.NoError(t, err)

	_, err = svc.Edit(ctx, user.ID, core.EditQuestionCommand{QuestionID: created.ID, Version: "stale-version"})
	assert.Error(t, err)
	assert.IsType(t, core.ErrorVersionMismatch{}, err)
}

func TestVoteAggregatesCounters(t *testing.T) {
	svc, identitySvc, cleanup := setupService(t)
	defer cleanup()
	ctx := context.Background()

	author, _ := identitySvc.Register(ctx, core.NewRegistrationCommand{UID: "ivy", DisplayName: "Ivy"}, "key")
	voter, _ := identitySvc.Register(ctx, core.NewRegistrationCommand{UID: "jack", DisplayName: "Jack"}, "key")

	created, err := svc.Create(ctx, author.ID, core.NewQuestionCommand{Text: "Question text goes here"})
	assert.NoError(t, err)

	assert.NoError(t, svc.Vote(ctx, voter.ID, core.VoteCommand{QuestionID: created.ID, Value: 1}))
	fetched, err := svc.Get(ctx, created.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), fetched.TotalVotes)
	assert.Equal(t, int64(1), fetched.NetVotes)

	assert.NoError(t, svc.Vote(ctx, voter.ID, core.VoteCommand{QuestionID: created.ID, Value: -1}))
	fetched, err = svc.Get(ctx, created.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(1), fetched.TotalVotes)
	assert.Equal(t, int64(-1), fetched.NetVotes)
}

func TestCreateDuplicateReturnsAlreadyExists(t *testing.T) {
	svc, identitySvc, cleanup := setupService(t)
	defer cleanup()
	ctx := context.Background()

	user, _ := identitySvc.Register(ctx, core.NewRegistrationCommand{UID: "morgan", DisplayName: "Morgan"}, "key")
	cmd := core.NewQuestionCommand{Text: "Will this get rejected the second time?"}

	_, err := svc.Create(ctx, user.ID, cmd)
	assert.NoError(t, err)

	_, err = svc.Create(ctx, user.ID, cmd)
	assert.Error(t, err)
	assert.IsType(t, core.ErrorQuestionAlreadyExists{}, err)
}

func TestEditRejectsNonCreatorPermissionChange(t *testing.T) {
	svc, identitySvc, cleanup := setupService(t)
	defer cleanup()
	ctx := context.Background()

	creator, _ := identitySvc.Register(ctx, core.NewRegistrationCommand{UID: "nora", DisplayName: "Nora"}, "key")
	other, _ := identitySvc.Register(ctx, core.NewRegistrationCommand{UID: "owen", DisplayName: "Owen"}, "key")

	created, err := svc.Create(ctx, creator.ID, core.NewQuestionCommand{Text: "Question text goes here"})
	assert.NoError(t, err)

	mp := "Some MP"
	_, err = svc.Edit(ctx, other.ID, core.EditQuestionCommand{
		QuestionID: created.ID,
		Version:    created.Version,
		AskedOf:    &core.PersonRef{MP: &mp},
	})
	assert.Error(t, err)
	assert.IsType(t, core.ErrorNotAuthorised{}, err)
}

func TestAnswerRequiresMPBadge(t *testing.T) {
	svc, identitySvc, cleanup := setupService(t)
	defer cleanup()
	ctx := context.Background()

	creator, _ := identitySvc.Register(ctx, core.NewRegistrationCommand{UID: "paula", DisplayName: "Paula"}, "key")
	mpUser, _ := identitySvc.Register(ctx, core.NewRegistrationCommand{UID: "quinn", DisplayName: "Quinn MP"}, "key")

	created, err := svc.Create(ctx, creator.ID, core.NewQuestionCommand{Text: "Question text goes here"})
	assert.NoError(t, err)

	_, err = svc.Answer(ctx, mpUser.ID, core.NewAnswerCommand{QuestionID: created.ID, MP: "Quinn MP", Text: "Here is my answer"})
	assert.Error(t, err)
	assert.IsType(t, core.ErrorNotAuthorised{}, err)

	_, err = identitySvc.GrantBadge(ctx, mpUser.ID, core.BadgeKindMP, "Quinn MP")
	assert.NoError(t, err)

	answer, err := svc.Answer(ctx, mpUser.ID, core.NewAnswerCommand{QuestionID: created.ID, MP: "Quinn MP", Text: "Here is my answer"})
	assert.NoError(t, err)
	assert.NotEmpty(t, answer.Version)
}

func TestGetHistoryOrdersMostRecentFirst(t *testing.T) {
	svc, identitySvc, cleanup := setupService(t)
	defer cleanup()
	ctx := context.Background()

	user, _ := identitySvc.Register(ctx, core.NewRegistrationCommand{UID: "ruth", DisplayName: "Ruth"}, "key")
	created, err := svc.Create(ctx, user.ID, core.NewQuestionCommand{Text: "Question text goes here"})
	assert.NoError(t, err)

	background := "extra context"
	edited, err := svc.Edit(ctx, user.ID, core.EditQuestionCommand{QuestionID: created.ID, Version: created.Version, Background: &background})
	assert.NoError(t, err)

	history, err := svc.GetHistory(ctx, created.ID)
	assert.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, edited.Version, history[0].LeafHash)
	assert.False(t, history[0].Redacted)
}

func TestReportFlagsQuestion(t *testing.T) {
	svc, identitySvc, cleanup := setupService(t)
	defer cleanup()
	ctx := context.Background()

	author, _ := identitySvc.Register(ctx, core.NewRegistrationCommand{UID: "kate", DisplayName: "Kate"}, "key")
	reporter, _ := identitySvc.Register(ctx, core.NewRegistrationCommand{UID: "liam", DisplayName: "Liam"}, "key")

	created, err := svc.Create(ctx, author.ID, core.NewQuestionCommand{Text: "Question text goes here"})
	assert.NoError(t, err)

	err = svc.Report(ctx, reporter.ID, core.ReportCommand{QuestionID: created.ID, Reason: core.ReasonSpam})
	assert.NoError(t, err)

	fetched, err := svc.Get(ctx, created.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, fetched.NumFlags)
	assert.Equal(t, core.StatusFlagged, fetched.CensorshipStatus)
}
