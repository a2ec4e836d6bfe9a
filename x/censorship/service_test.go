package censorship

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"github.com/right-to-ask/rta/core"
	"github.com/right-to-ask/rta/internal/testutil"
	"github.com/right-to-ask/rta/x/board"
	"github.com/right-to-ask/rta/x/signing"
)

func newTestBoard(db *gorm.DB) core.BoardService {
	pub, priv, _ := ed25519.GenerateKey(nil)
	return board.NewService(board.NewRepository(db), signing.NewService(pub, priv))
}

func TestFlagAndAllowTransitions(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	q := core.Question{ID: "q1", Version: "v1", Text: "x", CensorshipStatus: core.StatusNotFlagged}
	assert.NoError(t, db.Create(&q).Error)

	svc := NewService(NewRepository(db), newTestBoard(db), nil)

	assert.NoError(t, svc.Flag(ctx, "q1", nil))
	status, err := NewRepository(db).QuestionStatus(ctx, "q1")
	assert.NoError(t, err)
	assert.Equal(t, core.StatusFlagged, status)

	assert.NoError(t, svc.Censor(ctx, core.CensorCommand{QuestionID: "q1", Version: "v1", NumFlags: 0}))
	status, _ = NewRepository(db).QuestionStatus(ctx, "q1")
	assert.Equal(t, core.StatusAllowed, status)

	assert.NoError(t, svc.Flag(ctx, "q1", nil))
	status, _ = NewRepository(db).QuestionStatus(ctx, "q1")
	assert.Equal(t, core.StatusFlagged, status)
}

func TestCensoredIsTerminal(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	q := core.Question{ID: "q2", Version: "v1", Text: "x", CensorshipStatus: core.StatusFlagged}
	assert.NoError(t, db.Create(&q).Error)

	reason := "abusive"
	svc := NewService(NewRepository(db), newTestBoard(db), nil)
	assert.NoError(t, svc.Censor(ctx, core.CensorCommand{QuestionID: "q2", Version: "v1", NumFlags: 0, Reason: &reason}))

	status, _ := NewRepository(db).QuestionStatus(ctx, "q2")
	assert.Equal(t, core.StatusCensored, status)

	assert.NoError(t, svc.Flag(ctx, "q2", nil))
	status, _ = NewRepository(db).QuestionStatus(ctx, "q2")
	assert.Equal(t, core.StatusCensored, status)
}

func TestCensorRejectsStaleVersionOrFlagCount(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	q := core.Question{ID: "q4", Version: "v1", Text: "x", CensorshipStatus: core.StatusFlagged, NumFlags: 3}
	assert.NoError(t, db.Create(&q).Error)

	svc := NewService(NewRepository(db), newTestBoard(db), nil)

	err := svc.Censor(ctx, core.CensorCommand{QuestionID: "q4", Version: "v0", NumFlags: 3})
	assert.IsType(t, core.ErrorVersionMismatch{}, err)

	err = svc.Censor(ctx, core.CensorCommand{QuestionID: "q4", Version: "v1", NumFlags: 1})
	assert.IsType(t, core.ErrorVersionMismatch{}, err)

	assert.NoError(t, svc.Censor(ctx, core.CensorCommand{QuestionID: "q4", Version: "v1", NumFlags: 3}))
	status, _ := NewRepository(db).QuestionStatus(ctx, "q4")
	assert.Equal(t, core.StatusAllowed, status)
}

func TestCensorRejectsQuestionNotInCensorableState(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	q := core.Question{ID: "q6", Version: "v1", Text: "x", CensorshipStatus: core.StatusNotFlagged}
	assert.NoError(t, db.Create(&q).Error)

	svc := NewService(NewRepository(db), newTestBoard(db), nil)

	err := svc.Censor(ctx, core.CensorCommand{QuestionID: "q6", Version: "v1", NumFlags: 0})
	assert.IsType(t, core.ErrorNotAuthorised{}, err)

	status, _ := NewRepository(db).QuestionStatus(ctx, "q6")
	assert.Equal(t, core.StatusNotFlagged, status)
}

func TestCensorRejectsAnswerNotInCensorableState(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	q := core.Question{ID: "q7", Version: "v1", Text: "x", CensorshipStatus: core.StatusFlagged}
	assert.NoError(t, db.Create(&q).Error)
	assert.NoError(t, db.Create(&core.Answer{Version: "a1", QuestionID: "q7", CensorshipStatus: core.StatusNotFlagged}).Error)

	svc := NewService(NewRepository(db), newTestBoard(db), nil)

	err := svc.Censor(ctx, core.CensorCommand{QuestionID: "q7", Version: "v1", NumFlags: 0, JustAnswer: []string{"a1"}})
	assert.IsType(t, core.ErrorNotAuthorised{}, err)

	status, _ := NewRepository(db).AnswerStatus(ctx, "a1")
	assert.Equal(t, core.StatusNotFlagged, status)
}

func TestStructureChangedThenFlagged(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	q := core.Question{ID: "q3", Version: "v1", Text: "x", CensorshipStatus: core.StatusStructureChanged}
	assert.NoError(t, db.Create(&q).Error)

	svc := NewService(NewRepository(db), newTestBoard(db), nil)
	assert.NoError(t, svc.Flag(ctx, "q3", nil))

	status, _ := NewRepository(db).QuestionStatus(ctx, "q3")
	assert.Equal(t, core.StatusStructureChangedThenFlagged, status)
}

func TestCensorLogsRedactsHistory(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	boardSvc := newTestBoard(db)
	leaf, err := boardSvc.Append(ctx, `{"text":"the original text"}`, "sig")
	assert.NoError(t, err)

	q := core.Question{ID: "q5", Version: leaf.Hash, Text: "x", CensorshipStatus: core.StatusFlagged}
	assert.NoError(t, db.Create(&q).Error)
	assert.NoError(t, db.Create(&core.QuestionHistoryEntry{QuestionID: "q5", LeafHash: leaf.Hash}).Error)

	reason := "abusive"
	svc := NewService(NewRepository(db), boardSvc, nil)
	assert.NoError(t, svc.Censor(ctx, core.CensorCommand{
		QuestionID: "q5", Version: leaf.Hash, NumFlags: 0, Reason: &reason, CensorLogs: true,
	}))

	node, err := boardSvc.Lookup(ctx, leaf.Hash)
	assert.NoError(t, err)
	assert.NotNil(t, node)
	assert.True(t, node.Redacted)
	assert.Equal(t, `{"redacted":true}`, *node.Payload)
	assert.Equal(t, leaf.Hash, node.Hash)
}
