package similarity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/right-to-ask/rta/core"
	"github.com/right-to-ask/rta/internal/testutil"
	"github.com/right-to-ask/rta/x/searchcache"
)

func TestSearchRanksByTextOverlapAndVotes(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	questions := []core.Question{
		{ID: "q1", Version: "v1", Text: "when will the transport budget be released", CreatedBy: 1, TotalVotes: 10, NetVotes: 10},
		{ID: "q2", Version: "v1", Text: "what is the capital of France", CreatedBy: 1, TotalVotes: 1, NetVotes: 1},
		{ID: "q3", Version: "v1", Text: "transport budget increase timeline", CreatedBy: 1, TotalVotes: 2, NetVotes: 2},
	}
	for _, q := range questions {
		require.NoError(t, db.Create(&q).Error)
	}

	svc := NewService(NewRepository(db), searchcache.New(0), NewEmptyVocabulary(), []byte("test-secret"))

	result, err := svc.Search(ctx, core.SimilarQuestionsCommand{
		QuestionText: "transport budget",
		Weights:      core.Weights{Text: 1, TotalVotes: 0.1},
		Page:         core.PageRequest{From: 0, To: 10},
	})
	require.NoError(t, err)
	require.Len(t, result.Questions, 3)
	assert.Equal(t, "q1", result.Questions[0].QuestionID)
	assert.Equal(t, "q2", result.Questions[len(result.Questions)-1].QuestionID) // q2 shares no terms, still last by score
	assert.Equal(t, "q2", result.Questions[2].QuestionID)
}

func TestSearchPaginatesWithToken(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		q := core.Question{ID: "page-q" + string(rune('a'+i)), Version: "v1", Text: "roading maintenance funding", CreatedBy: 1}
		require.NoError(t, db.Create(&q).Error)
	}

	svc := NewService(NewRepository(db), searchcache.New(0), NewEmptyVocabulary(), []byte("test-secret"))
	cmd := core.SimilarQuestionsCommand{
		QuestionText: "roading funding",
		Weights:      core.Weights{Text: 1},
		Page:         core.PageRequest{From: 0, To: 2},
	}

	first, err := svc.Search(ctx, cmd)
	require.NoError(t, err)
	assert.Len(t, first.Questions, 2)
	require.NotEmpty(t, first.Token)

	cmd.Page.Token = &first.Token
	second, err := svc.Search(ctx, cmd)
	require.NoError(t, err)
	assert.Len(t, second.Questions, 2)
	assert.NotEqual(t, first.Questions[0].QuestionID, second.Questions[0].QuestionID)
}

func TestSearchRanksByMetadataOverlap(t *testing.T) {
	db, cleanup := testutil.CreateDB()
	defer cleanup()
	ctx := context.Background()

	matching := core.Question{ID: "q-match", Version: "v1", Text: "irrelevant text", CreatedBy: 1}
	other := core.Question{ID: "q-other", Version: "v1", Text: "irrelevant text", CreatedBy: 1}
	require.NoError(t, db.Create(&matching).Error)
	require.NoError(t, db.Create(&other).Error)

	mp := "Jane Smith MP"
	require.NoError(t, db.Create(&core.PersonForQuestion{QuestionID: "q-match", Role: core.RoleAsk, MP: &mp}).Error)

	svc := NewService(NewRepository(db), searchcache.New(0), NewEmptyVocabulary(), []byte("test-secret"))
	result, err := svc.Search(ctx, core.SimilarQuestionsCommand{
		QuestionText:   "irrelevant text",
		MPWhoShouldAsk: &mp,
		Weights:        core.Weights{Metadata: 1},
		Page:           core.PageRequest{From: 0, To: 10},
	})
	require.NoError(t, err)
	require.Len(t, result.Questions, 2)
	assert.Equal(t, "q-match", result.Questions[0].QuestionID)
}

func TestOpenTokenRejectsTamperedSignature(t *testing.T) {
	token := signToken([]byte("secret-a"), snapshot{SnapshotID: "s", Offset: 0, ExpiresAt: time.Now().Add(time.Minute)})
	_, err := openToken([]byte("secret-b"), token)
	assert.Error(t, err)
}

func TestOpenTokenRejectsExpired(t *testing.T) {
	token := signToken([]byte("secret"), snapshot{SnapshotID: "s", Offset: 0, ExpiresAt: time.Now().Add(-time.Minute)})
	_, err := openToken([]byte("secret"), token)
	assert.IsType(t, core.ErrorPageTokenExpired{}, err)
}
