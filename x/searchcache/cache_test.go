package searchcache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/right-to-ask/rta/core"
)

func TestPutGetInvalidate(t *testing.T) {
	c := New(0)
	cmd := core.SimilarQuestionsCommand{QuestionText: "budget"}
	key := Key("alice", cmd)

	_, ok := c.Get(key)
	assert.False(t, ok)

	result := core.PageResult{Token: "tok", Questions: []core.ScoredQuestion{{QuestionID: "q1", Score: 0.9}}}
	c.Put(key, result)

	got, ok := c.Get(key)
	assert.True(t, ok)
	assert.Equal(t, result.Token, got.Token)

	c.Invalidate()
	_, ok = c.Get(key)
	assert.False(t, ok)
}

func TestKeyDependsOnRequesterAndQuery(t *testing.T) {
	cmd := core.SimilarQuestionsCommand{QuestionText: "budget"}
	assert.NotEqual(t, Key("alice", cmd), Key("bob", cmd))

	other := core.SimilarQuestionsCommand{QuestionText: "tax"}
	assert.NotEqual(t, Key("alice", cmd), Key("alice", other))
}
