package dispatch

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/right-to-ask/rta/core"
)

func TestIdentifyUserStashesEnvelope(t *testing.T) {
	e := echo.New()
	body := `{"message":"{}","user":"alice","signature":"c2ln"}`
	req := httptest.NewRequest("POST", "/commit/vote", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	s := &service{}
	handlerCalled := false
	next := func(c echo.Context) error {
		handlerCalled = true
		envelope, ok := c.Get(core.RequesterUserCtxKey).(core.SignedEnvelope)
		assert.True(t, ok)
		assert.Equal(t, "alice", envelope.User)
		return nil
	}

	err := s.IdentifyUser(next)(c)
	assert.NoError(t, err)
	assert.True(t, handlerCalled)
	assert.Equal(t, "alice", c.Get(core.RequesterUIDCtxKey))
}
