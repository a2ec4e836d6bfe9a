package dispatch

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/right-to-ask/rta/core"
)

// IdentifyUser parses the envelope once, stashes it on the echo
// context under RequesterUserCtxKey, and tags the uid for
// logging/tracing before Handle does the actual signature check.
// Route handlers read the parsed envelope back out rather than
// re-binding the request body, since the body has already been
// consumed here. A body that does not bind is rejected here with 400;
// an envelope that binds but is incomplete or badly signed is left
// for Handle to reject with a typed error.
func (s *service) IdentifyUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Dispatch.Middleware.IdentifyUser")
		defer span.End()

		var envelope core.SignedEnvelope
		if err := c.Bind(&envelope); err != nil {
			span.RecordError(err)
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request body"})
		}

		c.Set(core.RequesterUserCtxKey, envelope)
		c.Set(core.RequesterUIDCtxKey, envelope.User)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}
