package dispatch

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/right-to-ask/rta/core"
)

type Handler interface {
	Commit(c echo.Context) error
}

type handler struct {
	service core.DispatchService
}

func NewHandler(service core.DispatchService) Handler {
	return &handler{service}
}

// Commit is the single write entry point every command-kind route
// (new_question, vote, censor_question, ...) shares; the kind comes
// off the path, the envelope off the context IdentifyUser already
// parsed.
func (h *handler) Commit(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Dispatch.Handler.Commit")
	defer span.End()

	kind := c.Param("kind")

	envelope, ok := c.Get(core.RequesterUserCtxKey).(core.SignedEnvelope)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed request body"})
	}

	result, err := h.service.Handle(ctx, kind, envelope)
	if err != nil {
		span.RecordError(err)
		status, message := mapError(err)
		return c.JSON(status, echo.Map{"error": message})
	}

	return c.JSON(http.StatusOK, echo.Map{"content": result})
}
