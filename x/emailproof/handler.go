package emailproof

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/right-to-ask/rta/core"
)

type Handler interface {
	GetDoNotEmailList(c echo.Context) error
	GetTimesSent(c echo.Context) error
}

type handler struct {
	service core.EmailProofService
}

func NewHandler(service core.EmailProofService) Handler {
	return &handler{service}
}

func (h *handler) GetDoNotEmailList(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "EmailProof.Handler.GetDoNotEmailList")
	defer span.End()

	rows, err := h.service.GetDoNotEmailList(ctx)
	if err != nil {
		span.RecordError(err)
		status, message := core.MapError(err)
		return c.JSON(status, echo.Map{"error": message})
	}
	return c.JSON(http.StatusOK, echo.Map{"content": rows})
}

func (h *handler) GetTimesSent(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "EmailProof.Handler.GetTimesSent")
	defer span.End()

	ts := core.Timescale(c.QueryParam("timescale"))
	rows, err := h.service.GetTimesSent(ctx, ts)
	if err != nil {
		span.RecordError(err)
		status, message := core.MapError(err)
		return c.JSON(status, echo.Map{"error": message})
	}
	return c.JSON(http.StatusOK, echo.Map{"content": rows})
}
