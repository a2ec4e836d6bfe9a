package censorship

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/right-to-ask/rta/core"
)

type Handler interface {
	GetReportedQuestions(c echo.Context) error
	GetReasonsReported(c echo.Context) error
}

type handler struct {
	service core.CensorshipService
}

func NewHandler(service core.CensorshipService) Handler {
	return &handler{service}
}

func (h *handler) GetReportedQuestions(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Censorship.Handler.GetReportedQuestions")
	defer span.End()

	ids, err := h.service.GetReportedQuestions(ctx)
	if err != nil {
		span.RecordError(err)
		status, message := core.MapError(err)
		return c.JSON(status, echo.Map{"error": message})
	}
	return c.JSON(http.StatusOK, echo.Map{"content": ids})
}

func (h *handler) GetReasonsReported(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Censorship.Handler.GetReasonsReported")
	defer span.End()

	reasons, err := h.service.GetReasonsReported(ctx, c.Param("id"))
	if err != nil {
		span.RecordError(err)
		status, message := core.MapError(err)
		return c.JSON(status, echo.Map{"error": message})
	}
	return c.JSON(http.StatusOK, echo.Map{"content": reasons})
}
