package board

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/right-to-ask/rta/core"
)

type Handler interface {
	ParentlessUnpublished(c echo.Context) error
	Lookup(c echo.Context) error
}

type handler struct {
	service core.BoardService
}

func NewHandler(service core.BoardService) Handler {
	return &handler{service}
}

func (h *handler) ParentlessUnpublished(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Board.Handler.ParentlessUnpublished")
	defer span.End()

	hashes, err := h.service.ParentlessUnpublished(ctx)
	if err != nil {
		span.RecordError(err)
		status, message := core.MapError(err)
		return c.JSON(status, echo.Map{"error": message})
	}
	return c.JSON(http.StatusOK, echo.Map{"content": hashes})
}

func (h *handler) Lookup(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Board.Handler.Lookup")
	defer span.End()

	node, err := h.service.Lookup(ctx, c.Param("hash"))
	if err != nil {
		span.RecordError(err)
		status, message := core.MapError(err)
		return c.JSON(status, echo.Map{"error": message})
	}
	if node == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no such node"})
	}
	return c.JSON(http.StatusOK, echo.Map{"content": node})
}
