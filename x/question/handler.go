package question

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/right-to-ask/rta/core"
)

type Handler interface {
	Get(c echo.Context) error
	GetHistory(c echo.Context) error
	List(c echo.Context) error
	ListByCreator(c echo.Context) error
	ListFollowups(c echo.Context) error
}

type handler struct {
	service core.QuestionService
}

func NewHandler(service core.QuestionService) Handler {
	return &handler{service}
}

func (h *handler) Get(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Question.Handler.Get")
	defer span.End()

	q, err := h.service.Get(ctx, c.Param("id"))
	if err != nil {
		span.RecordError(err)
		status, message := core.MapError(err)
		return c.JSON(status, echo.Map{"error": message})
	}
	return c.JSON(http.StatusOK, echo.Map{"content": q})
}

func (h *handler) GetHistory(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Question.Handler.GetHistory")
	defer span.End()

	history, err := h.service.GetHistory(ctx, c.Param("id"))
	if err != nil {
		span.RecordError(err)
		status, message := core.MapError(err)
		return c.JSON(status, echo.Map{"error": message})
	}
	return c.JSON(http.StatusOK, echo.Map{"content": history})
}

func (h *handler) List(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Question.Handler.List")
	defer span.End()

	questions, err := h.service.List(ctx)
	if err != nil {
		span.RecordError(err)
		status, message := core.MapError(err)
		return c.JSON(status, echo.Map{"error": message})
	}
	return c.JSON(http.StatusOK, echo.Map{"content": questions})
}

// ListByCreator backs get_questions_created_by_user?uid=.
func (h *handler) ListByCreator(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Question.Handler.ListByCreator")
	defer span.End()

	questions, err := h.service.ListByCreator(ctx, c.QueryParam("uid"))
	if err != nil {
		span.RecordError(err)
		status, message := core.MapError(err)
		return c.JSON(status, echo.Map{"error": message})
	}
	return c.JSON(http.StatusOK, echo.Map{"content": questions})
}

func (h *handler) ListFollowups(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Question.Handler.ListFollowups")
	defer span.End()

	questions, err := h.service.ListFollowups(ctx, c.Param("id"))
	if err != nil {
		span.RecordError(err)
		status, message := core.MapError(err)
		return c.JSON(status, echo.Map{"error": message})
	}
	return c.JSON(http.StatusOK, echo.Map{"content": questions})
}
