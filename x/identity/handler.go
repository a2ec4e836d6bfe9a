package identity

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/right-to-ask/rta/core"
)

type Handler interface {
	GetUser(c echo.Context) error
	GetUserList(c echo.Context) error
	SearchUser(c echo.Context) error
}

type handler struct {
	service core.IdentityService
}

func NewHandler(service core.IdentityService) Handler {
	return &handler{service}
}

// GetUser backs get_user?uid=.
func (h *handler) GetUser(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Identity.Handler.GetUser")
	defer span.End()

	user, err := h.service.Get(ctx, c.QueryParam("uid"))
	if err != nil {
		span.RecordError(err)
		status, message := core.MapError(err)
		return c.JSON(status, echo.Map{"error": message})
	}
	return c.JSON(http.StatusOK, echo.Map{"content": user})
}

func (h *handler) GetUserList(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Identity.Handler.GetUserList")
	defer span.End()

	users, err := h.service.GetUserList(ctx)
	if err != nil {
		span.RecordError(err)
		status, message := core.MapError(err)
		return c.JSON(status, echo.Map{"error": message})
	}
	return c.JSON(http.StatusOK, echo.Map{"content": users})
}

// SearchUser takes q and a comma-separated badge list as query params,
// e.g. /users/search?q=jones&badges=MP,MPStaff.
func (h *handler) SearchUser(c echo.Context) error {
	ctx, span := tracer.Start(c.Request().Context(), "Identity.Handler.SearchUser")
	defer span.End()

	var wantBadges []core.BadgeKind
	if raw := c.QueryParam("badges"); raw != "" {
		for _, kind := range strings.Split(raw, ",") {
			wantBadges = append(wantBadges, core.BadgeKind(kind))
		}
	}

	users, err := h.service.SearchUser(ctx, c.QueryParam("q"), wantBadges)
	if err != nil {
		span.RecordError(err)
		status, message := core.MapError(err)
		return c.JSON(status, echo.Map{"error": message})
	}
	return c.JSON(http.StatusOK, echo.Map{"content": users})
}
