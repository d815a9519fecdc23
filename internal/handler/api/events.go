package api

import (
	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/repository"
	xhttp "MarketPulse/pkg/http"
	xlogger "MarketPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// EventsHandler serves read access to the live event pool.
type EventsHandler struct {
	logger *xlogger.Logger
	pool   *repository.Pool
}

func NewEventsHandler(logger *xlogger.Logger, pool *repository.Pool) *EventsHandler {
	return &EventsHandler{logger: logger, pool: pool}
}

func (h *EventsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/events", h.List)
	g.GET("/events/:id", h.Get)
}

// List filters by at most one index; category wins over symbol over
// priority when several are given.
func (h *EventsHandler) List(c echo.Context) error {
	req := &models.EventsQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var events []*models.AIEvent
	switch {
	case req.Category != "":
		cat := models.EventCategory(req.Category)
		if !cat.Valid() {
			return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
				Code:    "ERR_UNKNOWN_CATEGORY",
				Field:   "category",
				Message: "unknown category " + req.Category,
			}})
		}
		events = h.pool.ByCategory(cat, req.Limit)
	case req.Symbol != "":
		events = h.pool.BySymbol(req.Symbol, req.Limit)
	case req.Priority > 0:
		events = h.pool.ByPriority(models.EventPriority(req.Priority), req.Limit)
	default:
		events = h.pool.Recent(req.Limit)
	}

	return xhttp.ListResponse(c, events, int64(len(events)))
}

func (h *EventsHandler) Get(c echo.Context) error {
	e, ok := h.pool.Get(c.Param("id"))
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("event %s not found", c.Param("id")))
	}
	return xhttp.SuccessResponse(c, e)
}

var _ xhttp.Handler = (*EventsHandler)(nil)
