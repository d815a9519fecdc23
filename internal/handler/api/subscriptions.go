package api

import (
	"errors"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/service/dispatch"
	xhttp "MarketPulse/pkg/http"
	xlogger "MarketPulse/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SubscriptionsHandler exposes CRUD over the dispatch registry.
type SubscriptionsHandler struct {
	logger   *xlogger.Logger
	registry *dispatch.Registry
}

func NewSubscriptionsHandler(logger *xlogger.Logger, registry *dispatch.Registry) *SubscriptionsHandler {
	return &SubscriptionsHandler{logger: logger, registry: registry}
}

func (h *SubscriptionsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/subscriptions")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

func (h *SubscriptionsHandler) List(c echo.Context) error {
	subs := h.registry.List()
	return xhttp.ListResponse(c, subs, int64(len(subs)))
}

func (h *SubscriptionsHandler) Get(c echo.Context) error {
	s, ok := h.registry.Get(c.Param("id"))
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("subscription %s not found", c.Param("id")))
	}
	return xhttp.SuccessResponse(c, s)
}

func (h *SubscriptionsHandler) Create(c echo.Context) error {
	req := &models.CreateSubscriptionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	sub := &models.Subscription{
		Type: models.SubscriberType(req.Type),
		Name: req.Name,
		Filter: models.SubscriptionFilter{
			MinPriority: models.EventPriority(req.MinPriority),
			Categories:  toCategories(req.Categories),
			Symbols:     req.Symbols,
			Sources:     req.Sources,
		},
		Destination: req.Destination,
		Active:      true,
	}
	if err := h.registry.Add(sub); err != nil {
		if errors.Is(err, dispatch.ErrInvalidSubscription) {
			return xhttp.AppErrorResponse(c, xhttp.InvalidSubscriptionError(err.Error()))
		}
		h.logger.Error("subscription create failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, sub)
}

func (h *SubscriptionsHandler) Update(c echo.Context) error {
	req := &models.UpdateSubscriptionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	err := h.registry.Update(c.Param("id"), func(s *models.Subscription) {
		if req.Name != "" {
			s.Name = req.Name
		}
		if req.MinPriority > 0 {
			s.Filter.MinPriority = models.EventPriority(req.MinPriority)
		}
		if req.Categories != nil {
			s.Filter.Categories = toCategories(req.Categories)
		}
		if req.Symbols != nil {
			s.Filter.Symbols = req.Symbols
		}
		if req.Sources != nil {
			s.Filter.Sources = req.Sources
		}
		if req.Destination != nil {
			s.Destination = *req.Destination
		}
		if req.Active != nil {
			s.Active = *req.Active
		}
	})
	switch {
	case errors.Is(err, dispatch.ErrSubscriptionNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("subscription %s not found", c.Param("id")))
	case errors.Is(err, dispatch.ErrInvalidSubscription):
		return xhttp.AppErrorResponse(c, xhttp.InvalidSubscriptionError(err.Error()))
	case err != nil:
		h.logger.Error("subscription update failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	s, _ := h.registry.Get(c.Param("id"))
	return xhttp.SuccessResponse(c, s)
}

func (h *SubscriptionsHandler) Delete(c echo.Context) error {
	if err := h.registry.Remove(c.Param("id")); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("subscription %s not found", c.Param("id")))
	}
	return xhttp.NoContentResponse(c)
}

func toCategories(ss []string) []models.EventCategory {
	if ss == nil {
		return nil
	}
	out := make([]models.EventCategory, 0, len(ss))
	for _, s := range ss {
		out = append(out, models.EventCategory(s))
	}
	return out
}

var _ xhttp.Handler = (*SubscriptionsHandler)(nil)
