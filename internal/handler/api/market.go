package api

import (
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	"MarketPulse/internal/service/datahub"
	xhttp "MarketPulse/pkg/http"
	xlogger "MarketPulse/pkg/logger"
	"MarketPulse/pkg/util"

	"github.com/labstack/echo/v4"
)

// MarketHandler serves read access to the data hub: bars, depth
// snapshots, and option chains, all behind the hub's cache and
// fail-over.
type MarketHandler struct {
	logger *xlogger.Logger
	hub    *datahub.Hub
}

func NewMarketHandler(logger *xlogger.Logger, hub *datahub.Hub) *MarketHandler {
	return &MarketHandler{logger: logger, hub: hub}
}

func (h *MarketHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1/market")
	g.GET("/bars", h.Bars)
	g.GET("/book", h.Book)
	g.GET("/options", h.Options)
}

func (h *MarketHandler) Bars(c echo.Context) error {
	symbol := c.QueryParam("symbol")
	if symbol == "" {
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
			Code:    "ERR_REQUIRED",
			Field:   "symbol",
			Message: "symbol is required",
		}})
	}
	tf := drepo.NormalizeTimeframe(c.QueryParam("tf"))
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 100)

	bars, err := h.hub.GetBars(c.Request().Context(), symbol, tf, limit)
	if err != nil {
		h.logger.Error("bars fetch failed", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	// An explicit range clips the cached window to aligned boundaries.
	if fromS, toS := c.QueryParam("from"), c.QueryParam("to"); fromS != "" || toS != "" {
		from := xhttp.ParseTimeDefault(fromS, time.Time{})
		to := xhttp.ParseTimeDefault(toS, time.Now())
		from, to = util.AlignFromTo(from, to, string(tf))
		bars = clipBars(bars, from, to)
	}

	return xhttp.ListResponse(c, bars, int64(len(bars)))
}

func (h *MarketHandler) Book(c echo.Context) error {
	symbol := c.QueryParam("symbol")
	if symbol == "" {
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
			Code:    "ERR_REQUIRED",
			Field:   "symbol",
			Message: "symbol is required",
		}})
	}
	depth := xhttp.ParseIntDefault(c.QueryParam("depth"), 20)

	book, err := h.hub.GetOrderBook(c.Request().Context(), symbol, depth)
	if err != nil {
		h.logger.Error("book fetch failed", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if book.Empty() {
		return xhttp.AppErrorResponse(c, xhttp.SourceUnavailableError("no source has depth for "+symbol))
	}
	return xhttp.SuccessResponse(c, book)
}

func (h *MarketHandler) Options(c echo.Context) error {
	symbol := c.QueryParam("symbol")
	if symbol == "" {
		return xhttp.BadRequestResponse(c, []xhttp.ValidationError{{
			Code:    "ERR_REQUIRED",
			Field:   "symbol",
			Message: "symbol is required",
		}})
	}

	chain, err := h.hub.GetOptionChain(c.Request().Context(), symbol)
	if err != nil {
		h.logger.Error("chain fetch failed", xlogger.String("symbol", symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if chain.Empty() {
		return xhttp.AppErrorResponse(c, xhttp.SourceUnavailableError("no source has options for "+symbol))
	}
	return xhttp.SuccessResponse(c, chain)
}

func clipBars(bars []models.Bar, from, to time.Time) []models.Bar {
	out := make([]models.Bar, 0, len(bars))
	for _, b := range bars {
		if !from.IsZero() && b.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && b.Timestamp.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}

var _ xhttp.Handler = (*MarketHandler)(nil)
