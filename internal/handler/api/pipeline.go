package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"BarFeed/internal/domain/models"
	"BarFeed/internal/service/ratelimit"
	"BarFeed/internal/usecase"
	xhttp "BarFeed/pkg/http"
	xlogger "BarFeed/pkg/logger"
)

// Meta describes the running service on /api/meta.
type Meta struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Symbol   string `json:"symbol"`
	Primary  string `json:"provider_primary"`
	Fallback string `json:"provider_fallback"`
	Storage  string `json:"storage"`
}

// PipelineHandler serves health, status and series reads.
type PipelineHandler struct {
	logger  *xlogger.Logger
	status  *usecase.StatusUseCase
	candles *usecase.CandlesUseCase
	meta    Meta
	rl      *ratelimit.Limiter
}

func NewPipelineHandler(
	logger *xlogger.Logger,
	status *usecase.StatusUseCase,
	candles *usecase.CandlesUseCase,
	meta Meta,
	rl *ratelimit.Limiter,
) *PipelineHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &PipelineHandler{logger: logger, status: status, candles: candles, meta: meta, rl: rl}
}

func (h *PipelineHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/meta", h.Meta)
	g.GET("/pipeline/status", h.Status)
	g.GET("/ohlc1m", h.Ohlc1m, h.limit("ohlc1m"))
	g.GET("/quote/latest", h.LatestQuote, h.limit("quote"))
}

// limit rejects callers above the per-client request rate.
func (h *PipelineHandler) limit(endpoint string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if h.rl != nil && !h.rl.Allow(c.RealIP()+":"+endpoint) {
				h.logger.Warn("rate limited",
					xlogger.String("endpoint", endpoint),
					xlogger.String("remote", c.RealIP()),
				)
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("rate limited"))
			}
			return next(c)
		}
	}
}

func (h *PipelineHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (h *PipelineHandler) Meta(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.meta)
}

func (h *PipelineHandler) Status(c echo.Context) error {
	res, err := h.status.Status(c.Request().Context())
	if err != nil {
		h.logger.Error("pipeline status error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("pipeline status unavailable").WithError(err))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, res)
}

func (h *PipelineHandler) Ohlc1m(c echo.Context) error {
	req := &models.Ohlc1mRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.candles.GetRecent(c.Request().Context(), req.Limit)
	if err != nil {
		h.logger.Error("ohlc1m usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("bars unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PipelineHandler) LatestQuote(c echo.Context) error {
	res, err := h.candles.LatestQuote(c.Request().Context())
	if err != nil {
		h.logger.Error("latest quote usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("quote unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, res)
}
