package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"CandleSync/internal/domain/models"
	"CandleSync/internal/service/ratelimit"
	"CandleSync/internal/usecase"
	xhttp "CandleSync/pkg/http"
	xlogger "CandleSync/pkg/logger"
	"CandleSync/pkg/util"

	"github.com/labstack/echo/v4"
)

// SyncService is the orchestrator surface driven by the control API.
type SyncService interface {
	Snapshot() models.Snapshot
	SetInstrument(instrument string) error
	SelectTimeframe(tf models.Timeframe) error
	LoadStatus(ctx context.Context) error
	LoadWeeks(ctx context.Context, filter models.WeekFilter) error
	SelectWeek(key string) error
	SelectRange(start, end time.Time) error
	RequestDownload(ctx context.Context, tfs ...models.Timeframe) (*models.DownloadResult, error)
	RequestPreview(ctx context.Context, window *models.TimeWindow) error
	OnViewportChanged(ctx context.Context, r models.VisibleRange) (bool, error)
}

// SyncEchoHandler exposes the sync engine as a local JSON API.
type SyncEchoHandler struct {
	logger  *xlogger.Logger
	sync    SyncService
	limiter *ratelimit.Limiter

	downloadBurst float64
	downloadRate  float64
}

type SyncHandlerOption func(*SyncEchoHandler)

// WithDownloadRate limits download requests per client address.
func WithDownloadRate(burst, perSecond float64) SyncHandlerOption {
	return func(h *SyncEchoHandler) {
		if burst >= 1 {
			h.downloadBurst = burst
			h.downloadRate = perSecond
		}
	}
}

func NewSyncEchoHandler(logger *xlogger.Logger, sync SyncService, limiter *ratelimit.Limiter, opts ...SyncHandlerOption) *SyncEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	if limiter == nil {
		limiter = ratelimit.New()
	}
	h := &SyncEchoHandler{
		logger:        logger,
		sync:          sync,
		limiter:       limiter,
		downloadBurst: 3,
		downloadRate:  0.2,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *SyncEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/state", h.State)
	g.GET("/status", h.Status)
	g.POST("/status/refresh", h.RefreshStatus)
	g.PUT("/instrument", h.SetInstrument)
	g.PUT("/timeframe", h.SetTimeframe)
	g.GET("/weeks", h.Weeks)
	g.POST("/selection/week", h.SelectWeek)
	g.POST("/selection/range", h.SelectRange)
	g.POST("/download", h.Download)
	g.POST("/preview", h.Preview)
	g.POST("/viewport", h.Viewport)
}

func (h *SyncEchoHandler) State(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.sync.Snapshot())
}

func (h *SyncEchoHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.sync.Snapshot().Status)
}

func (h *SyncEchoHandler) RefreshStatus(c echo.Context) error {
	if err := h.sync.LoadStatus(c.Request().Context()); err != nil {
		return h.syncError(c, "refresh status", err)
	}
	return xhttp.SuccessResponse(c, h.sync.Snapshot().Status)
}

func (h *SyncEchoHandler) SetInstrument(c echo.Context) error {
	req := &models.InstrumentRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.sync.SetInstrument(req.Instrument); err != nil {
		return h.syncError(c, "set instrument", err)
	}
	if err := h.sync.LoadStatus(c.Request().Context()); err != nil {
		return h.syncError(c, "set instrument", err)
	}
	return xhttp.SuccessResponse(c, h.sync.Snapshot())
}

func (h *SyncEchoHandler) SetTimeframe(c echo.Context) error {
	req := &models.TimeframeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.sync.SelectTimeframe(models.Timeframe(req.Timeframe)); err != nil {
		return h.syncError(c, "set timeframe", err)
	}
	return xhttp.SuccessResponse(c, h.sync.Snapshot())
}

func (h *SyncEchoHandler) Weeks(c echo.Context) error {
	req := &models.WeeksRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var filter models.WeekFilter
	var aerr *xhttp.AppError
	if filter.Start, aerr = parseOptionalDate("start", req.Start); aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	if filter.End, aerr = parseOptionalDate("end", req.End); aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}

	if err := h.sync.LoadWeeks(c.Request().Context(), filter); err != nil {
		return h.syncError(c, "load weeks", err)
	}
	return xhttp.SuccessResponse(c, h.sync.Snapshot().Weeks)
}

func (h *SyncEchoHandler) SelectWeek(c echo.Context) error {
	req := &models.SelectWeekRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.sync.SelectWeek(req.Key); err != nil {
		return h.syncError(c, "select week", err)
	}
	return xhttp.SuccessResponse(c, h.sync.Snapshot())
}

func (h *SyncEchoHandler) SelectRange(c echo.Context) error {
	req := &models.SelectRangeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	start, aerr := parseOptionalDate("start", req.Start)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	end, aerr := parseOptionalDate("end", req.End)
	if aerr != nil {
		return xhttp.AppErrorResponse(c, aerr)
	}
	if err := h.sync.SelectRange(*start, *end); err != nil {
		return h.syncError(c, "select range", err)
	}
	return xhttp.SuccessResponse(c, h.sync.Snapshot())
}

func (h *SyncEchoHandler) Download(c echo.Context) error {
	req := &models.DownloadBody{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.limiter.Allow("download:"+c.RealIP(), h.downloadBurst, h.downloadRate) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many download requests, try again later"))
	}

	tfs := make([]models.Timeframe, 0, len(req.Timeframes))
	for _, s := range req.Timeframes {
		tfs = append(tfs, models.Timeframe(s))
	}
	res, err := h.sync.RequestDownload(c.Request().Context(), tfs...)
	if err != nil {
		return h.syncError(c, "download", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SyncEchoHandler) Preview(c echo.Context) error {
	req := &models.PreviewRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var window *models.TimeWindow
	if req.Start != "" || req.End != "" {
		start, ok1 := util.ParseTime(req.Start)
		end, ok2 := util.ParseTime(req.End)
		if !ok1 || !ok2 {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestError("preview needs both start and end as dates"))
		}
		window = &models.TimeWindow{Start: start, End: end}
	}

	if err := h.sync.RequestPreview(c.Request().Context(), window); err != nil {
		return h.syncError(c, "preview", err)
	}
	snap := h.sync.Snapshot()
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"candles":    snap.Candles,
		"data_range": snap.DataRange,
	})
}

func (h *SyncEchoHandler) Viewport(c echo.Context) error {
	req := &models.ViewportRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	triggered, err := h.sync.OnViewportChanged(c.Request().Context(), models.VisibleRange{From: req.From, To: req.To})
	if err != nil {
		return h.syncError(c, "viewport", err)
	}
	return xhttp.SuccessResponse(c, models.ViewportResponse{Triggered: triggered})
}

func parseOptionalDate(field, raw string) (*time.Time, *xhttp.AppError) {
	if raw == "" {
		return nil, nil
	}
	t, ok := util.ParseTime(raw)
	if !ok {
		return nil, xhttp.NewAppError("ERR_DATETIME", field, "invalid date "+raw, http.StatusBadRequest)
	}
	return &t, nil
}

// syncError maps orchestrator failures onto API errors. Remote failures are
// reported as bad gateway with the server's message.
func (h *SyncEchoHandler) syncError(c echo.Context, op string, err error) error {
	var se *usecase.SyncError
	if !errors.As(err, &se) {
		h.logger.Error(op+" failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("unexpected failure").WithError(err))
	}
	if se.Kind == usecase.KindValidation {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(se.Message))
	}
	h.logger.Warn(op+" failed", xlogger.String("kind", string(se.Kind)), xlogger.Error(err))
	code := "ERR_" + strings.ToUpper(string(se.Kind))
	return xhttp.AppErrorResponse(c, xhttp.BadGatewayError(code, se.Message).WithError(err))
}
