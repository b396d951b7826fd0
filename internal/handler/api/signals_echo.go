package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	models "SignalScope/internal/domain/models"
	"SignalScope/internal/services/strategy"
	"SignalScope/internal/usecase"
	xhttp "SignalScope/pkg/http"
	xlogger "SignalScope/pkg/logger"

	"github.com/labstack/echo/v4"
)

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// SignalsEchoHandler serves the engine API over Echo.
type SignalsEchoHandler struct {
	logger  *xlogger.Logger
	analyze *usecase.AnalyzeUseCase
	scanner *usecase.Scanner
	hub     *Hub
	jobs    *usecase.ScanJobs
	checks  map[string]HealthCheck
}

func NewSignalsEchoHandler(logger *xlogger.Logger, analyze *usecase.AnalyzeUseCase, scanner *usecase.Scanner, hub *Hub, checks map[string]HealthCheck) *SignalsEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &SignalsEchoHandler{logger: logger, analyze: analyze, scanner: scanner, hub: hub, checks: checks}
}

// SetScanJobs enables the asynchronous scan endpoints. Call it before the
// routes are registered.
func (h *SignalsEchoHandler) SetScanJobs(j *usecase.ScanJobs) { h.jobs = j }

func (h *SignalsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.POST("/analyze", h.Analyze)
	g.POST("/scan", h.Scan)
	g.GET("/signals/latest", h.Latest)
	if h.jobs != nil {
		g.POST("/scan/jobs", h.SubmitScanJob)
		g.GET("/scan/jobs/:id", h.ScanJobStatus)
	}
	e.GET("/healthz", h.Health)
	if h.hub != nil {
		e.GET("/ws/signals", h.hub.ServeWS)
	}
}

func (h *SignalsEchoHandler) Analyze(c echo.Context) error {
	req := &models.AnalyzeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.analyze.Analyze(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "analyze", err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *SignalsEchoHandler) Scan(c echo.Context) error {
	req := &models.ScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	report, err := h.scanner.Scan(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "scan", err)
	}
	return xhttp.SuccessResponse(c, report)
}

// SubmitScanJob queues a scan and answers 202 with the job record.
func (h *SignalsEchoHandler) SubmitScanJob(c echo.Context) error {
	req := &models.ScanRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	st, err := h.jobs.Submit(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "submit scan job", err)
	}
	return xhttp.DataResponse(c, http.StatusAccepted, st)
}

func (h *SignalsEchoHandler) ScanJobStatus(c echo.Context) error {
	st, err := h.jobs.Status(c.Request().Context(), c.Param("id"))
	if errors.Is(err, usecase.ErrJobNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("scan job %s not found", c.Param("id")))
	}
	if err != nil {
		return h.fail(c, "scan job status", err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *SignalsEchoHandler) Latest(c echo.Context) error {
	report := h.scanner.Latest()
	if report == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("no scan has completed yet"))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	return xhttp.SuccessResponse(c, report)
}

type healthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	WSClients int               `json:"ws_clients"`
}

// Health reports 503 when any dependency check fails.
func (h *SignalsEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	res := healthResponse{Status: "ok", Checks: map[string]string{}}
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			res.Status = "degraded"
			res.Checks[name] = err.Error()
			continue
		}
		res.Checks[name] = "ok"
	}
	if h.hub != nil {
		res.WSClients = h.hub.Clients()
	}

	status := http.StatusOK
	if res.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	return xhttp.DataResponse(c, status, res)
}

func (h *SignalsEchoHandler) fail(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, strategy.ErrUnknownStrategy):
		// valid name, but disabled in this deployment
		return xhttp.AppErrorResponse(c, xhttp.UnprocessableError(err.Error()).WithError(err))
	case usecase.IsClientError(err):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()).WithError(err))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("request cancelled").WithError(err))
	}
	h.logger.Error(op+" usecase error", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}
