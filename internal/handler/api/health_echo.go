package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	xhttp "CandleSync/pkg/http"

	"github.com/labstack/echo/v4"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// HealthEchoHandler serves liveness and readiness probes.
type HealthEchoHandler struct {
	checks  map[string]HealthCheck
	timeout time.Duration
}

func NewHealthEchoHandler(timeout time.Duration) *HealthEchoHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &HealthEchoHandler{checks: make(map[string]HealthCheck), timeout: timeout}
}

// AddCheck registers a readiness check. A nil check is ignored.
func (h *HealthEchoHandler) AddCheck(name string, check HealthCheck) *HealthEchoHandler {
	if check != nil {
		h.checks[name] = check
	}
	return h
}

func (h *HealthEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Live)
	e.GET("/readyz", h.Ready)
}

func (h *HealthEchoHandler) Live(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// Ready runs every check under one timeout. Failing checks are listed by name.
func (h *HealthEchoHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			result[name] = err.Error()
			healthy = false
			continue
		}
		result[name] = "ok"
	}

	if !healthy {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, result)
	}
	return xhttp.SuccessResponse(c, result)
}
