package handler

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mobilsoft/edire/internal/interfaces/http/dto"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// SystemHandler serves liveness and metrics endpoints
type SystemHandler struct {
	BaseHandler
	checks       map[string]HealthCheck
	metrics      http.Handler
	version      string
	checkTimeout time.Duration
	startTime    time.Time
}

// NewSystemHandler creates a SystemHandler. metrics may be nil.
func NewSystemHandler(version string, checks map[string]HealthCheck, metrics http.Handler) *SystemHandler {
	if checks == nil {
		checks = map[string]HealthCheck{}
	}
	return &SystemHandler{
		checks:       checks,
		metrics:      metrics,
		version:      version,
		checkTimeout: 3 * time.Second,
		startTime:    time.Now(),
	}
}

// RegisterRoutes mounts /healthz and /metrics
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/healthz", h.Health)
	if h.metrics != nil {
		rg.GET("/metrics", gin.WrapH(h.metrics))
	}
}

// Health godoc
// @Summary      Health check
// @Description  Pings every dependency; 503 when any of them fails
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.HealthResponse
// @Failure      503 {object} dto.HealthResponse
// @Router       /healthz [get]
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.checkTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]string, len(h.checks))
	)
	for _, name := range slices.Sorted(maps.Keys(h.checks)) {
		check := h.checks[name]
		wg.Go(func() {
			status := "ok"
			if err := check(ctx); err != nil {
				status = err.Error()
			}
			mu.Lock()
			results[name] = status
			mu.Unlock()
		})
	}
	wg.Wait()

	resp := dto.HealthResponse{
		Status:    "ok",
		Checks:    results,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		CheckedAt: time.Now().UTC(),
	}
	code := http.StatusOK
	for _, status := range results {
		if status != "ok" {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}
	c.JSON(code, resp)
}
