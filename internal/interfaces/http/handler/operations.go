package handler

import (
	"context"
	"errors"
	"io"
	"maps"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/infrastructure/logger"
	"github.com/mobilsoft/edire/internal/infrastructure/scheduler"
	"github.com/mobilsoft/edire/internal/interfaces/http/dto"
	"github.com/mobilsoft/edire/internal/interfaces/http/middleware"
)

// OperationRunner runs named operations
type OperationRunner interface {
	Run(ctx context.Context, operation, arg string) (integration.Counters, error)
	Names() []string
}

// SourceLister lists the configured source ids
type SourceLister interface {
	SourceIDs() []string
}

// RunHistory exposes finished scheduler jobs
type RunHistory interface {
	History(limit int) []*scheduler.Job
	HistoryBySource(sourceID string, limit int) []*scheduler.Job
}

const defaultHistoryLimit = 50

// OperationsHandler triggers operations on demand
type OperationsHandler struct {
	BaseHandler
	runner  OperationRunner
	sources SourceLister
	history RunHistory
	timeout time.Duration
}

// NewOperationsHandler creates an OperationsHandler. history may be nil when
// the scheduler is disabled; timeout <= 0 leaves runs bounded only by the
// request context.
func NewOperationsHandler(runner OperationRunner, sources SourceLister, history RunHistory, timeout time.Duration) *OperationsHandler {
	return &OperationsHandler{
		runner:  runner,
		sources: sources,
		history: history,
		timeout: timeout,
	}
}

// RegisterRoutes mounts the /ops routes
func (h *OperationsHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.ListOperations)
	rg.GET("/runs", h.ListRuns)
	rg.POST("/:operation", h.RunOperation)
}

// ListOperations godoc
// @Summary      List operations
// @Description  Returns the operation names and configured source ids
// @Tags         ops
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} dto.Response{data=dto.OperationCatalogResponse}
// @Router       /ops [get]
func (h *OperationsHandler) ListOperations(c *gin.Context) {
	resp := dto.OperationCatalogResponse{Operations: h.runner.Names(), Sources: []string{}}
	if h.sources != nil {
		resp.Sources = h.sources.SourceIDs()
	}
	h.Success(c, resp)
}

// RunOperation godoc
// @Summary      Run an operation
// @Description  Runs one operation synchronously and returns its outcome counters.
// @Description  The argument is a source id, or a year for legacy.cleanup_drafts.
// @Tags         ops
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        operation path     string                   true  "Operation name"
// @Param        request   body     dto.RunOperationRequest  false "Operation argument"
// @Success      200 {object} dto.Response{data=dto.RunOperationResponse}
// @Failure      400 {object} dto.Response
// @Failure      404 {object} dto.Response
// @Failure      409 {object} dto.Response
// @Failure      504 {object} dto.Response
// @Router       /ops/{operation} [post]
func (h *OperationsHandler) RunOperation(c *gin.Context) {
	var uri dto.OperationURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	var req dto.RunOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.HandleValidationError(c, err)
		return
	}
	if req.Arg == "" {
		req.Arg = c.Query("arg")
		if err := binding.Validator.ValidateStruct(&req); err != nil {
			middleware.HandleValidationError(c, err)
			return
		}
	}

	ctx := c.Request.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	log := logger.FromContext(ctx).With(zap.String("operation", uri.Operation), zap.String("arg", req.Arg))
	log.Info("Running operation")

	start := time.Now()
	counters, err := h.runner.Run(ctx, uri.Operation, req.Arg)
	elapsed := time.Since(start)
	if err != nil {
		log.Warn("Operation failed", zap.Error(err), zap.Duration("duration", elapsed))
		h.HandleError(c, err)
		return
	}

	log.Info("Operation finished", zap.Any("counters", counters), zap.Duration("duration", elapsed))
	resp := dto.RunOperationResponse{
		Operation:  uri.Operation,
		Arg:        req.Arg,
		Counters:   map[string]int{},
		DurationMS: elapsed.Milliseconds(),
	}
	maps.Copy(resp.Counters, counters)
	h.Success(c, resp)
}

// ListRuns godoc
// @Summary      List scheduler runs
// @Description  Returns finished scheduler jobs, newest first
// @Tags         ops
// @Produce      json
// @Security     BearerAuth
// @Param        source query string false "Source id"
// @Param        limit  query int    false "Maximum number of runs"
// @Success      200 {object} dto.Response{data=dto.RunHistoryResponse}
// @Failure      400 {object} dto.Response
// @Router       /ops/runs [get]
func (h *OperationsHandler) ListRuns(c *gin.Context) {
	var query dto.RunHistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	if query.Limit == 0 {
		query.Limit = defaultHistoryLimit
	}

	runs := []*scheduler.Job{}
	if h.history != nil {
		if query.Source != "" {
			runs = h.history.HistoryBySource(query.Source, query.Limit)
		} else {
			runs = h.history.History(query.Limit)
		}
	}
	h.Success(c, dto.RunHistoryResponse{Runs: runs})
}
