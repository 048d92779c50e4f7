package dto

import (
	"time"

	"github.com/mobilsoft/edire/internal/infrastructure/scheduler"
)

// OperationURI binds the operation name from the path
type OperationURI struct {
	Operation string `uri:"operation" binding:"required,max=64,opname"`
}

// RunOperationRequest carries the single argument of an operation:
// a source id for sync and partner operations, a year for legacy.cleanup_drafts
type RunOperationRequest struct {
	Arg string `json:"arg" form:"arg" binding:"omitempty,max=128,printascii"`
}

// RunOperationResponse reports the outcome counters of one operation run
type RunOperationResponse struct {
	Operation  string         `json:"operation"`
	Arg        string         `json:"arg,omitempty"`
	Counters   map[string]int `json:"counters"`
	DurationMS int64          `json:"duration_ms"`
}

// OperationCatalogResponse lists what can be run and against which sources
type OperationCatalogResponse struct {
	Operations []string `json:"operations"`
	Sources    []string `json:"sources"`
}

// RunHistoryQuery filters the scheduler run history
type RunHistoryQuery struct {
	Source string `form:"source" binding:"omitempty,max=128"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// RunHistoryResponse lists finished scheduler jobs, newest first
type RunHistoryResponse struct {
	Runs []*scheduler.Job `json:"runs"`
}

// HealthResponse reports the state of each dependency
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Version   string            `json:"version,omitempty"`
	Uptime    string            `json:"uptime"`
	CheckedAt time.Time         `json:"checked_at"`
}
