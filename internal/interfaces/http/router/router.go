// Package router assembles the admin HTTP surface.
package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mobilsoft/edire/internal/infrastructure/logger"
	"github.com/mobilsoft/edire/internal/interfaces/http/middleware"
)

// DefaultMaxBodyBytes bounds admin request bodies
const DefaultMaxBodyBytes = 64 << 10

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Config holds the engine-wide settings
type Config struct {
	ServiceName    string
	TracingEnabled bool
	// Token guards the /ops group; empty disables the check
	Token        string
	MaxBodyBytes int64
}

// Router manages HTTP route registration
type Router struct {
	engine    *gin.Engine
	token     string
	public    []RouteRegistrar
	protected []RouteRegistrar
}

// NewRouter creates a gin engine with recovery, tracing and request logging
// installed, in that order.
func NewRouter(cfg Config, log *zap.Logger) *Router {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	middleware.SetupValidator()

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(
		logger.Recovery(log),
		middleware.Tracing(middleware.TracingConfig{ServiceName: cfg.ServiceName, Enabled: cfg.TracingEnabled}),
		middleware.SpanErrorMarker(),
		logger.GinMiddleware(log),
		middleware.SpanAttributes(),
		middleware.BodyLimit(cfg.MaxBodyBytes),
	)
	return &Router{engine: engine, token: cfg.Token}
}

// Public mounts registrar at the root without authentication
func (r *Router) Public(registrar RouteRegistrar) *Router {
	r.public = append(r.public, registrar)
	return r
}

// Protected mounts registrar under /ops behind the bearer token
func (r *Router) Protected(registrar RouteRegistrar) *Router {
	r.protected = append(r.protected, registrar)
	return r
}

// Setup registers all routes and returns the engine
func (r *Router) Setup() *gin.Engine {
	root := r.engine.Group("")
	for _, registrar := range r.public {
		registrar.RegisterRoutes(root)
	}

	ops := r.engine.Group("/ops", middleware.BearerToken(r.token))
	for _, registrar := range r.protected {
		registrar.RegisterRoutes(ops)
	}
	return r.engine
}
