package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/mobilsoft/edire/internal/infrastructure/logger"
)

type staticRoutes struct {
	path string
}

func (s staticRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET(s.path, func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	rg.POST(s.path, func(c *gin.Context) { c.String(http.StatusOK, "posted") })
}

func newEngine(t *testing.T, cfg Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return NewRouter(cfg, zap.NewNop()).
		Public(staticRoutes{path: "/healthz"}).
		Protected(staticRoutes{path: "/runs"}).
		Setup()
}

func TestRouter(t *testing.T) {
	engine := newEngine(t, Config{ServiceName: "edire", Token: "t0k", MaxBodyBytes: 16})

	t.Run("public route needs no token", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(logger.RequestIDHeader))
	})

	t.Run("protected route mounted under ops", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ops/runs", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		req := httptest.NewRequest(http.MethodGet, "/ops/runs", nil)
		req.Header.Set("Authorization", "Bearer t0k")
		req.Header.Set(logger.RequestIDHeader, "abc")
		w = httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "abc", w.Header().Get(logger.RequestIDHeader))
	})

	t.Run("body limit applies", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/ops/runs", strings.NewReader(strings.Repeat("x", 64)))
		req.Header.Set("Authorization", "Bearer t0k")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/healthz", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})
}

func TestRouter_RecoversFromPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(Config{}, zap.NewNop())
	r.engine.GET("/panic", func(*gin.Context) { panic("boom") })
	engine := r.Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
