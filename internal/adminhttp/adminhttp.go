// Package adminhttp exposes a small read-only HTTP surface over the
// autoscaler's state: a liveness check, the manager's last completed
// WorkerView snapshot, and a Prometheus scrape endpoint. Grounded on the
// reference corpus's consumer service's dedicated health port and
// gin.New()/gin.Recovery() server bootstrap shape.
package adminhttp

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/qsdfplkj/azure-functions-host/internal/concurrency"
)

// SnapshotSource is implemented by *concurrency.ConcurrencyManager. Kept as
// a narrow interface so this package never needs the full manager type.
type SnapshotSource interface {
	Snapshot() map[string]concurrency.WorkerView
	State() concurrency.State
}

// Server is the admin HTTP surface's bootstrap wrapper around a
// *http.Server running a gin.Engine.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// New builds the admin HTTP server bound to addr (e.g. ":8090"). It does
// not start listening until Serve is called.
func New(addr string, manager SnapshotSource, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":              "ok",
			"concurrency_manager": manager.State().String(),
		})
	})

	router.GET("/concurrency/status", func(c *gin.Context) {
		snapshot := manager.Snapshot()
		if snapshot == nil {
			c.JSON(http.StatusOK, gin.H{"workers": gin.H{}})
			return
		}
		c.JSON(http.StatusOK, gin.H{"workers": snapshot})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the underlying http.Handler, primarily so tests can
// drive it with httptest.NewServer without binding a real port.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve blocks, accepting connections until Shutdown is called. Returns
// nil on a clean shutdown (http.ErrServerClosed is swallowed).
func (s *Server) Serve() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
