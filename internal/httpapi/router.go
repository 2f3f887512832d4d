package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/abhisek/pathfinder/internal/logging"
	"github.com/abhisek/pathfinder/internal/metrics"
)

// NewRouter builds the gin engine. m may be nil, in which case neither
// request metrics nor /metrics are served.
func NewRouter(h *Handler, m *metrics.Metrics, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	if m != nil {
		r.Use(m.Middleware())
		r.GET("/metrics", m.GinHandler())
	}

	api := r.Group("/api")
	api.GET("/health", h.Health)

	students := api.Group("/students/:id")
	{
		students.POST("/roadmap", h.GenerateRoadmap)
		students.GET("/roadmap", h.GetRoadmap)
		students.POST("/assessments", h.ReportAssessment)
		students.GET("/patterns", h.ListPatterns)
		students.POST("/patterns/refresh", h.RefreshPatterns)
	}
	return r
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	log = logging.OrNop(log)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Serve runs the server until ctx is canceled, then shuts down with a
// bounded grace period.
func Serve(ctx context.Context, addr string, handler http.Handler, log *zap.Logger) error {
	log = logging.OrNop(log)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	log.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}
