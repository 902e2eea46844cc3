// Package httpapi serves the dashboard JSON API, the live event stream and
// the Prometheus metrics endpoint.
package httpapi

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"netmonitor/internal/events"
	"netmonitor/internal/logger"
	"netmonitor/internal/models"
	"netmonitor/internal/reporting"
)

const shutdownTimeout = 5 * time.Second

// StateReader is the read side of the monitor state.
type StateReader interface {
	Devices() []models.Device
	Alerts() []models.Alert
	Stats() models.Stats
	Session() reporting.Session
}

// Subscriber hands out event subscriptions.
type Subscriber interface {
	Subscribe(buffer int) (<-chan events.Event, func())
}

type Server struct {
	addr   string
	state  StateReader
	bus    Subscriber
	log    logger.Logger
	router *gin.Engine
}

func NewServer(addr string, state StateReader, bus Subscriber, log logger.Logger) *Server {
	s := &Server{
		addr:  addr,
		state: state,
		bus:   bus,
		log:   log.WithComponent("http"),
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())
	s.router = router
	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/devices", s.getDevices)
		api.GET("/alerts", s.getAlerts)
		api.GET("/stats", s.getStats)
		api.GET("/report", s.getReport)
	}

	s.router.GET("/ws", s.handleWebSocket)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) getDevices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"devices": s.state.Devices()})
}

func (s *Server) getAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": s.state.Alerts()})
}

func (s *Server) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.state.Stats())
}

func (s *Server) getReport(c *gin.Context) {
	var buf bytes.Buffer
	if err := reporting.RenderHTML(&buf, s.state.Session()); err != nil {
		s.log.Error().Err(err).Msg("failed to render report")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render report"})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("http shutdown did not complete")
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) String() string { return "http server" }
