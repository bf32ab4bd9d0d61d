// Package httpapi exposes the curator's HTTP surface: the chat platform
// webhook, the daily summary and KPI reads, manual category corrections
// and the usual health and metrics routes.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/yuzutea/curator/internal/callback"
	"github.com/yuzutea/curator/internal/output/cards"
	db "github.com/yuzutea/curator/internal/storage"
	"github.com/yuzutea/curator/internal/summary"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

// CallbackHandler applies one moderator action.
type CallbackHandler interface {
	Handle(ctx context.Context, event callback.Event) (cards.Body, error)
}

// Summarizer serves the daily aggregates.
type Summarizer interface {
	Daily(ctx context.Context, t time.Time) (*summary.Report, error)
	KPI(ctx context.Context, t time.Time) ([]summary.KPIEntry, error)
}

// ItemStore is the slice of the store the admin routes need.
type ItemStore interface {
	GetItem(ctx context.Context, id string) (*db.Item, error)
	ItemExists(ctx context.Context, id string) (bool, error)
	InsertItem(ctx context.Context, item *db.Item) error
	SetItemCategory(ctx context.Context, id, category, markedBy string) error
	ClearItemCategory(ctx context.Context, id string) error
}

// Pinger reports database liveness for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	callbacks CallbackHandler
	summaries Summarizer
	items     ItemStore
	pinger    Pinger
	loc       *time.Location
	logger    *zerolog.Logger

	httpServer *http.Server
}

func NewServer(port int, callbacks CallbackHandler, summaries Summarizer, items ItemStore, pinger Pinger, loc *time.Location, logger *zerolog.Logger) *Server {
	server := &Server{
		callbacks: callbacks,
		summaries: summaries,
		items:     items,
		pinger:    pinger,
		loc:       loc,
		logger:    logger,
	}

	server.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           server.router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return server
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(s.requestLog(), gin.Recovery())

	engine.POST("/callback", s.handleCallback)
	engine.GET("/summary", s.handleSummary)
	engine.GET("/kpi", s.handleKPI)

	items := engine.Group("/items/:id/category")
	items.POST("", s.handleCreateCategory)
	items.GET("", s.handleGetCategory)
	items.PATCH("", s.handleUpdateCategory)
	items.DELETE("", s.handleDeleteCategory)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/readyz", s.handleReady)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return engine
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errs := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")

	select {
	case err := <-errs:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}

	return nil
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}

func (s *Server) handleReady(c *gin.Context) {
	if err := s.pinger.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database unavailable"})

		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
