package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yuzutea/curator/internal/callback"
	db "github.com/yuzutea/curator/internal/storage"
)

const dayQueryLayout = "2006-01-02"

// callbackRequest is the webhook envelope. Verification handshakes and
// card actions arrive on the same route.
type callbackRequest struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`

	callback.Event
}

func (s *Server) handleCallback(c *gin.Context) {
	var req callbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})

		return
	}

	if req.Type == "url_verification" {
		c.JSON(http.StatusOK, gin.H{"challenge": req.Challenge})

		return
	}

	elements, err := s.callbacks.Handle(c.Request.Context(), req.Event)
	if err != nil {
		s.callbackError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"elements": elements})
}

func (s *Server) callbackError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, callback.ErrUnknownAction), errors.Is(err, callback.ErrMissingField):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, db.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
	default:
		s.logger.Error().Err(err).Msg("callback failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// dayParam reads the optional t query, an RFC3339 timestamp or a bare
// YYYY-MM-DD date, defaulting to now. Any instant selects the local day
// containing it.
func (s *Server) dayParam(c *gin.Context) (time.Time, bool) {
	raw := c.Query("t")
	if raw == "" {
		return time.Now(), true
	}

	if at, err := time.Parse(time.RFC3339, raw); err == nil {
		return at, true
	}

	day, err := time.ParseInLocation(dayQueryLayout, raw, s.loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "t must be an RFC3339 timestamp or YYYY-MM-DD"})

		return time.Time{}, false
	}

	return day, true
}

func (s *Server) handleSummary(c *gin.Context) {
	day, ok := s.dayParam(c)
	if !ok {
		return
	}

	report, err := s.summaries.Daily(c.Request.Context(), day)
	if err != nil {
		s.logger.Error().Err(err).Msg("summary failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})

		return
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) handleKPI(c *gin.Context) {
	day, ok := s.dayParam(c)
	if !ok {
		return
	}

	entries, err := s.summaries.KPI(c.Request.Context(), day)
	if err != nil {
		s.logger.Error().Err(err).Msg("kpi failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})

		return
	}

	c.JSON(http.StatusOK, entries)
}

type categoryRequest struct {
	Category string `json:"category" binding:"required"`
	MarkedBy string `json:"marked_by"` //nolint:tagliatelle
}

// handleCreateCategory inserts a bare pre-categorized record for an item
// the pipeline never delivered, a manual correction path.
func (s *Server) handleCreateCategory(c *gin.Context) {
	id := c.Param("id")

	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category is required"})

		return
	}

	exists, err := s.items.ItemExists(c.Request.Context(), id)
	if err != nil {
		s.storeError(c, err)

		return
	}

	if exists {
		c.JSON(http.StatusConflict, gin.H{"error": "item already exists"})

		return
	}

	record := &db.Item{ID: id, CreatedAt: time.Now().In(s.loc)}
	if err := s.items.InsertItem(c.Request.Context(), record); err != nil {
		s.storeError(c, err)

		return
	}

	if err := s.items.SetItemCategory(c.Request.Context(), id, req.Category, req.MarkedBy); err != nil {
		s.storeError(c, err)

		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id, "category": req.Category})
}

func (s *Server) handleGetCategory(c *gin.Context) {
	item, err := s.items.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        item.ID,
		"status":    item.Status(),
		"category":  item.Category,
		"marked_by": item.MarkedBy,
	})
}

func (s *Server) handleUpdateCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category is required"})

		return
	}

	id := c.Param("id")
	if err := s.items.SetItemCategory(c.Request.Context(), id, req.Category, req.MarkedBy); err != nil {
		s.storeError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"id": id, "category": req.Category})
}

func (s *Server) handleDeleteCategory(c *gin.Context) {
	id := c.Param("id")
	if err := s.items.ClearItemCategory(c.Request.Context(), id); err != nil {
		s.storeError(c, err)

		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) storeError(c *gin.Context, err error) {
	if errors.Is(err, db.ErrItemNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})

		return
	}

	s.logger.Error().Err(err).Msg("store operation failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
