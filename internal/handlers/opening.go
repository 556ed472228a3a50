package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lootbox-backend/internal/models"
	"lootbox-backend/internal/services"
	"lootbox-backend/internal/sui"
)

type OpeningHistory interface {
	GetOpeningHistory(ctx context.Context, owner string, limit int64) ([]*models.OpeningRecord, error)
}

type OpeningHandler struct {
	openers *services.Openers
	history OpeningHistory
}

func NewOpeningHandler(openers *services.Openers, history OpeningHistory) *OpeningHandler {
	return &OpeningHandler{
		openers: openers,
		history: history,
	}
}

type openRequest struct {
	BoxID string `json:"box_id" binding:"required"`
	Wait  bool   `json:"wait"`
}

type openBatchRequest struct {
	BoxIDs []string `json:"box_ids"`
	Wait   bool     `json:"wait"`
}

func (h *OpeningHandler) Open(c *gin.Context) {
	owner := c.GetString("address")

	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	boxID, err := models.NormalizeAddress(req.BoxID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid box id",
			"details": err.Error(),
		})
		return
	}

	opener, _, err := h.openers.Open(c.Request.Context(), owner, models.LootBox{ID: boxID})
	if err != nil {
		writeError(c, "Failed to open box", err)
		return
	}

	h.respondWithSession(c, opener, req.Wait)
}

func (h *OpeningHandler) OpenBatch(c *gin.Context) {
	owner := c.GetString("address")

	var req openBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	boxes := make([]models.LootBox, 0, len(req.BoxIDs))
	for _, id := range req.BoxIDs {
		boxID, err := models.NormalizeAddress(id)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid box id",
				"details": err.Error(),
			})
			return
		}
		boxes = append(boxes, models.LootBox{ID: boxID})
	}

	opener, _, err := h.openers.OpenBatch(c.Request.Context(), owner, boxes)
	if err != nil {
		writeError(c, "Failed to open boxes", err)
		return
	}

	h.respondWithSession(c, opener, req.Wait)
}

// respondWithSession answers 202 with the starting session, or blocks until the
// flow settles when the client asked to wait.
func (h *OpeningHandler) respondWithSession(c *gin.Context, opener *services.Opener, wait bool) {
	status := http.StatusAccepted
	if wait && opener.Wait(c.Request.Context()) == nil {
		status = http.StatusOK
	}

	c.JSON(status, gin.H{
		"success": true,
		"session": opener.Session(),
	})
}

func (h *OpeningHandler) Cancel(c *gin.Context) {
	owner := c.GetString("address")

	if _, err := h.openers.Cancel(owner); err != nil {
		writeError(c, "Failed to cancel opening", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"session": h.openers.Session(owner),
	})
}

func (h *OpeningHandler) Dismiss(c *gin.Context) {
	owner := c.GetString("address")

	if !h.openers.Dismiss(owner) {
		writeError(c, "Failed to dismiss", services.ErrNotDismissable)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"session": h.openers.Session(owner),
	})
}

func (h *OpeningHandler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"session": h.openers.Session(c.GetString("address")),
	})
}

func (h *OpeningHandler) GetHistory(c *gin.Context) {
	owner := c.GetString("address")

	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if err != nil || limit <= 0 || limit > services.MaxOpeningHistory {
		limit = services.DefaultHistorySize
	}

	records, err := h.history.GetOpeningHistory(c.Request.Context(), owner, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to get opening history",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"openings": records,
		"count":    len(records),
	})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrSessionActive),
		errors.Is(err, services.ErrAlreadySubmitted),
		errors.Is(err, services.ErrNoActiveSession),
		errors.Is(err, services.ErrNotDismissable),
		errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, services.ErrNothingToOpen),
		errors.Is(err, services.ErrBatchTooLarge),
		errors.Is(err, services.ErrDuplicateTarget):
		return http.StatusBadRequest
	case errors.Is(err, sui.ErrRejected):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func writeError(c *gin.Context, msg string, err error) {
	c.JSON(errorStatus(err), gin.H{
		"error":   msg,
		"details": err.Error(),
	})
}
