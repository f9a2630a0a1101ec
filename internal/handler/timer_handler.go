package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "focustimer/internal/errors"
	"focustimer/internal/model"
	"focustimer/internal/service"
	"focustimer/internal/timer"
)

const eventsHeartbeat = 25 * time.Second

type TimerHandler struct {
	timerService *service.TimerService
}

type revisionRequest struct {
	BaseRevision int `json:"baseRevision"`
}

type startRequest struct {
	BaseRevision int     `json:"baseRevision"`
	SubjectID    *string `json:"subjectId"`
}

type configRequest struct {
	BaseRevision int `json:"baseRevision"`
	model.ConfigPatch
}

type visibilityRequest struct {
	Visible          *bool `json:"visible"`
	TimerViewFocused *bool `json:"timerViewFocused"`
}

func NewTimerHandler(timerService *service.TimerService) *TimerHandler {
	return &TimerHandler{timerService: timerService}
}

func (h *TimerHandler) GetState(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	writeState(c)(h.timerService.State(c.Request.Context(), userID))
}

func (h *TimerHandler) Start(c *gin.Context) {
	var req startRequest
	if !bindJSON(c, &req, true) || !validRevision(c, req.BaseRevision) {
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	writeState(c)(h.timerService.Start(c.Request.Context(), userID, req.BaseRevision, req.SubjectID))
}

func (h *TimerHandler) Pause(c *gin.Context) {
	h.revisionOp(c, h.timerService.Pause)
}

func (h *TimerHandler) Stop(c *gin.Context) {
	h.revisionOp(c, h.timerService.Stop)
}

func (h *TimerHandler) Skip(c *gin.Context) {
	h.revisionOp(c, h.timerService.Skip)
}

func (h *TimerHandler) UpdateConfig(c *gin.Context) {
	var req configRequest
	if !bindJSON(c, &req, false) || !validRevision(c, req.BaseRevision) {
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	writeState(c)(h.timerService.UpdateConfig(c.Request.Context(), userID, req.BaseRevision, req.ConfigPatch))
}

func (h *TimerHandler) SetVisibility(c *gin.Context) {
	var req visibilityRequest
	if !bindJSON(c, &req, false) {
		return
	}
	if req.Visible == nil {
		writeError(c, apperrors.BadRequest("invalid_visibility", "visible is required"))
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	writeState(c)(h.timerService.SetVisibility(c.Request.Context(), userID, *req.Visible, req.TimerViewFocused))
}

func (h *TimerHandler) GetHistory(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	limit := 0
	if rawLimit := c.Query("limit"); rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil {
			limit = parsed
		}
	}

	history, apiErr := h.timerService.History(c.Request.Context(), userID, limit)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, history)
}

// Events streams effects as server-sent events. Every effect is followed by
// a state event so clients never need to poll.
func (h *TimerHandler) Events(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	stream, cancel, apiErr := h.timerService.Events(ctx, userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	h.sendState(c, userID)
	c.Writer.Flush()

	heartbeat := time.NewTicker(eventsHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case effect, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(string(effect.Kind), effect)
			h.sendState(c, userID)
			return true
		case now := <-heartbeat.C:
			c.SSEvent("ping", gin.H{"serverTime": now.UTC()})
			return true
		}
	})
}

func (h *TimerHandler) sendState(c *gin.Context, userID string) {
	view, apiErr := h.timerService.State(c.Request.Context(), userID)
	if apiErr != nil {
		return
	}
	c.SSEvent("state", view)
}

type revisionFunc func(ctx context.Context, userID string, baseRevision int) (*timer.View, *apperrors.APIError)

func (h *TimerHandler) revisionOp(c *gin.Context, op revisionFunc) {
	var req revisionRequest
	if !bindJSON(c, &req, true) || !validRevision(c, req.BaseRevision) {
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	writeState(c)(op(c.Request.Context(), userID, req.BaseRevision))
}

func validRevision(c *gin.Context, baseRevision int) bool {
	if baseRevision < 0 {
		writeError(c, apperrors.BadRequest("invalid_base_revision", "baseRevision must not be negative"))
		return false
	}
	return true
}

func writeState(c *gin.Context) func(*timer.View, *apperrors.APIError) {
	return func(view *timer.View, apiErr *apperrors.APIError) {
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"state": view})
	}
}
