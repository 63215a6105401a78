package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pmerrell/ollamadesk/internal/common"
	"github.com/pmerrell/ollamadesk/internal/history"
)

// ListSessions lists sessions with their turn counts. The optional :archive
// segment filters by the archival flag.
func (h *Handler) ListSessions(c *gin.Context) {
	var archived *bool
	if seg := c.Param("archive"); seg != "" {
		if v, err := strconv.ParseBool(seg); err == nil {
			archived = &v
		}
	}

	sessions, err := h.History.ListSessions(c.Request.Context(), archived)
	if err != nil {
		h.Log.Error("listing sessions failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, sessions)
}

type createSessionRequest struct {
	Name         string          `json:"name"`
	Model        string          `json:"model"`
	Temperature  float64         `json:"temperature"`
	ModelfileUID string          `json:"modelfileUid"`
	Metadata     json.RawMessage `json:"metadata"`
}

func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	now := time.Now()
	if req.Name == "" {
		req.Name = "Chat " + now.Format("2006-01-02 15:04:05")
	}
	if req.Temperature == 0 {
		req.Temperature = 0.7
	}

	s := history.Session{
		UID:         common.NewUID(),
		Name:        req.Name,
		Model:       req.Model,
		Temperature: req.Temperature,
		Metadata:    string(req.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.ModelfileUID != "" {
		s.ModelfileUID = &req.ModelfileUID
	}

	if err := h.History.CreateSession(c.Request.Context(), &s); err != nil {
		h.Log.Error("creating session failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, s)
}

// GetSession returns a session and all of its turns.
func (h *Handler) GetSession(c *gin.Context) {
	uid := c.Param("uid")

	s, err := h.History.GetSessionByUID(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	turns, err := h.History.ListTurns(c.Request.Context(), s.ID)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	common.Ok(c, gin.H{
		"session": s,
		"chats":   turns,
	})
}

type updateSessionRequest struct {
	Name         *string          `json:"name"`
	Model        *string          `json:"model"`
	Temperature  *float64         `json:"temperature"`
	Archived     *bool            `json:"archived"`
	ModelfileUID *string          `json:"modelfileUid"`
	Metadata     *json.RawMessage `json:"metadata"`
}

// UpdateSession applies a partial update: only fields present in the body
// reach the UPDATE statement.
func (h *Handler) UpdateSession(c *gin.Context) {
	uid := c.Param("uid")

	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	upd := history.SessionUpdate{
		Name:         req.Name,
		Model:        req.Model,
		Temperature:  req.Temperature,
		Archived:     req.Archived,
		ModelfileUID: req.ModelfileUID,
	}
	if req.Metadata != nil {
		m := string(*req.Metadata)
		upd.Metadata = &m
	}

	if err := h.History.UpdateSession(c.Request.Context(), uid, upd); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "session not found")
			return
		}
		h.Log.Error("updating session failed", zap.String("uid", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, gin.H{"uid": uid})
}

func (h *Handler) DeleteSession(c *gin.Context) {
	uid := c.Param("uid")

	if err := h.History.DeleteSession(c.Request.Context(), uid); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "session not found")
			return
		}
		h.Log.Error("deleting session failed", zap.String("uid", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, gin.H{"uid": uid})
}

type deleteChatsRequest struct {
	ChatIDs []string `json:"chatIds" binding:"required"`
}

// DeleteChats removes specific turns from a session; the matching search
// index rows go in the same transaction.
func (h *Handler) DeleteChats(c *gin.Context) {
	uid := c.Param("uid")

	var req deleteChatsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	deleted, err := h.History.DeleteTurns(c.Request.Context(), uid, req.ChatIDs)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "session not found")
			return
		}
		h.Log.Error("deleting chats failed", zap.String("uid", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, gin.H{"deleted": deleted})
}

// SearchChats runs a full-text query over the whole chat history.
func (h *Handler) SearchChats(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "q required")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	hits, err := h.History.Search(c.Request.Context(), q, limit)
	if err != nil {
		h.Log.Error("search failed", zap.String("q", q), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, hits)
}
