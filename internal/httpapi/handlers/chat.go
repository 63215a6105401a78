package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pmerrell/ollamadesk/internal/common"
	"github.com/pmerrell/ollamadesk/internal/relay"
)

const (
	headerSessionUID = "X-Session-Uid"
	headerChatUID    = "X-Chat-Uid"
)

type chatRequest struct {
	Query       string  `json:"query"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Stream      bool    `json:"stream"`
	SessionUID  string  `json:"sessionUid"`
	ChatUID     string  `json:"chatUid"`
	System      string  `json:"system"`
}

// SendChat relays one chat request. Correlation headers are set before any
// body byte so the caller can match the exchange even if the connection
// drops mid-stream; they are set on the error paths too.
func (h *Handler) SendChat(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "reading body")
		return
	}

	var req chatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Model == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "model required")
		return
	}

	sessionUID := req.SessionUID
	if sessionUID == "" {
		sessionUID = common.NewUID()
	}
	chatUID := req.ChatUID
	if chatUID == "" {
		chatUID = common.NewUID()
	}
	c.Header(headerSessionUID, sessionUID)
	c.Header(headerChatUID, chatUID)

	sr := relay.SendRequest{
		Prompt:      req.Query,
		Model:       req.Model,
		Temperature: req.Temperature,
		System:      req.System,
		SessionUID:  sessionUID,
		TurnUID:     chatUID,
		Provenance:  provenanceOf(raw),
	}

	if !req.Stream {
		body, err := h.Relay.Send(c.Request.Context(), sr)
		if err != nil {
			h.Log.Error("chat relay failed", zap.String("chatUid", chatUID), zap.Error(err))
			common.Fail(c, http.StatusBadGateway, 50201, "inference backend error")
			return
		}
		c.JSON(http.StatusOK, body)
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	if err := h.Relay.Stream(c.Request.Context(), sr, c.Writer); err != nil {
		if !c.Writer.Written() {
			// No stream byte went out; drop the streaming headers so the
			// error envelope is served as JSON.
			c.Writer.Header().Del("Content-Type")
			c.Writer.Header().Del("Cache-Control")
			common.Fail(c, http.StatusBadGateway, 50201, "inference backend error")
			return
		}
		// Streaming already began: the status is out the door, all that is
		// left is terminating the stream distinguishably from completion.
		h.Log.Error("chat stream failed", zap.String("chatUid", chatUID), zap.Error(err))
		c.Abort()
	}
}

// provenanceOf strips prompt and model from the raw request body; whatever
// the client attached beyond those travels with the turn as provenance.
func provenanceOf(raw []byte) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	delete(m, "query")
	delete(m, "model")
	return m
}
