package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-concierge/internal/apierr"
	"github.com/suPer8Hu/ai-concierge/internal/chat"
	"github.com/suPer8Hu/ai-concierge/internal/common"
	"github.com/suPer8Hu/ai-concierge/internal/httpapi/middleware"
)

type chatReq struct {
	BotID       string `json:"botId"`
	SessionID   string `json:"sessionId"`
	Message     string `json:"message"`
	Lang        string `json:"lang"`
	LeadName    string `json:"leadName"`
	LeadEmail   string `json:"leadEmail"`
	LeadPhone   string `json:"leadPhone"`
	LeadCompany string `json:"leadCompany"`
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, chat.CodeBadJSON, "invalid json")
		return
	}

	out, err := h.ChatSvc.HandleMessage(c.Request.Context(), chat.Request{
		BotID:       req.BotID,
		SessionID:   req.SessionID,
		Message:     req.Message,
		Lang:        req.Lang,
		LeadName:    req.LeadName,
		LeadEmail:   req.LeadEmail,
		LeadPhone:   req.LeadPhone,
		LeadCompany: req.LeadCompany,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	// success bodies are the bare reply object; errors keep the envelope
	c.JSON(http.StatusOK, out)
}

// ChatPreflight answers OPTIONS when the request carried no Origin and the
// CORS middleware passed it through.
func (h *Handler) ChatPreflight(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type")
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListChatMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	msgs, err := h.ChatSvc.Transcript(c.Request.Context(), c.Param("session_id"), c.Query("botId"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	common.OK(c, gin.H{"messages": msgs})
}

func (h *Handler) fail(c *gin.Context, err error) {
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		ae = apierr.New(http.StatusInternalServerError, chat.CodeInternal, err)
	}

	msg := "internal error"
	switch {
	case errors.Is(err, chat.ErrValidation):
		msg = err.Error()
	case errors.Is(err, chat.ErrNotFound):
		msg = "session not found"
	case errors.Is(err, chat.ErrSessionClosed):
		msg = "session closed"
	case errors.Is(err, chat.ErrGeneration):
		msg = "failed to generate reply"
	}
	if ae.Status >= http.StatusInternalServerError {
		h.Log.Error("chat request failed", "request_id", c.GetString(middleware.RequestIDKey), "err", err)
	}
	common.Fail(c, ae.Status, ae.Code, msg)
}
