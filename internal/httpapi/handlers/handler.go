package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-concierge/internal/chat"
	"github.com/suPer8Hu/ai-concierge/internal/common"
	"github.com/suPer8Hu/ai-concierge/internal/logger"
)

type Handler struct {
	ChatSvc *chat.Service
	Log     *logger.Logger
}

func NewHandler(svc *chat.Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{ChatSvc: svc, Log: log}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}
