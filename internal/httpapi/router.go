package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-concierge/internal/chat"
	"github.com/suPer8Hu/ai-concierge/internal/common"
	"github.com/suPer8Hu/ai-concierge/internal/httpapi/handlers"
	"github.com/suPer8Hu/ai-concierge/internal/httpapi/middleware"
	"github.com/suPer8Hu/ai-concierge/internal/logger"
)

func NewRouter(svc *chat.Service, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.CORS())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := handlers.NewHandler(svc, log)

	r.GET("/ping", h.Ping)

	api := r.Group("/api")
	api.POST("/chat", h.SendChatMessage)
	api.OPTIONS("/chat", h.ChatPreflight)
	api.GET("/chat/:session_id/messages", h.ListChatMessages)
	return r
}
