package api

import (
	"net/http"

	voiceCallHandler "voice-agent-server/internal/voicecall/handler"

	"github.com/gin-gonic/gin"
)

type API struct {
	router           *gin.RouterGroup
	voiceCallHandler voiceCallHandler.Handler
}

func New(router *gin.RouterGroup, voiceCallHandler voiceCallHandler.Handler) API {
	return API{
		router:           router,
		voiceCallHandler: voiceCallHandler,
	}
}

func (a *API) RegisterRoutes() {
	a.Root()
	a.Health()
	a.router.POST("/webhook", a.voiceCallHandler.HandleWebhook)
	a.router.POST("/start-call", a.voiceCallHandler.HandleStartCall)
	a.router.GET("/stream", a.voiceCallHandler.HandleStream)
}

func (a *API) Root() {
	a.router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Voice Agent Server is up."})
	})
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}
