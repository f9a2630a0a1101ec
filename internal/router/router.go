package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"focustimer/internal/handler"
	"focustimer/internal/middleware"
)

func New(
	tokens middleware.TokenParser,
	authHandler *handler.AuthHandler,
	timerHandler *handler.TimerHandler,
	corsOrigins []string,
) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	timer := api.Group("/timer")
	timer.Use(middleware.Auth(tokens))
	timer.GET("/state", timerHandler.GetState)
	timer.POST("/start", timerHandler.Start)
	timer.POST("/pause", timerHandler.Pause)
	timer.POST("/stop", timerHandler.Stop)
	timer.POST("/skip", timerHandler.Skip)
	timer.PUT("/config", timerHandler.UpdateConfig)
	timer.POST("/visibility", timerHandler.SetVisibility)
	timer.GET("/history", timerHandler.GetHistory)
	timer.GET("/events", timerHandler.Events)

	return engine
}
