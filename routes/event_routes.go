package routes

import (
	"github.com/gin-gonic/gin"

	"mediavault/controllers"
	"mediavault/middleware"
)

func RegisterEventRoutes(api *gin.RouterGroup, internal *gin.RouterGroup, jwtSecret, internalToken string, eventController *controllers.EventController) {
	api.GET("/events", middleware.AuthMiddleware(jwtSecret), eventController.Stream)

	internal.POST("/notify", middleware.InternalTokenMiddleware(internalToken), eventController.InternalNotify)
}
