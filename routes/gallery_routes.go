package routes

import (
	"github.com/gin-gonic/gin"

	"mediavault/controllers"
	"mediavault/middleware"
)

func RegisterGalleryRoutes(rg *gin.RouterGroup, jwtSecret string, galleryController *controllers.GalleryController, uploadController *controllers.UploadController) {
	gallery := rg.Group("/gallery")
	gallery.Use(middleware.AuthMiddleware(jwtSecret))
	{
		gallery.GET("", galleryController.ListFolder)              // GET /gallery?path=&page=&limit=
		gallery.POST("/folders", galleryController.CreateFolder)   // POST /gallery/folders
		gallery.DELETE("/folders", galleryController.DeleteFolder) // DELETE /gallery/folders?path=
		gallery.DELETE("/files", galleryController.DeleteFile)     // DELETE /gallery/files?path=
		gallery.GET("/content", galleryController.Content)         // GET /gallery/content?path=

		gallery.POST("/access/check", galleryController.CheckAccess)
		gallery.POST("/access/filter", galleryController.FilterAccessible)
	}

	uploads := rg.Group("/uploads")
	uploads.Use(middleware.AuthMiddleware(jwtSecret))
	{
		uploads.POST("/prepare", uploadController.Prepare)
		uploads.POST("/complete", uploadController.Complete)
	}
}
