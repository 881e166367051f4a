package routes

import (
	"github.com/gin-gonic/gin"

	"mediavault/controllers"
	"mediavault/middleware"
	"mediavault/models"
)

func RegisterAdminRoutes(rg *gin.RouterGroup, jwtSecret string, adminController *controllers.AdminController) {
	admin := rg.Group("/admin")
	admin.Use(middleware.AuthMiddleware(jwtSecret), middleware.RequireRole(models.RoleAdmin))
	{
		admin.POST("/sync", adminController.Sync)
		admin.GET("/sync", adminController.LastSync)

		// Folder access
		admin.PUT("/folders/:id/access", adminController.SetFolderAccess)
		admin.POST("/folders/bulk-public", adminController.BulkSetPublic)

		// ACL entries
		admin.GET("/folders/:id/permissions", adminController.ListPermissions)
		admin.PUT("/folders/:id/permissions", adminController.SetPermission)
		admin.DELETE("/folders/:id/permissions", adminController.RevokePermission)

		// Users and groups
		admin.GET("/users", adminController.ListUsers)
		admin.POST("/users", adminController.CreateUser)
		admin.GET("/users/:id", adminController.GetUser)
		admin.GET("/groups", adminController.ListGroups)
		admin.POST("/groups", adminController.CreateGroup)
		admin.DELETE("/groups/:id", adminController.DeleteGroup)
		admin.POST("/groups/:id/members/:userId", adminController.AddMember)
		admin.DELETE("/groups/:id/members/:userId", adminController.RemoveMember)
	}
}
