package controllers

import (
	"github.com/gin-gonic/gin"

	"mediavault/middleware"
	"mediavault/models"
	"mediavault/services"
	"mediavault/utils"
)

type GalleryController struct {
	galleryService    *services.GalleryService
	permissionService *services.PermissionService
}

func NewGalleryController(galleryService *services.GalleryService, permissionService *services.PermissionService) *GalleryController {
	return &GalleryController{
		galleryService:    galleryService,
		permissionService: permissionService,
	}
}

// ListFolder GET /gallery?path=&page=&limit=
func (gc *GalleryController) ListFolder(c *gin.Context) {
	identity := middleware.CurrentIdentity(c)
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", services.DefaultPageSize)

	listing, err := gc.galleryService.ListFolder(c.Request.Context(), identity, c.Query("path"), page, limit)
	if err != nil {
		handleError(c, err, "Failed to list folder", false)
		return
	}
	utils.PaginatedSuccessResponse(c, "Folder retrieved successfully", listing, listing.Pagination)
}

// CreateFolder POST /gallery/folders
func (gc *GalleryController) CreateFolder(c *gin.Context) {
	var req struct {
		ParentPath string `json:"parent_path"`
		Name       string `json:"name" binding:"required,min=1,max=255"`
	}
	if !bindJSON(c, &req) {
		return
	}

	folder, err := gc.galleryService.CreateFolder(c.Request.Context(), middleware.CurrentIdentity(c), req.ParentPath, req.Name)
	if err != nil {
		handleError(c, err, "Failed to create folder", true)
		return
	}
	utils.CreatedResponse(c, "Folder created successfully", folder)
}

// DeleteFolder DELETE /gallery/folders?path=
func (gc *GalleryController) DeleteFolder(c *gin.Context) {
	if err := gc.galleryService.DeleteFolder(c.Request.Context(), middleware.CurrentIdentity(c), c.Query("path")); err != nil {
		handleError(c, err, "Failed to delete folder", true)
		return
	}
	utils.SuccessResponse(c, "Folder deleted successfully", nil)
}

// DeleteFile DELETE /gallery/files?path=
func (gc *GalleryController) DeleteFile(c *gin.Context) {
	if err := gc.galleryService.DeleteFile(c.Request.Context(), middleware.CurrentIdentity(c), c.Query("path")); err != nil {
		handleError(c, err, "Failed to delete file", true)
		return
	}
	utils.SuccessResponse(c, "File deleted successfully", nil)
}

// Content GET /gallery/content?path= streams the file itself.
func (gc *GalleryController) Content(c *gin.Context) {
	abs, file, err := gc.galleryService.OpenFile(c.Request.Context(), middleware.CurrentIdentity(c), c.Query("path"))
	if err != nil {
		handleError(c, err, "Failed to open file", false)
		return
	}
	c.Header("X-Media-Kind", string(file.Kind))
	c.File(abs)
}

// CheckAccess POST /gallery/access/check
func (gc *GalleryController) CheckAccess(c *gin.Context) {
	var req struct {
		Path  string             `json:"path"`
		Level models.AccessLevel `json:"level" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	allowed, err := gc.permissionService.CanAccess(c.Request.Context(), middleware.CurrentIdentity(c), services.RefPath(req.Path), req.Level)
	if err != nil {
		handleError(c, err, "Failed to check access", false)
		return
	}
	utils.SuccessResponse(c, "Access checked", gin.H{"path": req.Path, "level": req.Level, "allowed": allowed})
}

// FilterAccessible POST /gallery/access/filter
func (gc *GalleryController) FilterAccessible(c *gin.Context) {
	var req struct {
		Paths []string `json:"paths" binding:"required,max=1000"`
	}
	if !bindJSON(c, &req) {
		return
	}

	paths, err := gc.permissionService.FilterAccessible(c.Request.Context(), middleware.CurrentIdentity(c), req.Paths)
	if err != nil {
		handleError(c, err, "Failed to filter paths", false)
		return
	}
	utils.SuccessResponse(c, "Paths filtered", gin.H{"paths": paths})
}
