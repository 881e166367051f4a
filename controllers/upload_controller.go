package controllers

import (
	"github.com/gin-gonic/gin"

	"mediavault/middleware"
	"mediavault/services"
	"mediavault/utils"
)

// UploadController exposes the two points where the upload transport hands
// over to the folder mirror.
type UploadController struct {
	uploadService *services.UploadService
}

func NewUploadController(uploadService *services.UploadService) *UploadController {
	return &UploadController{uploadService: uploadService}
}

// Prepare POST /uploads/prepare
func (uc *UploadController) Prepare(c *gin.Context) {
	var req struct {
		FolderPath string `json:"folder_path"`
	}
	if !bindJSON(c, &req) {
		return
	}

	result, err := uc.uploadService.PrepareUpload(c.Request.Context(), middleware.CurrentIdentity(c), req.FolderPath)
	if err != nil {
		handleError(c, err, "Failed to prepare upload", true)
		return
	}
	utils.SuccessResponse(c, "Upload destination ready", result)
}

// Complete POST /uploads/complete
func (uc *UploadController) Complete(c *gin.Context) {
	var req struct {
		FilePath string `json:"file_path" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	result, err := uc.uploadService.CompleteUpload(c.Request.Context(), middleware.CurrentIdentity(c), req.FilePath)
	if err != nil {
		handleError(c, err, "Failed to complete upload", true)
		return
	}
	utils.SuccessResponse(c, "Upload completed", result)
}
