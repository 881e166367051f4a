package controllers

import (
	"github.com/gin-gonic/gin"

	"mediavault/jobs"
	"mediavault/middleware"
	"mediavault/models"
	"mediavault/services"
	"mediavault/utils"
)

type AdminController struct {
	syncRunner       *jobs.SyncRunner
	accessService    *services.AccessService
	grantService     *services.GrantService
	directoryService *services.DirectoryService
}

func NewAdminController(syncRunner *jobs.SyncRunner, accessService *services.AccessService, grantService *services.GrantService, directoryService *services.DirectoryService) *AdminController {
	return &AdminController{
		syncRunner:       syncRunner,
		accessService:    accessService,
		grantService:     grantService,
		directoryService: directoryService,
	}
}

// ========== Tree ==========

// Sync POST /admin/sync
func (ac *AdminController) Sync(c *gin.Context) {
	result, err := ac.syncRunner.Run(c.Request.Context(), middleware.CurrentIdentity(c))
	if err != nil {
		handleError(c, err, "Sync failed", true)
		return
	}
	utils.SuccessResponse(c, "Sync completed", result)
}

// LastSync GET /admin/sync
func (ac *AdminController) LastSync(c *gin.Context) {
	result, at, ok := ac.syncRunner.Last()
	if !ok {
		utils.SuccessResponse(c, "No sync has run yet", nil)
		return
	}
	utils.SuccessResponse(c, "Last sync", gin.H{"result": result, "completed_at": at})
}

// ========== Access ==========

// SetFolderAccess PUT /admin/folders/:id/access
func (ac *AdminController) SetFolderAccess(c *gin.Context) {
	folderID, ok := parseObjectID(c, c.Param("id"), "folder")
	if !ok {
		return
	}

	var req struct {
		IsPublic     *bool    `json:"is_public" binding:"required"`
		AllowedUsers []string `json:"allowed_users"`
		Recursive    bool     `json:"recursive"`
	}
	if !bindJSON(c, &req) {
		return
	}
	allowed, ok := parseObjectIDs(c, req.AllowedUsers, "user")
	if !ok {
		return
	}

	modified, err := ac.accessService.SetFolderAccess(c.Request.Context(), folderID, *req.IsPublic, allowed, req.Recursive)
	if err != nil {
		handleError(c, err, "Failed to update folder access", true)
		return
	}
	utils.SuccessResponse(c, "Folder access updated", gin.H{"modified": modified})
}

// BulkSetPublic POST /admin/folders/bulk-public
func (ac *AdminController) BulkSetPublic(c *gin.Context) {
	var req struct {
		FolderIDs []string `json:"folder_ids" binding:"required,min=1"`
		IsPublic  *bool    `json:"is_public" binding:"required"`
		Recursive bool     `json:"recursive"`
	}
	if !bindJSON(c, &req) {
		return
	}
	folderIDs, ok := parseObjectIDs(c, req.FolderIDs, "folder")
	if !ok {
		return
	}

	result, err := ac.accessService.BulkSetPublic(c.Request.Context(), folderIDs, *req.IsPublic, req.Recursive)
	if err != nil {
		handleError(c, err, "Failed to update folders", true)
		return
	}
	utils.SuccessResponse(c, "Folders updated", result)
}

// ========== Permissions ==========

// ListPermissions GET /admin/folders/:id/permissions
func (ac *AdminController) ListPermissions(c *gin.Context) {
	folderID, ok := parseObjectID(c, c.Param("id"), "folder")
	if !ok {
		return
	}

	entries, err := ac.grantService.ListPermissions(c.Request.Context(), folderID)
	if err != nil {
		handleError(c, err, "Failed to list permissions", false)
		return
	}
	utils.SuccessResponse(c, "Permissions retrieved successfully", entries)
}

// SetPermission PUT /admin/folders/:id/permissions
func (ac *AdminController) SetPermission(c *gin.Context) {
	folderID, ok := parseObjectID(c, c.Param("id"), "folder")
	if !ok {
		return
	}

	var req struct {
		PrincipalID   string               `json:"principal_id" binding:"required"`
		PrincipalType models.PrincipalType `json:"principal_type" binding:"required,oneof=user group"`
		Access        models.AccessLevel   `json:"access" binding:"required,oneof=read write admin"`
	}
	if !bindJSON(c, &req) {
		return
	}
	principalID, ok := parseObjectID(c, req.PrincipalID, "principal")
	if !ok {
		return
	}

	identity := middleware.CurrentIdentity(c)
	entry, err := ac.grantService.SetPermission(c.Request.Context(), folderID, principalID, req.PrincipalType, req.Access, identity.ID)
	if err != nil {
		handleError(c, err, "Failed to set permission", true)
		return
	}
	utils.SuccessResponse(c, "Permission granted", entry)
}

// RevokePermission DELETE /admin/folders/:id/permissions?principal_id=&principal_type=
func (ac *AdminController) RevokePermission(c *gin.Context) {
	folderID, ok := parseObjectID(c, c.Param("id"), "folder")
	if !ok {
		return
	}
	principalID, ok := parseObjectID(c, c.Query("principal_id"), "principal")
	if !ok {
		return
	}
	principalType := models.PrincipalType(c.Query("principal_type"))

	if err := ac.grantService.RevokePermission(c.Request.Context(), folderID, principalID, principalType); err != nil {
		handleError(c, err, "Failed to revoke permission", true)
		return
	}
	utils.SuccessResponse(c, "Permission revoked", nil)
}

// ========== Users and groups ==========

// ListUsers GET /admin/users
func (ac *AdminController) ListUsers(c *gin.Context) {
	users, err := ac.directoryService.ListUsers(c.Request.Context())
	if err != nil {
		handleError(c, err, "Failed to list users", false)
		return
	}
	utils.SuccessResponse(c, "Users retrieved successfully", users)
}

// CreateUser POST /admin/users
func (ac *AdminController) CreateUser(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required,min=1,max=255"`
		Role string `json:"role" binding:"omitempty,oneof=user admin"`
	}
	if !bindJSON(c, &req) {
		return
	}

	user, err := ac.directoryService.CreateUser(c.Request.Context(), req.Name, req.Role)
	if err != nil {
		handleError(c, err, "Failed to create user", true)
		return
	}
	utils.CreatedResponse(c, "User created successfully", user)
}

// GetUser GET /admin/users/:id
func (ac *AdminController) GetUser(c *gin.Context) {
	userID, ok := parseObjectID(c, c.Param("id"), "user")
	if !ok {
		return
	}

	user, err := ac.directoryService.GetUser(c.Request.Context(), userID)
	if err != nil {
		handleError(c, err, "Failed to get user", false)
		return
	}
	utils.SuccessResponse(c, "User retrieved successfully", user)
}

// ListGroups GET /admin/groups
func (ac *AdminController) ListGroups(c *gin.Context) {
	groups, err := ac.directoryService.ListGroups(c.Request.Context())
	if err != nil {
		handleError(c, err, "Failed to list groups", false)
		return
	}
	utils.SuccessResponse(c, "Groups retrieved successfully", groups)
}

// CreateGroup POST /admin/groups
func (ac *AdminController) CreateGroup(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required,min=1,max=255"`
	}
	if !bindJSON(c, &req) {
		return
	}

	group, err := ac.directoryService.CreateGroup(c.Request.Context(), req.Name)
	if err != nil {
		handleError(c, err, "Failed to create group", true)
		return
	}
	utils.CreatedResponse(c, "Group created successfully", group)
}

// DeleteGroup DELETE /admin/groups/:id
func (ac *AdminController) DeleteGroup(c *gin.Context) {
	groupID, ok := parseObjectID(c, c.Param("id"), "group")
	if !ok {
		return
	}

	if err := ac.directoryService.DeleteGroup(c.Request.Context(), groupID); err != nil {
		handleError(c, err, "Failed to delete group", true)
		return
	}
	utils.SuccessResponse(c, "Group deleted successfully", nil)
}

// AddMember POST /admin/groups/:id/members/:userId
func (ac *AdminController) AddMember(c *gin.Context) {
	groupID, ok := parseObjectID(c, c.Param("id"), "group")
	if !ok {
		return
	}
	userID, ok := parseObjectID(c, c.Param("userId"), "user")
	if !ok {
		return
	}

	if err := ac.directoryService.AddMember(c.Request.Context(), groupID, userID); err != nil {
		handleError(c, err, "Failed to add member", true)
		return
	}
	utils.SuccessResponse(c, "Member added", nil)
}

// RemoveMember DELETE /admin/groups/:id/members/:userId
func (ac *AdminController) RemoveMember(c *gin.Context) {
	groupID, ok := parseObjectID(c, c.Param("id"), "group")
	if !ok {
		return
	}
	userID, ok := parseObjectID(c, c.Param("userId"), "user")
	if !ok {
		return
	}

	if err := ac.directoryService.RemoveMember(c.Request.Context(), groupID, userID); err != nil {
		handleError(c, err, "Failed to remove member", true)
		return
	}
	utils.SuccessResponse(c, "Member removed", nil)
}
