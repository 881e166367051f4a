package controllers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"mediavault/utils"
)

// handleError maps service errors onto responses. A mutation aimed at
// something that does not exist is reported as a no-op, not a 404.
func handleError(c *gin.Context, err error, message string, mutation bool) {
	switch {
	case errors.Is(err, utils.ErrUnauthorized):
		utils.UnauthorizedResponse(c, "Authentication required")
	case errors.Is(err, utils.ErrAccessDenied):
		utils.ForbiddenResponse(c, "Insufficient permissions")
	case errors.Is(err, utils.ErrInvalidPath):
		utils.BadRequestResponse(c, "Invalid path", err.Error())
	case errors.Is(err, utils.ErrInvalidArgument):
		utils.BadRequestResponse(c, message, err.Error())
	case errors.Is(err, utils.ErrNotFound):
		if mutation {
			utils.NoopResponse(c, "Nothing to change: "+err.Error())
		} else {
			utils.NotFoundResponse(c, err.Error())
		}
	case errors.Is(err, utils.ErrConflict):
		utils.ConflictResponse(c, "Already exists", err.Error())
	case errors.Is(err, utils.ErrSyncInProgress):
		utils.ConflictResponse(c, "A sync is already running", "sync_in_progress")
	case errors.Is(err, utils.ErrStorageUnavailable):
		utils.ServiceUnavailableResponse(c, "Storage is unavailable")
	default:
		utils.LogError(message, err)
		utils.InternalServerErrorResponse(c, message, nil)
	}
}

func parseObjectID(c *gin.Context, value, what string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(value)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid "+what+" ID format", nil)
		return primitive.NilObjectID, false
	}
	return id, true
}

func parseObjectIDs(c *gin.Context, values []string, what string) ([]primitive.ObjectID, bool) {
	ids := make([]primitive.ObjectID, 0, len(values))
	for _, value := range values {
		id, ok := parseObjectID(c, value, what)
		if !ok {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return value
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		utils.BadRequestResponse(c, "Invalid request data", err.Error())
		return false
	}
	return true
}
