package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mediavault/models"
	"mediavault/services"
	"mediavault/utils"
)

const identityKey = "identity"

// AuthMiddleware verifies the bearer token and stores the identity on the
// context. EventSource clients cannot set headers, so the token may also come
// in the access_token query parameter.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			token = c.Query("access_token")
		}
		if token == "" {
			utils.UnauthorizedResponse(c, "Authorization token required")
			c.Abort()
			return
		}

		identity, err := utils.IdentityFromToken(token, jwtSecret)
		if err != nil {
			utils.UnauthorizedResponse(c, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set(identityKey, identity)
		c.Set("userId", identity.ID)
		c.Set("role", identity.Role)

		c.Next()
	}
}

// CurrentIdentity returns the identity set by AuthMiddleware. Without one it
// returns the zero identity, which every access check rejects.
func CurrentIdentity(c *gin.Context) models.Identity {
	if value, exists := c.Get(identityKey); exists {
		if identity, ok := value.(models.Identity); ok {
			return identity
		}
	}
	return models.Identity{}
}

func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}

	return strings.TrimSpace(authHeader[len(bearerPrefix):])
}

func RequireRole(requiredRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get("role")
		if !exists {
			utils.UnauthorizedResponse(c, "User role not found")
			c.Abort()
			return
		}

		userRole, ok := role.(string)
		if !ok || userRole != requiredRole {
			utils.ForbiddenResponse(c, "Insufficient privileges")
			c.Abort()
			return
		}

		c.Next()
	}
}

// InternalTokenMiddleware guards the endpoints other processes call. With no
// token configured they are closed.
func InternalTokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			utils.ForbiddenResponse(c, "Internal endpoints are disabled")
			c.Abort()
			return
		}

		supplied := c.GetHeader(services.InternalTokenHeader)
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
			utils.UnauthorizedResponse(c, "Invalid internal token")
			c.Abort()
			return
		}

		c.Next()
	}
}

// CORSMiddleware answers preflight requests and echoes allowed origins.
// An empty list or "*" allows every origin.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestOrigin := c.Request.Header.Get("Origin")

		allowOrigin := ""
		if len(allowedOrigins) == 0 {
			allowOrigin = "*"
		}
		for _, allowed := range allowedOrigins {
			if allowed == "*" {
				allowOrigin = "*"
				break
			}
			if allowed == requestOrigin {
				allowOrigin = requestOrigin
				break
			}
		}

		if allowOrigin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", allowOrigin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")
			c.Writer.Header().Set("Access-Control-Max-Age", "86400")
		} else if requestOrigin != "" {
			utils.LogDebug("CORS - origin %q not allowed", requestOrigin)
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
