package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderOrganizationID scopes every API request to one tenant
	HeaderOrganizationID = "X-Organization-ID"

	// HeaderUserID identifies the acting user, recorded as triggered_by
	HeaderUserID = "X-User-ID"

	orgIDKey  = "org_id"
	userIDKey = "user_id"
)

// requireOrganization rejects requests without an organization header
func requireOrganization() gin.HandlerFunc {
	return func(c *gin.Context) {
		orgID := strings.TrimSpace(c.GetHeader(HeaderOrganizationID))
		if orgID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, Response{
				Success: false,
				Error:   HeaderOrganizationID + " header is required",
			})
			return
		}
		c.Set(orgIDKey, orgID)
		c.Set(userIDKey, strings.TrimSpace(c.GetHeader(HeaderUserID)))
		c.Next()
	}
}

func orgID(c *gin.Context) string {
	return c.GetString(orgIDKey)
}

func userID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
