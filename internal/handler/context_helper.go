package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/uniqn-app/staffsync/internal/middleware"
	"github.com/uniqn-app/staffsync/internal/models"
	syncengine "github.com/uniqn-app/staffsync/internal/sync"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func identityFromClaims(claims *models.JWTClaims) syncengine.Identity {
	return syncengine.Identity{ActorID: claims.UserID, Role: claims.Role}
}

// subjectID resolves whose schedule a request is about: staff always get
// their own, admins and employers may ask for any staff member via the
// staff_id query parameter.
func subjectID(c *gin.Context, claims *models.JWTClaims) string {
	if claims.Role == models.RoleStaff {
		return claims.UserID
	}
	if target := c.Query("staff_id"); target != "" {
		return target
	}
	return claims.UserID
}
