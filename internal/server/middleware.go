package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/seatkeeper/internal/audit/domain"
	"github.com/smallbiznis/seatkeeper/internal/identity"
	obscontext "github.com/smallbiznis/seatkeeper/internal/observability/context"
	obstracing "github.com/smallbiznis/seatkeeper/internal/observability/tracing"
	seatdomain "github.com/smallbiznis/seatkeeper/internal/seat/domain"
)

const contextActorKey = "actor"

// IdentityRequired reads the caller identity forwarded by the authenticating
// proxy and rejects requests that carry none.
func IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := identity.New(
			c.GetHeader(identity.HeaderUserID),
			c.GetHeader(identity.HeaderUserEmail),
			c.GetHeader(identity.HeaderUserName),
		)
		if !actor.Valid() {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextActorKey, actor)
		ctx := obscontext.WithActor(c.Request.Context(), string(auditdomain.ActorTypeUser), actor.UserID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// OrgContext tags the request context with the organization named in the path.
func OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if orgID := strings.TrimSpace(c.Param("id")); orgID != "" {
			c.Request = c.Request.WithContext(obscontext.WithOrgID(c.Request.Context(), orgID))
		}
		c.Next()
	}
}

func actorFromContext(c *gin.Context) (identity.Actor, bool) {
	value, ok := c.Get(contextActorKey)
	if !ok {
		return identity.Actor{}, false
	}
	actor, ok := value.(identity.Actor)
	if !ok || !actor.Valid() {
		return identity.Actor{}, false
	}
	return actor, true
}

// respondWithSeatSync writes payload under "data" and surfaces a seat sync
// warning next to it when reconciliation needs attention.
func respondWithSeatSync(c *gin.Context, status int, payload any, result seatdomain.Result) {
	body := gin.H{"data": payload}
	if warning := result.Warning(); warning != "" {
		body["warning"] = warning
		c.Set(obstracing.SeatWarningKey, warning)
	}
	c.JSON(status, body)
}
