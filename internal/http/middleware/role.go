package middleware

import (
	"net/http"

	"rentals/internal/domain"

	"github.com/gin-gonic/gin"
)

// RequireActorTypes only lets the listed actor types through. It must run after RequireAuth.
// Ownership of the specific booking is still checked by the services.
func RequireActorTypes(types ...domain.ActorType) gin.HandlerFunc {
	allowed := make(map[domain.ActorType]struct{}, len(types))
	for _, t := range types {
		allowed[t] = struct{}{}
	}
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			abortUnauthorized(c, "no authenticated actor on request")
			return
		}
		if _, ok := allowed[actor.Type]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":      "role " + string(actor.Type) + " is not allowed here",
				"code":       "forbidden",
				"request_id": GetRequestID(c),
			})
			return
		}
		c.Next()
	}
}
