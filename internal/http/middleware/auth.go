package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"rentals/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const actorKey = "actor"

// Claims is the token payload issued by the identity service.
type Claims struct {
	UserID any    `json:"user_id,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// ActorID prefers the subject and falls back to user_id, which may be numeric.
func (c Claims) ActorID() string {
	if c.Subject != "" {
		return c.Subject
	}
	switch v := c.UserID.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	}
	return ""
}

// ParseToken validates an HS256 token and returns the acting principal.
func ParseToken(tokenString string, secret []byte) (domain.Actor, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return domain.Actor{}, err
	}
	actor := domain.Actor{ID: claims.ActorID(), Type: domain.ParseActorType(claims.Role)}
	if actor.ID == "" {
		return domain.Actor{}, errors.New("token has no subject")
	}
	if actor.Type == "" {
		return domain.Actor{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	return actor, nil
}

// RequireAuth rejects requests without a valid bearer token and stores the actor on the context.
func RequireAuth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			abortUnauthorized(c, "missing or invalid Authorization header")
			return
		}
		actor, err := ParseToken(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")), key)
		if err != nil {
			abortUnauthorized(c, "invalid token: "+err.Error())
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// ActorFrom returns the authenticated actor, if any.
func ActorFrom(c *gin.Context) (domain.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return domain.Actor{}, false
	}
	a, ok := v.(domain.Actor)
	return a, ok
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":      msg,
		"code":       "unauthenticated",
		"request_id": GetRequestID(c),
	})
}
