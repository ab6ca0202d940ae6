package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ImaneBacar/CMC-UA-Backend/internal/model"
	"github.com/ImaneBacar/CMC-UA-Backend/internal/service/rbac"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/auth"
	apperrors "github.com/ImaneBacar/CMC-UA-Backend/pkg/errors"
	"github.com/ImaneBacar/CMC-UA-Backend/pkg/httputil"
)

const ContextActor = "actor"

type AuthMiddleware struct {
	rbacService *rbac.Service
	jwtService  auth.JWTService
}

func NewAuthMiddleware(rbacService *rbac.Service, jwtService auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{
		rbacService: rbacService,
		jwtService:  jwtService,
	}
}

// Authenticate verifies the bearer token and stores the actor in context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, apperrors.Unauthorized(nil).WithDetail("reason", "missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abort(c, apperrors.Unauthorized(nil).WithDetail("reason", "invalid authorization format"))
			return
		}

		actor, err := m.jwtService.ValidateToken(parts[1])
		if err != nil {
			abort(c, apperrors.Unauthorized(err).WithDetail("reason", "invalid token"))
			return
		}

		c.Set(ContextActor, *actor)
		c.Next()
	}
}

// RequireAction rejects actors the role policy does not allow for action
func (m *AuthMiddleware) RequireAction(action rbac.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			abort(c, apperrors.Unauthorized(nil))
			return
		}
		if err := m.rbacService.Authorize(actor, action); err != nil {
			abort(c, err)
			return
		}
		c.Next()
	}
}

// ActorFrom returns the authenticated actor of the request
func ActorFrom(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(ContextActor)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}

func abort(c *gin.Context, err error) {
	httputil.RespondWithError(c, err)
	c.Abort()
}
