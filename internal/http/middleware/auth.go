package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/livedesk/backend/internal/http/response"
	"github.com/livedesk/backend/internal/platform/logger"
	"github.com/livedesk/backend/internal/requestdata"
	"github.com/livedesk/backend/internal/services"
)

var errUnauthorized = errors.New("Yetkisiz erişim")

type AuthMiddleware struct {
	log      *logger.Logger
	identity services.IdentityService
}

func NewAuthMiddleware(log *logger.Logger, identity services.IdentityService) *AuthMiddleware {
	middlewareLog := log.With("Middleware", "AuthMiddleware")
	return &AuthMiddleware{log: middlewareLog, identity: identity}
}

// RequireStaff gates the REST collaborator surface. Anything short of a
// valid staff credential gets a 403; the chat socket has its own
// degrade-to-guest path and does not use this.
func (am *AuthMiddleware) RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		ident := am.identity.Resolve(tokenString)
		if !ident.Role.IsStaff() {
			c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorEnvelope{
				Error: response.APIError{Message: errUnauthorized.Error(), Code: "forbidden"},
			})
			return
		}
		ctx := requestdata.WithRequestData(c.Request.Context(), &requestdata.RequestData{
			TokenString: tokenString,
			Role:        ident.Role,
			SubjectID:   ident.SubjectID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}
