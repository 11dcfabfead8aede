package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dharsanguruparan/mindstash/internal/access"
	"github.com/dharsanguruparan/mindstash/internal/apperr"
)

const actorKey = "actor"

// authenticate verifies the bearer token and loads the user fresh from the
// datastore, storing the resulting Actor on the gin context.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			respondError(c, access.ErrUnauthenticated)
			return
		}
		userID, err := s.deps.Tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			respondError(c, apperr.Unauthenticated("invalid_token", "session is invalid or expired").Wrap(err))
			return
		}
		user, err := s.deps.Users.GetUser(c.Request.Context(), userID)
		if errors.Is(err, apperr.ErrNotFound) {
			respondError(c, apperr.Unauthenticated("unknown_user", "account no longer exists").Wrap(err))
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(actorKey, access.FromUser(user))
		c.Next()
	}
}

// gate runs the Access Gate for a route group before any body is read. The
// components repeat the check for callers that bypass HTTP.
func gate(req access.Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := access.Check(actorFrom(c), req); err != nil {
			respondError(c, err)
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) access.Actor {
	if v, ok := c.Get(actorKey); ok {
		if a, ok := v.(access.Actor); ok {
			return a
		}
	}
	return access.Actor{}
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindConflict:
		return http.StatusBadRequest
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindRateLimit:
		return http.StatusTooManyRequests
	case apperr.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
