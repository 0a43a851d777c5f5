package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/teamtask/internal/coordinator"
	"github.com/roach88/teamtask/internal/domain"
	"github.com/roach88/teamtask/internal/store"
)

const actorKey = "actor"

// requestContext attaches event metadata to the request context and logs
// the request once it completes.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = s.ids.Generate()
		}
		c.Header("X-Request-ID", requestID)

		meta := domain.EventMetadata{
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Method:    c.Request.Method,
			URL:       c.Request.URL.Path,
			RequestID: requestID,
		}
		c.Request = c.Request.WithContext(coordinator.WithMetadata(c.Request.Context(), meta))

		c.Next()

		slog.Debug("http request",
			"method", meta.Method,
			"path", meta.URL,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"request_id", requestID)
	}
}

// authenticate verifies the bearer token and rebuilds the actor from the
// directory. Inactive or unknown users are rejected.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := s.actorFromRequest(c, bearerToken(c.Request))
		if !ok {
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// actorFromRequest resolves token to an actor, writing a 401 or 503 and
// aborting when it cannot.
func (s *Server) actorFromRequest(c *gin.Context, token string) (domain.AuthContext, bool) {
	if token == "" {
		abortJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		return domain.AuthContext{}, false
	}
	claims, err := s.deps.Tokens.Verify(token)
	if err != nil {
		slog.Debug("token rejected", "error", err)
		abortJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
		return domain.AuthContext{}, false
	}

	user, err := s.deps.Users.FindUserByID(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			abortJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
			return domain.AuthContext{}, false
		}
		slog.Error("directory lookup failed", "user_id", claims.UserID, "error", err)
		abortJSON(c, http.StatusServiceUnavailable, string(coordinator.ErrCodeUnavailable), "directory unavailable")
		return domain.AuthContext{}, false
	}
	if !user.IsActive {
		abortJSON(c, http.StatusUnauthorized, "UNAUTHORIZED", "account is inactive")
		return domain.AuthContext{}, false
	}
	return domain.AuthContextFor(user), true
}

// requireRole rejects actors whose role is not listed.
func (s *Server) requireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		for _, r := range roles {
			if actor.Role() == r {
				c.Next()
				return
			}
		}
		slog.Warn("access denied",
			"user_id", actor.UserID(),
			"role", actor.Role(),
			"path", c.Request.URL.Path,
			"reason", "role not permitted")
		abortJSON(c, http.StatusForbidden, string(coordinator.ErrCodeDenied), "access denied")
	}
}

func actorFrom(c *gin.Context) domain.AuthContext {
	v, _ := c.Get(actorKey)
	actor, _ := v.(domain.AuthContext)
	return actor
}

// bearerToken reads "Authorization: Bearer <token>", falling back to the
// token query parameter (browsers cannot set headers on WebSocket
// handshakes).
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func abortJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": code})
}
