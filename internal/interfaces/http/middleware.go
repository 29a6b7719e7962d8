package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

const (
	// HeaderUserID carries the authenticated user id set by the auth gateway
	HeaderUserID    = "X-User-ID"
	HeaderRequestID = "X-Request-ID"

	ctxKeyUser      = "user"
	ctxKeyRequestID = "request_id"
)

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		fields := []interface{}{
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"request_id", c.GetString(ctxKeyRequestID),
		}
		if user, ok := currentUser(c); ok {
			fields = append(fields, "user_id", user.ID)
		}
		s.logger.Info("HTTP request", fields...)
	}
}

// identityMiddleware resolves the caller from the gateway-supplied header
func (s *Server) identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			abortWithError(c, http.StatusUnauthorized, "missing "+HeaderUserID+" header")
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			abortWithError(c, http.StatusUnauthorized, "invalid "+HeaderUserID+" header")
			return
		}

		user, err := s.deps.Directory.GetUser(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, service.ErrUserNotFound) {
				abortWithError(c, http.StatusUnauthorized, "unknown user")
				return
			}
			s.logger.Error("Failed to resolve caller", "user_id", id, "error", err)
			abortWithError(c, http.StatusInternalServerError, "failed to resolve caller")
			return
		}

		c.Set(ctxKeyUser, user)
		c.Next()
	}
}

// authzMiddleware checks the caller's role against the matched route template
func (s *Server) authzMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.Authorizer == nil {
			c.Next()
			return
		}
		user, ok := currentUser(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "unauthenticated")
			return
		}

		allowed, enforced, err := s.deps.Authorizer.Authorize(user.Role, c.FullPath(), c.Request.Method)
		if err != nil {
			s.logger.Error("Authorization check failed", "error", err, "path", c.FullPath())
			if enforced {
				abortWithError(c, http.StatusInternalServerError, "authorization check failed")
				return
			}
		}
		if !allowed {
			if enforced {
				abortWithError(c, http.StatusForbidden, "forbidden")
				return
			}
			s.logger.Info("Authorization shadow deny",
				"user_id", user.ID, "role", user.Role, "path", c.FullPath(), "method", c.Request.Method)
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) (*entity.User, bool) {
	v, ok := c.Get(ctxKeyUser)
	if !ok {
		return nil, false
	}
	user, ok := v.(*entity.User)
	return user, ok
}
