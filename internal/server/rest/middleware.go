package rest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/signerrelay/internal/common"
	"github.com/gin-gonic/gin"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// observe logs every request and records it in the request metrics.
func (s *HTTPServer) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		d := time.Since(start)
		status := c.Writer.Status()

		s.metrics.Request(c.Request.Method, route, status, d)
		s.logger.Debug(c.Request.Context(), "request served",
			"method", c.Request.Method, "route", route, "status", status, "duration", d)
	}
}

// session requires a bearer session token and stores the caller's fid.
func (s *HTTPServer) session() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(common.AuthorizationHeaderName)
		token, ok := strings.CutPrefix(header, common.BearerScheme)
		if !ok || strings.TrimSpace(token) == "" {
			s.unauthenticated(c, "missing session token")
			return
		}

		fid, err := s.signIn.SessionUser(strings.TrimSpace(token))
		if err != nil {
			s.logger.Debug(c.Request.Context(), "session rejected", "error", err)
			s.unauthenticated(c, "invalid session token")
			return
		}

		ctx := context.WithValue(c.Request.Context(), userIDKey, fid)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *HTTPServer) unauthenticated(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: "unauthenticated", Message: msg})
}

func userID(c *gin.Context) int64 {
	fid, _ := c.Request.Context().Value(userIDKey).(int64)
	return fid
}
