package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// errorHandler turns panics into INTERNAL_ERROR responses.
func errorHandler(log *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error("panic in handler", zap.String("path", c.Request.URL.Path), zap.Any("recovered", recovered))
		msg := "An unexpected error occurred"
		if s, ok := recovered.(string); ok {
			msg = s
		} else if err, ok := recovered.(error); ok {
			msg = err.Error()
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Error: ErrorDetail{Code: "INTERNAL_ERROR", Message: msg},
		})
	})
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func abort(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: fmt.Sprint(err)},
	})
}
