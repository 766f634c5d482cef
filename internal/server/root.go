package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/taxverify/internal/observability/logger"
	"go.uber.org/zap"
)

var serviceEndpoints = []string{
	"POST /api/v1/transcript-requests/create",
	"GET /api/v1/transcript-requests/:requestId",
	"POST /api/v1/transcript-requests/lookup",
	"GET /api/v1/transcript-requests/:requestId/receipt",
	"POST /api/v1/transcripts/upload",
	"POST /api/v1/experts/login",
	"GET /api/v1/experts/:expertId/activity",
	"GET /api/v1/employment/status/:requestId",
	"POST /api/v1/employment/verify",
}

func (s *Server) ServiceInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":   s.cfg.AppName,
		"status":    "ok",
		"version":   s.cfg.AppVersion,
		"endpoints": serviceEndpoints,
	})
}

func (s *Server) Health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		logger.FromContext(ctx).Warn("database ping failed", zap.Error(err))
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
