package server

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/taxverify/internal/audit/domain"
	obscontext "github.com/smallbiznis/taxverify/internal/observability/context"
	"github.com/smallbiznis/taxverify/internal/observability/logger"
	"github.com/smallbiznis/taxverify/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	actorTypeCredential = "credential"

	contextEmploymentRequestIDKey = "employment_request_id"

	rateLimitReasonCredentialRate = "credential-rate"
)

// employmentChain wraps an employment handler. The audit wrapper sits
// outermost so rejected calls are recorded too.
func (s *Server) employmentChain(action string, handler gin.HandlerFunc) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		s.AuditEmploymentCall(action),
		s.CredentialRequired(),
		s.AuthorizeEmployment(action),
		s.EmploymentRateLimit(),
		handler,
	}
}

// CredentialRequired resolves the bearer token to a credential environment
// and stores it as the request actor.
func (s *Server) CredentialRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		cred, err := s.apiKeySvc.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), actorTypeCredential, cred.Environment)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) AuthorizeEmployment(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		_, environment := obscontext.ActorFromContext(ctx)
		if err := s.authzSvc.Authorize(ctx, environment, action); err != nil {
			logger.FromContext(ctx).Warn("employment call denied",
				zap.String("action", action),
				zap.Error(err),
			)
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) EmploymentRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		_, environment := obscontext.ActorFromContext(ctx)
		endpoint := c.FullPath()

		result, err := s.limiter.Allow(ctx, environment)
		if err != nil {
			logger.FromContext(ctx).Warn("employment rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			logger.FromContext(ctx).Warn("employment rate limit exceeded",
				zap.String("endpoint", endpoint),
				zap.Duration("retry_after", result.RetryAfter),
			)
			s.obsMetrics.RecordRateLimitDenied(ctx, environment, endpoint, rateLimitReasonCredentialRate)
			c.Header("Retry-After", ratelimit.RetryAfterSeconds(result.RetryAfter))
			c.Header("X-Rate-Limited-Reason", rateLimitReasonCredentialRate)
			AbortWithError(c, ErrRateLimited)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, environment, endpoint)
		c.Next()
	}
}

// AuditEmploymentCall writes the api_requests row once the rest of the chain
// has finished.
func (s *Server) AuditEmploymentCall(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ctx := context.WithoutCancel(c.Request.Context())
		_, environment := obscontext.ActorFromContext(ctx)
		status := responseStatus(c)

		requestID := strings.TrimSpace(c.GetString(contextEmploymentRequestIDKey))
		if requestID == "" {
			requestID = strings.TrimSpace(c.Param("requestId"))
		}

		if err := s.auditSvc.Record(ctx, auditdomain.Entry{
			CredentialEnv: environment,
			Action:        action,
			RequestID:     requestID,
			StatusCode:    status,
		}); err != nil {
			logger.FromContext(ctx).Warn("employment audit failed", zap.Error(err))
		}
		s.telemetry.ObserveAPIRequest(action, statusLabel(status), environment, time.Since(start))
	}
}

// responseStatus is the status the client will see. Errors are rendered by
// ErrorHandlingMiddleware after this chain unwinds.
func responseStatus(c *gin.Context) int {
	if !c.Writer.Written() {
		if last := c.Errors.Last(); last != nil {
			status, _ := mapError(last.Err)
			return status
		}
	}
	return c.Writer.Status()
}
