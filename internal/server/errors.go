package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apikeydomain "github.com/smallbiznis/taxverify/internal/apikey/domain"
	"github.com/smallbiznis/taxverify/internal/authorization"
	employmentdomain "github.com/smallbiznis/taxverify/internal/employment/domain"
	"github.com/smallbiznis/taxverify/internal/ratelimit"
	transcriptdomain "github.com/smallbiznis/taxverify/internal/transcript/domain"
	trdomain "github.com/smallbiznis/taxverify/internal/transcriptrequest/domain"
	"github.com/smallbiznis/taxverify/pkg/validation"
)

// errorResponse is the body of every failed request. Error is always set.
type errorResponse struct {
	Error    string   `json:"error"`
	Message  string   `json:"message,omitempty"`
	Required []string `json:"required,omitempty"`
}

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrFileTooLarge       = errors.New("file_too_large")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRouteNotFound      = errors.New("route_not_found")
)

// ErrorHandlingMiddleware renders the last handler error. Internal error
// detail is only exposed outside production.
func ErrorHandlingMiddleware(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status == http.StatusInternalServerError && !production {
			payload.Message = lastErr.Err.Error()
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, payload)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return ErrInvalidRequest
}

func mapError(err error) (int, errorResponse) {
	var missing *validation.MissingFieldsError
	if errors.As(err, &missing) {
		return http.StatusBadRequest, errorResponse{
			Error:    "Missing required fields",
			Required: missing.Required,
		}
	}

	var malformed *transcriptdomain.MalformedArtifactError
	if errors.As(err, &malformed) {
		return http.StatusBadRequest, errorResponse{
			Error:   "Invalid transcript format",
			Message: malformed.Reason,
		}
	}

	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorResponse{Error: "Invalid request"}
	case errors.Is(err, transcriptdomain.ErrUnsupportedType):
		return http.StatusBadRequest, errorResponse{Error: "Unsupported file type"}
	case errors.Is(err, transcriptdomain.ErrMalformedArtifact):
		return http.StatusBadRequest, errorResponse{Error: "Invalid transcript format"}
	case errors.Is(err, transcriptdomain.ErrInvalidYear):
		return http.StatusBadRequest, errorResponse{Error: "Invalid year"}
	case errors.Is(err, employmentdomain.ErrInvalidTaxYears):
		return http.StatusBadRequest, errorResponse{Error: "Invalid tax years"}
	case errors.Is(err, apikeydomain.ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{Error: "Invalid API key"}
	case errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusForbidden, errorResponse{Error: "Forbidden"}
	case errors.Is(err, trdomain.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "Request not found"}
	case errors.Is(err, employmentdomain.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: "Employment request not found"}
	case errors.Is(err, ErrRouteNotFound):
		return http.StatusNotFound, errorResponse{Error: "Route not found"}
	case errors.Is(err, ratelimit.ErrLockHeld):
		return http.StatusConflict, errorResponse{Error: "Upload already in progress"}
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, errorResponse{Error: "File too large"}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorResponse{Error: "Rate limit exceeded"}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorResponse{Error: "Service unavailable"}
	default:
		return http.StatusInternalServerError, errorResponse{Error: "Internal server error"}
	}
}

// classifyErrorForLog feeds error_type and error_code on the request log line.
func classifyErrorForLog(err error) (string, string) {
	status, _ := mapError(err)
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return "validation_error", err.Error()
	case http.StatusUnauthorized:
		return "unauthorized", err.Error()
	case http.StatusForbidden:
		return "forbidden", err.Error()
	case http.StatusNotFound:
		return "not_found", err.Error()
	case http.StatusConflict:
		return "conflict", err.Error()
	case http.StatusTooManyRequests:
		return "rate_limited", err.Error()
	case http.StatusServiceUnavailable:
		return "service_unavailable", err.Error()
	default:
		return "internal_error", "internal_error"
	}
}
