package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	employmentdomain "github.com/smallbiznis/taxverify/internal/employment/domain"
)

func (s *Server) GetEmploymentStatus(c *gin.Context) {
	requestID := strings.TrimSpace(c.Param("requestId"))
	c.Set(contextEmploymentRequestIDKey, requestID)

	resp, err := s.employmentSvc.Status(c.Request.Context(), requestID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) VerifyEmployment(c *gin.Context) {
	var req employmentdomain.VerifyRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.employmentSvc.Verify(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set(contextEmploymentRequestIDKey, resp.RequestID)

	c.JSON(http.StatusOK, resp)
}

func statusLabel(status int) string {
	return strconv.Itoa(status)
}
