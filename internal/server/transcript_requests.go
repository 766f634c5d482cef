package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	trdomain "github.com/smallbiznis/taxverify/internal/transcriptrequest/domain"
)

func (s *Server) CreateTranscriptRequest(c *gin.Context) {
	var req trdomain.CreateRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.requestSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("verification_request_id", resp.RequestID)

	c.JSON(http.StatusCreated, resp)
}

func (s *Server) GetTranscriptRequest(c *gin.Context) {
	requestID := strings.TrimSpace(c.Param("requestId"))
	c.Set("verification_request_id", requestID)

	resp, err := s.requestSvc.GetStatus(c.Request.Context(), requestID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) LookupTranscriptRequest(c *gin.Context) {
	var req trdomain.LookupRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.requestSvc.Lookup(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Set("verification_request_id", resp.RequestID)

	c.JSON(http.StatusOK, resp)
}

func (s *Server) GetReceipt(c *gin.Context) {
	requestID := strings.TrimSpace(c.Param("requestId"))
	c.Set("verification_request_id", requestID)

	pdf, err := s.receiptSvc.Render(c.Request.Context(), requestID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="receipt-%s.pdf"`, requestID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// bindOptionalJSON treats an empty body as an empty object so that missing
// fields are reported instead of a parse failure.
func bindOptionalJSON(c *gin.Context, obj any) error {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
