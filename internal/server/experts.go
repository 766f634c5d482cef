package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	expertdomain "github.com/smallbiznis/taxverify/internal/expert/domain"
)

func (s *Server) ExpertLogin(c *gin.Context) {
	var req expertdomain.LoginRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.expertSvc.Login(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) ExpertActivity(c *gin.Context) {
	resp, err := s.expertSvc.Activity(c.Request.Context(), strings.TrimSpace(c.Param("expertId")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
