package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/taxverify/internal/observability/logger"
	transcriptdomain "github.com/smallbiznis/taxverify/internal/transcript/domain"
	"go.uber.org/zap"
)

// multipartOverhead leaves room for the form fields and part headers on top
// of the file itself.
const multipartOverhead = 64 << 10

func (s *Server) UploadTranscript(c *gin.Context) {
	limit := s.maxUploadBytes
	if limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
	}

	req := transcriptdomain.IngestRequest{}
	fileHeader, err := c.FormFile("file")
	switch {
	case err == nil:
	case isTooLarge(err):
		AbortWithError(c, ErrFileTooLarge)
		return
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		// reported by the service as a missing field
	default:
		AbortWithError(c, invalidRequestError())
		return
	}

	req.RequestID = strings.TrimSpace(c.PostForm("requestId"))
	req.Year = strings.TrimSpace(c.PostForm("year"))
	req.ExpertID = c.PostForm("expert_id")
	req.ExpertName = c.PostForm("expert_name")
	c.Set("verification_request_id", req.RequestID)

	if fileHeader != nil {
		if limit > 0 && fileHeader.Size > limit {
			AbortWithError(c, ErrFileTooLarge)
			return
		}
		data, err := readPart(fileHeader, limit)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		req.File = data
		req.FileName = fileHeader.Filename
		req.ContentType = fileHeader.Header.Get("Content-Type")

		if len(data) > 0 {
			artifact := transcriptdomain.Artifact{FileName: req.FileName, DeclaredType: req.ContentType, Data: data}
			if _, detected, err := transcriptdomain.Classify(artifact); err != nil {
				logger.FromContext(c.Request.Context()).Info("upload rejected",
					zap.String("detected_type", detected),
					zap.Int("size", len(data)),
				)
				AbortWithError(c, err)
				return
			}
		}
	}

	resp, err := s.transcriptSvc.Ingest(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func readPart(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr) || errors.Is(err, multipart.ErrMessageTooLarge)
}
