package api

import (
	"encoding/base64"
	"net/http"
	"path/filepath"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/meshgate/pkg/errs"
)

type docConversionRequest struct {
	FileName string `json:"fileName"`
	Base64   string `json:"base64"`
}

// docConversionHandler handles POST /document-conversion/to-pdf (SPEC_FULL.md
// §4.12 "DocConversionService"), base64 in/base64 out.
func (s *Server) docConversionHandler(c *echo.Context) error {
	var req docConversionRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, errs.Wrap(errs.BadRequest, "invalid request body", err))
	}
	if req.FileName == "" || req.Base64 == "" {
		return writeError(c, errs.New(errs.BadRequest, "fileName and base64 are required"))
	}

	data, err := base64.StdEncoding.DecodeString(req.Base64)
	if err != nil {
		return writeError(c, errs.Wrap(errs.BadRequest, "invalid base64 payload", err))
	}

	ext := strings.TrimPrefix(filepath.Ext(req.FileName), ".")
	pdf, cached, err := s.docconv.ConvertToPDF(c.Request().Context(), req.FileName, ext, data)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"fileName": strings.TrimSuffix(req.FileName, filepath.Ext(req.FileName)) + ".pdf",
		"base64":   base64.StdEncoding.EncodeToString(pdf),
		"cached":   cached,
	})
}
