// Package docconv implements the DocConversionService of SPEC_FULL.md
// §4.12: Office document → PDF conversion with a content-addressed
// cache, following the teacher's subprocess+backoff conventions.
package docconv

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/codeready-toolchain/meshgate/pkg/config"
	"github.com/codeready-toolchain/meshgate/pkg/errs"
	"github.com/codeready-toolchain/meshgate/pkg/model"
	"github.com/codeready-toolchain/meshgate/pkg/repository"
)

// spreadsheetExtensions lists the formats convertible in-process via
// excelize, without shelling out to soffice.
var spreadsheetExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xls":  true,
}

// Service converts Office documents to PDF, caching results by content
// hash so repeated conversions of the same file are free.
type Service struct {
	cfg   *config.DocConvConfig
	cache *repository.DocConversionCacheRepository
	now   func() int64
}

func New(cfg *config.DocConvConfig, cache *repository.DocConversionCacheRepository) *Service {
	return &Service{cfg: cfg, cache: cache, now: func() int64 { return time.Now().UnixMilli() }}
}

// ConvertToPDF returns the PDF bytes for the given document, consulting
// the cache first. cached reports whether the result came from cache.
func (s *Service) ConvertToPDF(ctx context.Context, fileName, fileExtension string, data []byte) (pdf []byte, cached bool, err error) {
	ext := strings.ToLower(fileExtension)
	if ext == "" || len(data) == 0 {
		return nil, false, errUnsupportedFormat
	}
	hash := contentHash(data)

	if s.cfg == nil || s.cfg.CacheEnabled {
		entry, err := s.cache.Get(ctx, hash, ext)
		if err != nil {
			return nil, false, fmt.Errorf("lookup doc conversion cache: %w", err)
		}
		if entry != nil {
			_ = s.cache.Touch(ctx, hash, ext, s.now())
			return entry.PDFData, true, nil
		}
	}

	var out []byte
	if spreadsheetExtensions[ext] {
		out, err = convertSpreadsheet(data)
	} else {
		out, err = s.convertViaSoffice(ctx, fileName, ext, data)
	}
	if err != nil {
		return nil, false, err
	}

	if s.cfg == nil || s.cfg.CacheEnabled {
		entry := &model.DocConversionCacheEntry{
			ContentHash:       hash,
			FileExtension:     ext,
			OriginalSizeBytes: int64(len(data)),
			PDFData:           out,
			PDFSizeBytes:      int64(len(out)),
			CreatedAt:         s.now(),
		}
		if err := s.cache.Put(ctx, entry); err != nil {
			return nil, false, fmt.Errorf("store doc conversion cache entry: %w", err)
		}
	}
	return out, false, nil
}

func contentHash(data []byte) string {
	h := sha256.New()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

func conversionTimeout(cfg *config.DocConvConfig) time.Duration {
	if cfg != nil && cfg.ConversionTimeout > 0 {
		return cfg.ConversionTimeout
	}
	return 30 * time.Second
}

var errUnsupportedFormat = errs.New(errs.BadRequest, "unsupported document format for conversion")
